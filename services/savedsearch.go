package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"idx_portal/models"
)

// SearchRepository persists saved searches for the management API
type SearchRepository interface {
	CreateSavedSearch(ctx context.Context, s *models.SavedSearch) error
	GetSearchByID(ctx context.Context, id uuid.UUID) (*models.SavedSearch, error)
	ListSearchesByClient(ctx context.Context, clientID uuid.UUID) ([]models.SavedSearch, error)
	ListAllSearches(ctx context.Context) ([]models.SavedSearch, error)
	UpdateSavedSearch(ctx context.Context, s *models.SavedSearch) error
	DeleteSavedSearch(ctx context.Context, id uuid.UUID) (bool, error)
}

// SearchInput is the editable part of a saved search
type SearchInput struct {
	Name                    string                `json:"search_name"`
	Description             string                `json:"search_description"`
	Criteria                models.SearchCriteria `json:"criteria"`
	NotificationFrequency   models.Frequency      `json:"notification_frequency"`
	NotificationTime        string                `json:"notification_time"`
	NotificationDays        []string              `json:"notification_days"`
	AdminShadowNotification bool                  `json:"admin_shadow_notification"`
	IsActive                *bool                 `json:"is_active"`
}

// SavedSearchService manages saved searches on behalf of clients and the admin
type SavedSearchService struct {
	repo SearchRepository
	now  func() time.Time
}

func NewSavedSearchService(repo SearchRepository) *SavedSearchService {
	return &SavedSearchService{repo: repo, now: time.Now}
}

// Create validates input and stores a new search owned by clientID
func (s *SavedSearchService) Create(ctx context.Context, clientID uuid.UUID, in SearchInput) (*models.SavedSearch, error) {
	schedule, err := validateSearchInput(&in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	search := &models.SavedSearch{
		ID:                      uuid.New(),
		ClientID:                clientID,
		Name:                    strings.TrimSpace(in.Name),
		Description:             in.Description,
		Criteria:                in.Criteria,
		Schedule:                schedule,
		AdminShadowNotification: in.AdminShadowNotification,
		IsActive:                in.IsActive == nil || *in.IsActive,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.repo.CreateSavedSearch(ctx, search); err != nil {
		return nil, fmt.Errorf("create saved search: %w", err)
	}
	return search, nil
}

// Get returns the search if clientID owns it. A nil clientID skips the ownership check.
func (s *SavedSearchService) Get(ctx context.Context, clientID, id uuid.UUID) (*models.SavedSearch, error) {
	search, err := s.repo.GetSearchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if search == nil || (clientID != uuid.Nil && search.ClientID != clientID) {
		return nil, ErrSearchNotFound
	}
	return search, nil
}

func (s *SavedSearchService) ListForClient(ctx context.Context, clientID uuid.UUID) ([]models.SavedSearch, error) {
	return s.repo.ListSearchesByClient(ctx, clientID)
}

func (s *SavedSearchService) ListAll(ctx context.Context) ([]models.SavedSearch, error) {
	return s.repo.ListAllSearches(ctx)
}

// Update replaces the editable fields. Run metrics are left alone.
func (s *SavedSearchService) Update(ctx context.Context, clientID, id uuid.UUID, in SearchInput) (*models.SavedSearch, error) {
	search, err := s.Get(ctx, clientID, id)
	if err != nil {
		return nil, err
	}
	schedule, err := validateSearchInput(&in)
	if err != nil {
		return nil, err
	}

	search.Name = strings.TrimSpace(in.Name)
	search.Description = in.Description
	search.Criteria = in.Criteria
	search.Schedule = schedule
	search.AdminShadowNotification = in.AdminShadowNotification
	if in.IsActive != nil {
		search.IsActive = *in.IsActive
	}
	search.UpdatedAt = s.now()

	if err := s.repo.UpdateSavedSearch(ctx, search); err != nil {
		return nil, fmt.Errorf("update saved search: %w", err)
	}
	return search, nil
}

// SetActive pauses or resumes a search
func (s *SavedSearchService) SetActive(ctx context.Context, clientID, id uuid.UUID, active bool) (*models.SavedSearch, error) {
	return s.patch(ctx, clientID, id, func(search *models.SavedSearch) { search.IsActive = active })
}

// SetAdminShadow turns the admin shadow copy on or off. Admin only.
func (s *SavedSearchService) SetAdminShadow(ctx context.Context, id uuid.UUID, enabled bool) (*models.SavedSearch, error) {
	return s.patch(ctx, uuid.Nil, id, func(search *models.SavedSearch) { search.AdminShadowNotification = enabled })
}

func (s *SavedSearchService) Delete(ctx context.Context, clientID, id uuid.UUID) error {
	if _, err := s.Get(ctx, clientID, id); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteSavedSearch(ctx, id)
	if err != nil {
		return fmt.Errorf("delete saved search: %w", err)
	}
	if !deleted {
		return ErrSearchNotFound
	}
	return nil
}

func (s *SavedSearchService) patch(ctx context.Context, clientID, id uuid.UUID, fn func(*models.SavedSearch)) (*models.SavedSearch, error) {
	search, err := s.Get(ctx, clientID, id)
	if err != nil {
		return nil, err
	}
	fn(search)
	search.UpdatedAt = s.now()
	if err := s.repo.UpdateSavedSearch(ctx, search); err != nil {
		return nil, fmt.Errorf("update saved search: %w", err)
	}
	return search, nil
}

func validateSearchInput(in *SearchInput) (models.Schedule, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: search name is required", ErrInvalidInput)
	}
	c := in.Criteria
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		return nil, fmt.Errorf("%w: minPrice is greater than maxPrice", ErrInvalidInput)
	}
	if c.MinSquareFeet != nil && c.MaxSquareFeet != nil && *c.MinSquareFeet > *c.MaxSquareFeet {
		return nil, fmt.Errorf("%w: minSquareFeet is greater than maxSquareFeet", ErrInvalidInput)
	}

	freq := in.NotificationFrequency
	if freq == "" {
		freq = models.FrequencyDaily
	}
	schedule, err := models.NewSchedule(freq, in.NotificationTime, in.NotificationDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return schedule, nil
}
