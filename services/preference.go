package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"idx_portal/models"
)

// PreferenceRepository persists Love It / Like It / Leave It tags
type PreferenceRepository interface {
	GetPreference(ctx context.Context, clientID uuid.UUID, mlsNumber string) (*models.PropertyPreference, error)
	SavePreference(ctx context.Context, p *models.PropertyPreference) error
	ListPreferences(ctx context.Context, clientID uuid.UUID) ([]models.PropertyPreference, error)
	DeletePreference(ctx context.Context, clientID uuid.UUID, mlsNumber string) (bool, error)
}

// PreferenceInput tags a listing. Listing is copied into the preference as a snapshot.
type PreferenceInput struct {
	Listing  models.Listing            `json:"property"`
	Category models.PreferenceCategory `json:"category"`
	Notes    string                    `json:"notes"`
}

type PreferenceService struct {
	repo PreferenceRepository
	now  func() time.Time
}

func NewPreferenceService(repo PreferenceRepository) *PreferenceService {
	return &PreferenceService{repo: repo, now: time.Now}
}

// Set creates or re-categorizes the client's tag on a listing. Re-tagging counts as a view.
func (s *PreferenceService) Set(ctx context.Context, clientID uuid.UUID, in PreferenceInput) (*models.PropertyPreference, error) {
	mls := strings.TrimSpace(in.Listing.MLSNumber)
	if mls == "" {
		return nil, fmt.Errorf("%w: property mls number is required", ErrInvalidInput)
	}
	if !in.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, in.Category)
	}

	now := s.now()
	pref, err := s.repo.GetPreference(ctx, clientID, mls)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = &models.PropertyPreference{
			ID:          uuid.New(),
			ClientID:    clientID,
			MLSNumber:   mls,
			FirstViewed: now,
			CreatedAt:   now,
		}
	}

	pref.Address = in.Listing.Address
	pref.Snapshot = in.Listing
	pref.Category = in.Category
	pref.Notes = in.Notes
	pref.ViewCount++
	pref.LastViewed = now
	pref.UpdatedAt = now

	if err := s.repo.SavePreference(ctx, pref); err != nil {
		return nil, fmt.Errorf("save preference: %w", err)
	}
	return pref, nil
}

// RecordView bumps the view counter of an existing tag. Untagged listings are ignored.
func (s *PreferenceService) RecordView(ctx context.Context, clientID uuid.UUID, mlsNumber string) (*models.PropertyPreference, error) {
	pref, err := s.repo.GetPreference(ctx, clientID, mlsNumber)
	if err != nil || pref == nil {
		return nil, err
	}
	now := s.now()
	pref.ViewCount++
	pref.LastViewed = now
	pref.UpdatedAt = now
	if err := s.repo.SavePreference(ctx, pref); err != nil {
		return nil, fmt.Errorf("save preference: %w", err)
	}
	return pref, nil
}

// UpdateNotes edits only the client's notes on a tag
func (s *PreferenceService) UpdateNotes(ctx context.Context, clientID uuid.UUID, mlsNumber, notes string) (*models.PropertyPreference, error) {
	pref, err := s.repo.GetPreference(ctx, clientID, mlsNumber)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		return nil, fmt.Errorf("%w: no preference for %s", ErrInvalidInput, mlsNumber)
	}
	pref.Notes = notes
	pref.UpdatedAt = s.now()
	if err := s.repo.SavePreference(ctx, pref); err != nil {
		return nil, fmt.Errorf("save preference: %w", err)
	}
	return pref, nil
}

// List returns the client's tags, most recently viewed first. An empty category lists all.
func (s *PreferenceService) List(ctx context.Context, clientID uuid.UUID, category models.PreferenceCategory) ([]models.PropertyPreference, error) {
	all, err := s.repo.ListPreferences(ctx, clientID)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, p := range all {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastViewed.After(out[j].LastViewed)
	})
	return out, nil
}

func (s *PreferenceService) Counts(ctx context.Context, clientID uuid.UUID) (models.PreferenceCounts, error) {
	var counts models.PreferenceCounts
	all, err := s.repo.ListPreferences(ctx, clientID)
	if err != nil {
		return counts, err
	}
	for _, p := range all {
		switch p.Category {
		case models.CategoryLove:
			counts.Love++
		case models.CategoryLike:
			counts.Like++
		case models.CategoryLeave:
			counts.Leave++
		}
	}
	return counts, nil
}

func (s *PreferenceService) Remove(ctx context.Context, clientID uuid.UUID, mlsNumber string) (bool, error) {
	return s.repo.DeletePreference(ctx, clientID, mlsNumber)
}
