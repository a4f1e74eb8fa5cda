package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"idx_portal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	searches map[uuid.UUID]*models.SavedSearch
	clients  map[uuid.UUID]*models.Client
	logs     []models.NotificationLogEntry
	listErr  error
	metricFn func(ctx context.Context, id uuid.UUID) error
	listHang bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		searches: make(map[uuid.UUID]*models.SavedSearch),
		clients:  make(map[uuid.UUID]*models.Client),
	}
}

func (s *fakeStore) addSearch(search models.SavedSearch) *models.SavedSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := search
	s.searches[search.ID] = &cp
	return &cp
}

func (s *fakeStore) addClient(c models.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = &c
}

func (s *fakeStore) search(id uuid.UUID) models.SavedSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.searches[id]
}

func (s *fakeStore) GetActiveSearches(ctx context.Context) ([]models.SavedSearch, error) {
	if s.listHang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.SavedSearch
	for _, search := range s.searches {
		if search.IsActive {
			out = append(out, *search)
		}
	}
	return out, nil
}

func (s *fakeStore) GetSearchByID(ctx context.Context, id uuid.UUID) (*models.SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search, ok := s.searches[id]
	if !ok {
		return nil, nil
	}
	cp := *search
	return &cp, nil
}

func (s *fakeStore) UpdateSearchRunMetrics(ctx context.Context, id uuid.UUID, matchCount int, at time.Time) error {
	if s.metricFn != nil {
		if err := s.metricFn(ctx, id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	search, ok := s.searches[id]
	if !ok {
		return errors.New("no such search")
	}
	search.LastRunAt = &at
	search.LastMatchCount = matchCount
	return nil
}

func (s *fakeStore) GetClientByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) AppendNotificationLog(ctx context.Context, entry *models.NotificationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

// fakeSource hands back every listing it holds and leaves filtering to the matcher
type fakeSource struct {
	mu       sync.Mutex
	listings []models.Listing
	err      error
	calls    int
}

func (f *fakeSource) FindNewMatching(ctx context.Context, criteria models.SearchCriteria, since *time.Time, limit int) ([]models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Listing, len(f.listings))
	copy(out, f.listings)
	return out, nil
}

type sentDigest struct {
	to       string
	searchID uuid.UUID
	count    int
	shadow   bool
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []sentDigest
	failFor  map[uuid.UUID]bool
	panicFor map[uuid.UUID]bool
	failAll  bool
}

func (n *fakeNotifier) SendClientDigest(ctx context.Context, client *models.Client, search *models.SavedSearch, listings []models.Listing) error {
	if n.panicFor[search.ID] {
		panic("smtp exploded")
	}
	if n.failAll || n.failFor[search.ID] {
		return errors.New("smtp: connection refused")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentDigest{to: client.Email, searchID: search.ID, count: len(listings)})
	return nil
}

func (n *fakeNotifier) SendAdminShadowDigest(ctx context.Context, adminAddress string, client *models.Client, search *models.SavedSearch, listings []models.Listing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentDigest{to: adminAddress, searchID: search.ID, count: len(listings), shadow: true})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeLocker struct {
	held map[string]bool
}

func (l *fakeLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	if l.held[key] {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func intPtr(v int) *int             { return &v }
func floatPtr(v float64) *float64    { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func activeListing(mls, city string, price float64, listed time.Time) models.Listing {
	return models.Listing{
		ID:           uuid.New(),
		MLSNumber:    mls,
		City:         city,
		Price:        price,
		PropertyType: "Detached",
		Bedrooms:     intPtr(3),
		Bathrooms:    intPtr(2),
		SquareFeet:   intPtr(1800),
		Status:       models.ListingStatusActive,
		PermitIDX:    true,
		ListingDate:  listed,
	}
}

func activeClient() models.Client {
	return models.Client{
		ID:                      uuid.New(),
		Name:                    "Jane Buyer",
		Email:                   "jane@example.com",
		Status:                  models.ClientStatusActive,
		NotificationPreferences: models.NotificationPreferences{Email: true},
	}
}
