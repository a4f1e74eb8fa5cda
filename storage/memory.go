package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"idx_portal/models"
	"idx_portal/services"
)

// MemoryListings is a ListingSource over an in-process listing set, loaded from a JSON
// fixtures file for local runs without a listing database.
type MemoryListings struct {
	mu       sync.RWMutex
	listings []models.Listing
}

func NewMemoryListings(listings []models.Listing) *MemoryListings {
	m := &MemoryListings{}
	m.ReplaceListings(context.Background(), listings)
	return m
}

// LoadListingsFile reads a JSON array of listings
func LoadListingsFile(path string) (*MemoryListings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var listings []models.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewMemoryListings(listings), nil
}

func (m *MemoryListings) FindNewMatching(ctx context.Context, criteria models.SearchCriteria, since *time.Time, limit int) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Listing
	for i := range m.listings {
		l := &m.listings[i]
		if !l.Eligible() {
			continue
		}
		if since != nil && !l.ListingDate.After(*since) {
			continue
		}
		if !services.Matches(&criteria, l) {
			continue
		}
		out = append(out, *l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryListings) GetListing(ctx context.Context, mlsNumber string) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.listings {
		if m.listings[i].MLSNumber == mlsNumber {
			l := m.listings[i]
			return &l, nil
		}
	}
	return nil, nil
}

// ReplaceListings swaps the whole set, keeping it sorted newest first
func (m *MemoryListings) ReplaceListings(ctx context.Context, listings []models.Listing) (int, error) {
	sorted := make([]models.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ListingDate.After(sorted[j].ListingDate)
	})

	m.mu.Lock()
	m.listings = sorted
	m.mu.Unlock()
	return len(sorted), nil
}
