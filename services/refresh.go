package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"idx_portal/models"
)

// ErrEmptyFeed is returned instead of wiping the listing table with nothing
var ErrEmptyFeed = errors.New("listing feed returned no listings")

// ListingFeed supplies the full current listing set
type ListingFeed interface {
	FetchActive(ctx context.Context) ([]models.Listing, error)
}

// ListingSink replaces the stored listing set and reports how many rows were kept
type ListingSink interface {
	ReplaceListings(ctx context.Context, listings []models.Listing) (int, error)
}

type RefreshSummary struct {
	Fetched     int       `json:"fetched"`
	Stored      int       `json:"stored"`
	RefreshedAt time.Time `json:"timestamp"`
}

// RefreshService swaps the local listing table for a fresh copy of the feed
type RefreshService struct {
	feed ListingFeed
	sink ListingSink
	now  func() time.Time
}

func NewRefreshService(feed ListingFeed, sink ListingSink) *RefreshService {
	return &RefreshService{feed: feed, sink: sink, now: time.Now}
}

func (s *RefreshService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *RefreshService) Refresh(ctx context.Context) (RefreshSummary, error) {
	summary := RefreshSummary{RefreshedAt: s.now()}

	listings, err := s.feed.FetchActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("fetch listings: %w", err)
	}
	summary.Fetched = len(listings)
	if len(listings) == 0 {
		return summary, ErrEmptyFeed
	}

	stored, err := s.sink.ReplaceListings(ctx, listings)
	if err != nil {
		return summary, fmt.Errorf("replace listings: %w", err)
	}
	summary.Stored = stored

	slog.Info("listing refresh complete", "fetched", summary.Fetched, "stored", summary.Stored)
	return summary, nil
}
