package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"idx_portal/models"
)

type fakeFeed struct {
	listings []models.Listing
	err      error
}

func (f *fakeFeed) FetchActive(context.Context) ([]models.Listing, error) {
	return f.listings, f.err
}

type fakeSink struct {
	replaced [][]models.Listing
	err      error
}

func (s *fakeSink) ReplaceListings(_ context.Context, listings []models.Listing) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.replaced = append(s.replaced, listings)
	return len(listings), nil
}

func TestRefresh_ReplacesListings(t *testing.T) {
	feed := &fakeFeed{listings: []models.Listing{
		activeListing("R1", "Windsor", 400000, baseTime),
		activeListing("R2", "Windsor", 500000, baseTime),
	}}
	sink := &fakeSink{}
	svc := NewRefreshService(feed, sink)
	svc.SetClock(func() time.Time { return baseTime })

	summary, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if summary.Fetched != 2 || summary.Stored != 2 || !summary.RefreshedAt.Equal(baseTime) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(sink.replaced) != 1 {
		t.Fatalf("expected one replace, got %d", len(sink.replaced))
	}
}

func TestRefresh_KeepsTableOnEmptyOrFailedFeed(t *testing.T) {
	sink := &fakeSink{}

	_, err := NewRefreshService(&fakeFeed{}, sink).Refresh(context.Background())
	if !errors.Is(err, ErrEmptyFeed) {
		t.Fatalf("expected ErrEmptyFeed, got %v", err)
	}

	_, err = NewRefreshService(&fakeFeed{err: errors.New("api down")}, sink).Refresh(context.Background())
	if err == nil {
		t.Fatalf("expected feed error")
	}
	if len(sink.replaced) != 0 {
		t.Fatalf("listing table should not be touched, got %d replaces", len(sink.replaced))
	}
}

func TestRefresh_SinkFailure(t *testing.T) {
	feed := &fakeFeed{listings: []models.Listing{activeListing("R1", "Windsor", 400000, baseTime)}}
	summary, err := NewRefreshService(feed, &fakeSink{err: errors.New("copy failed")}).Refresh(context.Background())
	if err == nil {
		t.Fatalf("expected sink error")
	}
	if summary.Fetched != 1 || summary.Stored != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
