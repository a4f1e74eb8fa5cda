package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"idx_portal/models"
)

var (
	ErrSearchNotFound   = errors.New("search not found")
	ErrClientNotFound   = errors.New("client not found")
	ErrClientInactive   = errors.New("client account is not active")
	ErrSearchLocked     = errors.New("search is already running elsewhere")
	ErrNoAdminRecipient = errors.New("admin shadow recipient not configured")
	ErrInvalidInput     = errors.New("invalid input")
)

// Store is the persistence the run loop depends on. Lookups return (nil, nil) when
// the row does not exist.
type Store interface {
	GetActiveSearches(ctx context.Context) ([]models.SavedSearch, error)
	GetSearchByID(ctx context.Context, id uuid.UUID) (*models.SavedSearch, error)
	UpdateSearchRunMetrics(ctx context.Context, id uuid.UUID, matchCount int, at time.Time) error
	GetClientByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
	AppendNotificationLog(ctx context.Context, entry *models.NotificationLogEntry) error
}

// ListingSource returns eligible listings matching criteria, newest first, listed
// strictly after since when it is set.
type ListingSource interface {
	FindNewMatching(ctx context.Context, criteria models.SearchCriteria, since *time.Time, limit int) ([]models.Listing, error)
}

// Notifier delivers digests. Implementations report failures as errors.
type Notifier interface {
	SendClientDigest(ctx context.Context, client *models.Client, search *models.SavedSearch, listings []models.Listing) error
	SendAdminShadowDigest(ctx context.Context, adminAddress string, client *models.Client, search *models.SavedSearch, listings []models.Listing) error
}

// Locker hands out per-search advisory locks across overlapping batch invocations.
// ok is false when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// NoopLocker always grants the lock
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

// RunLogFunc receives per-search progress lines from the run loop. ctx is the run's
// context, so a sink can attribute the line to the batch that carries it.
type RunLogFunc func(ctx context.Context, level models.LogLevel, searchID, message string)

// NoOpRunLog does nothing (default)
var NoOpRunLog RunLogFunc = func(context.Context, models.LogLevel, string, string) {}
