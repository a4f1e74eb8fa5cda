package models

import (
	"time"

	"github.com/google/uuid"
)

type PreferenceCategory string

// Love It / Like It / Leave It
const (
	CategoryLove  PreferenceCategory = "love"
	CategoryLike  PreferenceCategory = "like"
	CategoryLeave PreferenceCategory = "leave"
)

func (c PreferenceCategory) Valid() bool {
	switch c {
	case CategoryLove, CategoryLike, CategoryLeave:
		return true
	}
	return false
}

// PropertyPreference tags a listing for a client.
// Snapshot is a point-in-time copy of the listing taken when it was tagged; it is a
// display cache and never a live reference to the listing feed.
type PropertyPreference struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	ClientID    uuid.UUID          `json:"client_id" db:"client_id"`
	MLSNumber   string             `json:"property_mls_number" db:"property_mls_number"`
	Address     string             `json:"property_address" db:"property_address"`
	Snapshot    Listing            `json:"property_data" db:"property_data"`
	Category    PreferenceCategory `json:"category" db:"category"`
	Notes       string             `json:"client_notes" db:"client_notes"`
	ViewCount   int                `json:"view_count" db:"view_count"`
	FirstViewed time.Time          `json:"first_viewed_at" db:"first_viewed_at"`
	LastViewed  time.Time          `json:"last_viewed_at" db:"last_viewed_at"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// PreferenceCounts is the per-category tally shown on the client dashboard
type PreferenceCounts struct {
	Love  int `json:"love"`
	Like  int `json:"like"`
	Leave int `json:"leave"`
}
