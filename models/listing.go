package models

import (
	"time"

	"github.com/google/uuid"
)

type ListingStatus string

// Listing status
const (
	ListingStatusActive    ListingStatus = "Active"
	ListingStatusPending   ListingStatus = "Pending"
	ListingStatusSold      ListingStatus = "Sold"
	ListingStatusExpired   ListingStatus = "Expired"
	ListingStatusWithdrawn ListingStatus = "Withdrawn"
)

// Listing is a normalized MLS listing as served by a ListingSource.
// Listings are replaced wholesale on each data refresh; the engine only reads them.
type Listing struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	MLSNumber    string        `json:"mls_number" db:"mls_number"`
	Brokerage    string        `json:"listing_brokerage" db:"listing_brokerage"`
	Address      string        `json:"address" db:"address"`
	City         string        `json:"city" db:"city"`
	Province     string        `json:"province" db:"province"`
	PostalCode   string        `json:"postal_code" db:"postal_code"`
	Price        float64       `json:"price" db:"price"`
	PropertyType string        `json:"property_type" db:"property_type"`
	Bedrooms     *int          `json:"bedrooms" db:"bedrooms"`
	Bathrooms    *int          `json:"bathrooms" db:"bathrooms"`
	SquareFeet   *int          `json:"square_feet" db:"square_feet"`
	Description  string        `json:"description" db:"description"`
	PhotoURL     string        `json:"photo_url" db:"photo_url"`
	Latitude     float64       `json:"latitude" db:"latitude"`
	Longitude    float64       `json:"longitude" db:"longitude"`
	Status       ListingStatus `json:"status" db:"status"`
	ListingDate  time.Time     `json:"listing_date" db:"listing_date"`
	LastUpdated  time.Time     `json:"last_updated" db:"last_updated"`
	PermitIDX    bool          `json:"permit_idx" db:"permit_idx"`
}

// Eligible reports whether the listing may be shown publicly at all
func (l *Listing) Eligible() bool {
	return l.Status == ListingStatusActive && l.PermitIDX
}

// MLSNumbers returns the natural keys of the given listings in order
func MLSNumbers(listings []Listing) []string {
	out := make([]string, 0, len(listings))
	for i := range listings {
		out = append(out, listings[i].MLSNumber)
	}
	return out
}
