package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"idx_portal/models"
)

// MaxResults caps how many new listings one run considers
const MaxResults = 350

// Matcher finds listings that satisfy a saved search's criteria
type Matcher struct {
	source ListingSource
}

func NewMatcher(source ListingSource) *Matcher {
	return &Matcher{source: source}
}

// Matches reports whether listing satisfies criteria. Every set constraint must hold;
// unset constraints are ignored. Neighborhoods and keywords are stored with the search
// but not used for matching.
func Matches(criteria *models.SearchCriteria, listing *models.Listing) bool {
	if criteria == nil || listing == nil {
		return false
	}

	if len(criteria.Cities) > 0 && !containsFold(criteria.Cities, listing.City) {
		return false
	}
	if criteria.MinPrice != nil && listing.Price < *criteria.MinPrice {
		return false
	}
	if criteria.MaxPrice != nil && listing.Price > *criteria.MaxPrice {
		return false
	}
	if len(criteria.PropertyTypes) > 0 && !containsFold(criteria.PropertyTypes, listing.PropertyType) {
		return false
	}
	if !atLeast(listing.Bedrooms, criteria.MinBedrooms) {
		return false
	}
	if !atLeast(listing.Bathrooms, criteria.MinBathrooms) {
		return false
	}
	if !atLeast(listing.SquareFeet, criteria.MinSquareFeet) {
		return false
	}
	if criteria.MaxSquareFeet != nil {
		if listing.SquareFeet == nil || *listing.SquareFeet > *criteria.MaxSquareFeet {
			return false
		}
	}

	return true
}

// FindNew returns eligible matching listings newer than since, newest first, at most
// MaxResults. A nil since means no cutoff.
func (m *Matcher) FindNew(ctx context.Context, criteria models.SearchCriteria, since *time.Time) ([]models.Listing, error) {
	candidates, err := m.source.FindNewMatching(ctx, criteria, since, MaxResults)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}

	// Re-check locally; sources may apply a coarser filter.
	out := make([]models.Listing, 0, len(candidates))
	for i := range candidates {
		l := &candidates[i]
		if !l.Eligible() {
			continue
		}
		if since != nil && !l.ListingDate.After(*since) {
			continue
		}
		if !Matches(&criteria, l) {
			continue
		}
		out = append(out, *l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ListingDate.After(out[j].ListingDate)
	})
	if len(out) > MaxResults {
		out = out[:MaxResults]
	}
	return out, nil
}

// atLeast fails when the listing value is unknown and a minimum is set
func atLeast(value, min *int) bool {
	if min == nil {
		return true
	}
	return value != nil && *value >= *min
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
