package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchCriteria is a client's structured filter. Nil or empty fields impose no constraint.
type SearchCriteria struct {
	Cities        []string `json:"cities,omitempty"`
	Neighborhoods []string `json:"neighborhoods,omitempty"`
	MinPrice      *float64 `json:"minPrice,omitempty"`
	MaxPrice      *float64 `json:"maxPrice,omitempty"`
	PropertyTypes []string `json:"propertyTypes,omitempty"`
	MinBedrooms   *int     `json:"minBedrooms,omitempty"`
	MinBathrooms  *int     `json:"minBathrooms,omitempty"`
	MinSquareFeet *int     `json:"minSquareFeet,omitempty"`
	MaxSquareFeet *int     `json:"maxSquareFeet,omitempty"`
	Keywords      string   `json:"keywords,omitempty"`
}

// SavedSearch is a client's standing query. It references its client by id only;
// the store joins on read.
type SavedSearch struct {
	ID                      uuid.UUID      `json:"id" db:"id"`
	ClientID                uuid.UUID      `json:"client_id" db:"client_id"`
	Name                    string         `json:"search_name" db:"search_name"`
	Description             string         `json:"search_description" db:"search_description"`
	Criteria                SearchCriteria `json:"criteria" db:"criteria"`
	Schedule                Schedule       `json:"-"`
	AdminShadowNotification bool           `json:"admin_shadow_notification" db:"admin_shadow_notification"`
	IsActive                bool           `json:"is_active" db:"is_active"`
	LastRunAt               *time.Time     `json:"last_run_at" db:"last_run_at"`
	LastMatchCount          int            `json:"last_match_count" db:"last_match_count"`
	CreatedAt               time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at" db:"updated_at"`
}

// SavedSearchView is the JSON shape served to the portal, with the schedule flattened
type SavedSearchView struct {
	SavedSearch
	NotificationFrequency Frequency `json:"notification_frequency"`
	NotificationTime      string    `json:"notification_time,omitempty"`
	NotificationDays      []string  `json:"notification_days,omitempty"`
}

func (s *SavedSearch) View() SavedSearchView {
	freq, at, days := ScheduleFields(s.Schedule)
	return SavedSearchView{
		SavedSearch:           *s,
		NotificationFrequency: freq,
		NotificationTime:      at,
		NotificationDays:      days,
	}
}
