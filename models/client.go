package models

import (
	"time"

	"github.com/google/uuid"
)

type ClientStatus string

const (
	ClientStatusActive    ClientStatus = "active"
	ClientStatusExpired   ClientStatus = "expired"
	ClientStatusSuspended ClientStatus = "suspended"
)

type NotificationPreferences struct {
	Email bool `json:"email" db:"notification_email"`
	SMS   bool `json:"sms" db:"notification_sms"`
}

// Client is a portal account owning saved searches
type Client struct {
	ID                      uuid.UUID               `json:"id" db:"id"`
	Name                    string                  `json:"name" db:"name"`
	Email                   string                  `json:"email" db:"email"`
	Phone                   string                  `json:"phone" db:"phone"`
	Status                  ClientStatus            `json:"status" db:"status"`
	ExpiryDate              time.Time               `json:"expiry_date" db:"expiry_date"`
	NotificationPreferences NotificationPreferences `json:"notification_preferences"`
	CreatedAt               time.Time               `json:"created_at" db:"created_at"`
}

// IsActive reports whether the account may receive notifications at now.
// A zero expiry date means the account never expires.
func (c *Client) IsActive(now time.Time) bool {
	if c.Status != ClientStatusActive {
		return false
	}
	return c.ExpiryDate.IsZero() || now.Before(c.ExpiryDate)
}

// DaysUntilExpiry rounds up like the reminder emails expect
func (c *Client) DaysUntilExpiry(now time.Time) int {
	d := c.ExpiryDate.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}
