package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationAutomated NotificationType = "automated"
	NotificationManual    NotificationType = "manual"
)

// NotificationLogEntry is the write-once audit record of one dispatch
type NotificationLogEntry struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	SearchID       uuid.UUID        `json:"saved_search_id" db:"saved_search_id"`
	ClientID       uuid.UUID        `json:"client_id" db:"client_id"`
	MLSNumbers     []string         `json:"properties_sent" db:"properties_sent"`
	Count          int              `json:"property_count" db:"property_count"`
	ClientNotified bool             `json:"client_notified" db:"client_notified"`
	AdminNotified  bool             `json:"admin_notified" db:"admin_notified"`
	Subject        string           `json:"email_subject" db:"email_subject"`
	DigestKey      string           `json:"digest_key" db:"digest_key"`
	Type           NotificationType `json:"notification_type" db:"notification_type"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// ClientActivity records account lifecycle events such as expiry reminders
type ClientActivity struct {
	ClientID  uuid.UUID `json:"client_id" db:"client_id"`
	Action    string    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	ActivityExpired        = "expired"
	ActivityExpiryReminder = "expiry_reminder_sent"
)

// DigestSubject is the subject line shared by client digests and the audit log
func DigestSubject(count int, searchName string) string {
	noun := "Properties"
	if count == 1 {
		noun = "Property"
	}
	if searchName == "" {
		return fmt.Sprintf("%d New %s Match Your Search", count, noun)
	}
	return fmt.Sprintf("%d New %s - %s", count, noun, searchName)
}
