package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"idx_portal/models"
)

// ReminderDays are the days-before-expiry on which a client gets a reminder
var ReminderDays = []int{14, 7}

// ClientRepository is the account lifecycle storage used by the expiry check
type ClientRepository interface {
	// ExpireClients flips active accounts whose expiry date is before now to expired
	// and returns them.
	ExpireClients(ctx context.Context, now time.Time) ([]models.Client, error)
	// ClientsExpiringBetween returns active accounts expiring in (from, to].
	ClientsExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Client, error)
	RecordClientActivity(ctx context.Context, a *models.ClientActivity) error
}

type ReminderSender interface {
	SendExpiryReminder(ctx context.Context, client *models.Client, daysLeft int) error
}

type ExpirySummary struct {
	Expired       int `json:"expired"`
	RemindersSent int `json:"reminders_sent"`
	Errors        int `json:"errors"`
}

// ExpiryService expires lapsed client accounts and warns those about to lapse
type ExpiryService struct {
	repo   ClientRepository
	sender ReminderSender
	now    func() time.Time
}

func NewExpiryService(repo ClientRepository, sender ReminderSender) *ExpiryService {
	return &ExpiryService{repo: repo, sender: sender, now: time.Now}
}

func (s *ExpiryService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CheckExpiry is meant to run once a day. Each reminder window is one day wide so a
// client is warned once per threshold.
func (s *ExpiryService) CheckExpiry(ctx context.Context) (ExpirySummary, error) {
	var summary ExpirySummary
	now := s.now()

	expired, err := s.repo.ExpireClients(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("expire clients: %w", err)
	}
	for i := range expired {
		summary.Expired++
		s.record(ctx, &models.ClientActivity{
			ClientID:  expired[i].ID,
			Action:    models.ActivityExpired,
			Details:   fmt.Sprintf("account expired on %s", expired[i].ExpiryDate.Format(time.DateOnly)),
			CreatedAt: now,
		})
	}

	var errs []error
	for _, days := range ReminderDays {
		from := now.Add(time.Duration(days-1) * 24 * time.Hour)
		to := now.Add(time.Duration(days) * 24 * time.Hour)
		clients, err := s.repo.ClientsExpiringBetween(ctx, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("clients expiring in %d days: %w", days, err))
			summary.Errors++
			continue
		}

		for i := range clients {
			c := &clients[i]
			if err := s.sender.SendExpiryReminder(ctx, c, days); err != nil {
				slog.Error("expiry reminder failed", "client_id", c.ID, "error", err)
				summary.Errors++
				continue
			}
			summary.RemindersSent++
			s.record(ctx, &models.ClientActivity{
				ClientID:  c.ID,
				Action:    models.ActivityExpiryReminder,
				Details:   fmt.Sprintf("%d days remaining", days),
				CreatedAt: now,
			})
		}
	}

	slog.Info("expiry check complete", "expired", summary.Expired, "reminders", summary.RemindersSent, "errors", summary.Errors)
	return summary, errors.Join(errs...)
}

func (s *ExpiryService) record(ctx context.Context, a *models.ClientActivity) {
	if err := s.repo.RecordClientActivity(ctx, a); err != nil {
		slog.Warn("record client activity failed", "client_id", a.ClientID, "action", a.Action, "error", err)
	}
}
