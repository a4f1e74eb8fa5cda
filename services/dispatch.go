package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"idx_portal/models"
)

// DispatchResult records which recipients accepted a digest
type DispatchResult struct {
	ClientSent bool
	ShadowSent bool
}

// Any reports whether at least one message went out
func (r DispatchResult) Any() bool {
	return r.ClientSent || r.ShadowSent
}

// Dispatcher sends one search's digest to the client and, when the search asks for
// it, a shadow copy to the portal admin. Each send is isolated from the other.
type Dispatcher struct {
	notifier   Notifier
	adminEmail string
	timeout    time.Duration
}

func NewDispatcher(notifier Notifier, adminEmail string) *Dispatcher {
	return &Dispatcher{notifier: notifier, adminEmail: adminEmail}
}

// SetTimeout bounds each individual send. Zero disables the bound.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// Dispatch sends the digest. Failed sends are joined into the returned error; the
// result still reports every send that succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, search *models.SavedSearch, client *models.Client, listings []models.Listing) (DispatchResult, error) {
	var result DispatchResult
	if len(listings) == 0 {
		return result, nil
	}

	var errs []error

	if client.NotificationPreferences.Email {
		err := d.send(ctx, func(ctx context.Context) error {
			return d.notifier.SendClientDigest(ctx, client, search, listings)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("client digest to %s: %w", client.Email, err))
		} else {
			result.ClientSent = true
		}
	} else {
		slog.Debug("client opted out of email", "client_id", client.ID, "search_id", search.ID)
	}

	if search.AdminShadowNotification {
		if d.adminEmail == "" {
			errs = append(errs, ErrNoAdminRecipient)
		} else {
			err := d.send(ctx, func(ctx context.Context) error {
				return d.notifier.SendAdminShadowDigest(ctx, d.adminEmail, client, search, listings)
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("admin shadow digest: %w", err))
			} else {
				result.ShadowSent = true
			}
		}
	}

	return result, errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return fn(ctx)
}
