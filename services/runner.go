package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"idx_portal/identity"
	"idx_portal/models"
)

// Runner executes one saved search end to end: find new listings, advance the
// search's cutoff, notify and write the audit entry.
type Runner struct {
	store      Store
	matcher    *Matcher
	dispatcher *Dispatcher
	locker     Locker
	logFn      RunLogFunc
	now        func() time.Time
	timeout    time.Duration
}

func NewRunner(store Store, matcher *Matcher, dispatcher *Dispatcher) *Runner {
	return &Runner{
		store:      store,
		matcher:    matcher,
		dispatcher: dispatcher,
		locker:     NoopLocker{},
		logFn:      NoOpRunLog,
		now:        time.Now,
	}
}

func (r *Runner) SetLocker(l Locker) {
	if l != nil {
		r.locker = l
	}
}

func (r *Runner) SetLogger(fn RunLogFunc) {
	if fn != nil {
		r.logFn = fn
	}
}

func (r *Runner) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// SetCallTimeout bounds every store and listing call the runner makes. Zero disables
// the bound.
func (r *Runner) SetCallTimeout(d time.Duration) {
	r.timeout = d
}

func (r *Runner) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Run executes search as an automated run and returns how many new listings matched
func (r *Runner) Run(ctx context.Context, search *models.SavedSearch) (int, error) {
	return r.run(ctx, search, models.NotificationAutomated)
}

// RunManual executes search on demand; the audit entry is marked manual
func (r *Runner) RunManual(ctx context.Context, search *models.SavedSearch) (int, error) {
	return r.run(ctx, search, models.NotificationManual)
}

func (r *Runner) run(ctx context.Context, search *models.SavedSearch, kind models.NotificationType) (int, error) {
	sid := search.ID.String()

	lockCtx, cancelLock := r.callCtx(ctx)
	release, ok, err := r.locker.Acquire(lockCtx, "saved_search:"+sid)
	cancelLock()
	if err != nil {
		slog.Warn("search lock unavailable, running unlocked", "search_id", sid, "error", err)
	} else if !ok {
		return 0, ErrSearchLocked
	} else {
		defer release()
	}

	// The copy handed in may predate another run of this search; the stored row
	// holds the cutoff to use.
	current, err := r.reload(ctx, search.ID)
	if err != nil {
		return 0, err
	}
	if kind == models.NotificationAutomated {
		if !sameInstant(search.LastRunAt, current.LastRunAt) {
			r.logFn(ctx, models.LogLevelDebug, sid, "already run since it was selected")
			return 0, nil
		}
		if !current.IsActive {
			r.logFn(ctx, models.LogLevelDebug, sid, "deactivated since it was selected")
			return 0, nil
		}
	}

	now := r.now()

	queryCtx, cancelQuery := r.callCtx(ctx)
	listings, err := r.matcher.FindNew(queryCtx, current.Criteria, current.LastRunAt)
	cancelQuery()
	if err != nil {
		return 0, fmt.Errorf("find new listings: %w", err)
	}

	// The cutoff moves before anything is sent, so a later failure cannot resend
	// these listings on the next run.
	metricsCtx, cancelMetrics := r.callCtx(ctx)
	err = r.store.UpdateSearchRunMetrics(metricsCtx, current.ID, len(listings), now)
	cancelMetrics()
	if err != nil {
		return 0, fmt.Errorf("update run metrics: %w", err)
	}
	for _, s := range []*models.SavedSearch{search, current} {
		s.LastRunAt = &now
		s.LastMatchCount = len(listings)
	}

	if len(listings) == 0 {
		r.logFn(ctx, models.LogLevelDebug, sid, "no new listings")
		return 0, nil
	}

	clientCtx, cancelClient := r.callCtx(ctx)
	client, err := r.store.GetClientByID(clientCtx, current.ClientID)
	cancelClient()
	if err != nil {
		return len(listings), fmt.Errorf("load client %s: %w", current.ClientID, err)
	}
	if client == nil {
		return len(listings), fmt.Errorf("%w: %s", ErrClientNotFound, current.ClientID)
	}
	if !client.IsActive(now) {
		return len(listings), fmt.Errorf("%w: %s", ErrClientInactive, client.ID)
	}

	result, dispatchErr := r.dispatcher.Dispatch(ctx, current, client, listings)
	if result.Any() {
		mls := models.MLSNumbers(listings)
		entry := &models.NotificationLogEntry{
			SearchID:       current.ID,
			ClientID:       client.ID,
			MLSNumbers:     mls,
			Count:          len(listings),
			ClientNotified: result.ClientSent,
			AdminNotified:  result.ShadowSent,
			Subject:        models.DigestSubject(len(listings), current.Name),
			DigestKey:      identity.DigestKey(current.ID, mls),
			Type:           kind,
			CreatedAt:      now,
		}
		logCtx, cancelLog := r.callCtx(ctx)
		err := r.store.AppendNotificationLog(logCtx, entry)
		cancelLog()
		if err != nil {
			return len(listings), fmt.Errorf("append notification log: %w", err)
		}
	}
	if dispatchErr != nil {
		return len(listings), fmt.Errorf("dispatch: %w", dispatchErr)
	}

	r.logFn(ctx, models.LogLevelInfo, sid, fmt.Sprintf("sent %d new listings (client=%t shadow=%t)", len(listings), result.ClientSent, result.ShadowSent))
	return len(listings), nil
}

func (r *Runner) reload(ctx context.Context, id uuid.UUID) (*models.SavedSearch, error) {
	loadCtx, cancel := r.callCtx(ctx)
	defer cancel()
	current, err := r.store.GetSearchByID(loadCtx, id)
	if err != nil {
		return nil, fmt.Errorf("reload search: %w", err)
	}
	if current == nil {
		return nil, ErrSearchNotFound
	}
	return current, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
