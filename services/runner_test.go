package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"idx_portal/identity"
	"idx_portal/models"
)

type runnerEnv struct {
	store    *fakeStore
	source   *fakeSource
	notifier *fakeNotifier
	runner   *Runner
	client   models.Client
	now      time.Time
}

func newRunnerEnv(t *testing.T, listings ...models.Listing) *runnerEnv {
	t.Helper()
	env := &runnerEnv{
		store:    newFakeStore(),
		source:   &fakeSource{listings: listings},
		notifier: &fakeNotifier{},
		client:   activeClient(),
		now:      at(1, 8, 0),
	}
	env.store.addClient(env.client)
	dispatcher := NewDispatcher(env.notifier, "admin@example.com")
	env.runner = NewRunner(env.store, NewMatcher(env.source), dispatcher)
	env.runner.SetClock(func() time.Time { return env.now })
	return env
}

func (env *runnerEnv) addSearch(name string, criteria models.SearchCriteria) *models.SavedSearch {
	return env.store.addSearch(models.SavedSearch{
		ID:       uuid.New(),
		ClientID: env.client.ID,
		Name:     name,
		Criteria: criteria,
		Schedule: models.Daily{At: models.TimeOfDay{Hour: 8}},
		IsActive: true,
	})
}

func TestRun_SecondRunFindsNothing(t *testing.T) {
	env := newRunnerEnv(t,
		activeListing("A", "Windsor", 1, at(1, 7, 0)),
		activeListing("B", "Windsor", 1, at(1, 7, 30)),
	)
	search := env.addSearch("Windsor homes", models.SearchCriteria{})

	n, err := env.runner.Run(context.Background(), search)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 matches, got %d", n)
	}
	if env.notifier.count() != 1 {
		t.Fatalf("expected one digest, got %d", env.notifier.count())
	}

	env.now = env.now.Add(time.Minute)
	n, err = env.runner.Run(context.Background(), search)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 matches on second run, got %d", n)
	}
	stored := env.store.search(search.ID)
	if stored.LastMatchCount != 0 {
		t.Fatalf("expected lastMatchCount 0, got %d", stored.LastMatchCount)
	}
	if !stored.LastRunAt.Equal(env.now) {
		t.Fatalf("expected lastRunAt %v, got %v", env.now, stored.LastRunAt)
	}
	if env.notifier.count() != 1 {
		t.Fatalf("second run must not notify, got %d digests", env.notifier.count())
	}
	if len(env.store.logs) != 1 {
		t.Fatalf("expected one log entry, got %d", len(env.store.logs))
	}
}

func TestRun_NoMatchesSkipsDispatch(t *testing.T) {
	env := newRunnerEnv(t)
	search := env.addSearch("Empty", models.SearchCriteria{})

	n, err := env.runner.Run(context.Background(), search)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 matches, got %d", n)
	}
	if env.notifier.count() != 0 {
		t.Fatalf("dispatch must not be invoked for an empty result")
	}
	if len(env.store.logs) != 0 {
		t.Fatalf("no log entry expected, got %d", len(env.store.logs))
	}
	if env.store.search(search.ID).LastRunAt == nil {
		t.Fatalf("metrics should update even with no matches")
	}
}

func TestRun_WritesNotificationLog(t *testing.T) {
	env := newRunnerEnv(t,
		activeListing("X1", "Windsor", 1, at(1, 6, 0)),
		activeListing("X2", "Windsor", 1, at(1, 7, 0)),
	)
	search := env.addSearch("Downtown", models.SearchCriteria{})
	search.AdminShadowNotification = true

	if _, err := env.runner.Run(context.Background(), search); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(env.store.logs) != 1 {
		t.Fatalf("expected one log entry, got %d", len(env.store.logs))
	}

	entry := env.store.logs[0]
	if entry.Count != 2 || len(entry.MLSNumbers) != 2 || entry.MLSNumbers[0] != "X2" {
		t.Fatalf("unexpected entry listings %v (count %d)", entry.MLSNumbers, entry.Count)
	}
	if !entry.ClientNotified || !entry.AdminNotified {
		t.Fatalf("expected client and admin notified, got %+v", entry)
	}
	if entry.Subject != "2 New Properties - Downtown" {
		t.Fatalf("unexpected subject %q", entry.Subject)
	}
	if entry.Type != models.NotificationAutomated {
		t.Fatalf("expected automated entry, got %s", entry.Type)
	}
	if entry.DigestKey != identity.DigestKey(search.ID, []string{"X1", "X2"}) {
		t.Fatalf("unexpected digest key %s", entry.DigestKey)
	}
}

func TestRun_InactiveClientIsError(t *testing.T) {
	env := newRunnerEnv(t, activeListing("A", "Windsor", 1, at(1, 7, 0)))
	expired := activeClient()
	expired.ExpiryDate = env.now.Add(-time.Hour)
	env.store.addClient(expired)

	search := env.addSearch("Expired", models.SearchCriteria{})
	search.ClientID = expired.ID

	_, err := env.runner.Run(context.Background(), search)
	if !errors.Is(err, ErrClientInactive) {
		t.Fatalf("expected ErrClientInactive, got %v", err)
	}
	if env.notifier.count() != 0 {
		t.Fatalf("expired client must not be notified")
	}
	if env.store.search(search.ID).LastRunAt == nil {
		t.Fatalf("cutoff should advance before the client check")
	}
}

func TestRun_MissingClientIsError(t *testing.T) {
	env := newRunnerEnv(t, activeListing("A", "Windsor", 1, at(1, 7, 0)))
	search := env.addSearch("Orphan", models.SearchCriteria{})
	search.ClientID = uuid.New()

	if _, err := env.runner.Run(context.Background(), search); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestRun_SourceFailureLeavesCutoff(t *testing.T) {
	env := newRunnerEnv(t)
	env.source.err = errors.New("connection reset")
	search := env.addSearch("Broken", models.SearchCriteria{})

	if _, err := env.runner.Run(context.Background(), search); err == nil {
		t.Fatalf("expected error from listing source")
	}
	if env.store.search(search.ID).LastRunAt != nil {
		t.Fatalf("cutoff must not move when the query failed")
	}
}

func TestRun_LockedSearchIsSkipped(t *testing.T) {
	env := newRunnerEnv(t, activeListing("A", "Windsor", 1, at(1, 7, 0)))
	search := env.addSearch("Locked", models.SearchCriteria{})
	env.runner.SetLocker(&fakeLocker{held: map[string]bool{"saved_search:" + search.ID.String(): true}})

	if _, err := env.runner.Run(context.Background(), search); !errors.Is(err, ErrSearchLocked) {
		t.Fatalf("expected ErrSearchLocked, got %v", err)
	}
	if env.source.calls != 0 {
		t.Fatalf("locked search must not query listings")
	}
}

func TestRun_HungStoreCallTimesOut(t *testing.T) {
	env := newRunnerEnv(t, activeListing("A", "Windsor", 1, at(1, 7, 0)))
	search := env.addSearch("Hung", models.SearchCriteria{})
	env.store.metricFn = func(ctx context.Context, _ uuid.UUID) error {
		<-ctx.Done()
		return ctx.Err()
	}
	env.runner.SetCallTimeout(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := env.runner.Run(context.Background(), search)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run never returned from a hung store")
	}
	if env.notifier.count() != 0 {
		t.Fatalf("nothing should be sent when the cutoff could not move")
	}
}

func TestRun_StaleCopyDoesNotResend(t *testing.T) {
	env := newRunnerEnv(t, activeListing("A", "Windsor", 1, at(1, 7, 0)))
	search := env.addSearch("Windsor homes", models.SearchCriteria{})
	stale := *search

	if n, err := env.runner.Run(context.Background(), search); err != nil || n != 1 {
		t.Fatalf("first run: n=%d err=%v", n, err)
	}

	n, err := env.runner.Run(context.Background(), &stale)
	if err != nil || n != 0 {
		t.Fatalf("run from a stale copy should be skipped: n=%d err=%v", n, err)
	}
	if env.notifier.count() != 1 || len(env.store.logs) != 1 {
		t.Fatalf("expected one digest and one log entry, got %d digests %d logs", env.notifier.count(), len(env.store.logs))
	}
	if env.source.calls != 1 {
		t.Fatalf("stale run must not query listings, got %d calls", env.source.calls)
	}
}

func TestRun_DeactivatedSinceSelectionIsSkipped(t *testing.T) {
	env := newRunnerEnv(t, activeListing("A", "Windsor", 1, at(1, 7, 0)))
	search := env.addSearch("Paused", models.SearchCriteria{})
	selected := *search
	search.IsActive = false

	if n, err := env.runner.Run(context.Background(), &selected); err != nil || n != 0 {
		t.Fatalf("expected skip, got n=%d err=%v", n, err)
	}
	if env.notifier.count() != 0 {
		t.Fatalf("deactivated search must not send")
	}
}

func TestRunManual_UsesStoredCutoff(t *testing.T) {
	env := newRunnerEnv(t, activeListing("A", "Windsor", 1, at(1, 7, 0)))
	search := env.addSearch("Windsor homes", models.SearchCriteria{})
	stale := *search
	if _, err := env.runner.Run(context.Background(), search); err != nil {
		t.Fatalf("first run: %v", err)
	}

	n, err := env.runner.RunManual(context.Background(), &stale)
	if err != nil {
		t.Fatalf("manual run: %v", err)
	}
	if n != 0 {
		t.Fatalf("manual run should start from the stored cutoff, got %d listings", n)
	}
	if stale.LastRunAt == nil || !stale.LastRunAt.Equal(env.now) {
		t.Fatalf("caller's copy should carry the new cutoff, got %v", stale.LastRunAt)
	}
}
