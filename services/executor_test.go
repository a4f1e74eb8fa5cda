package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"idx_portal/models"
)

type executorEnv struct {
	*runnerEnv
	exec *Executor
}

func newExecutorEnv(t *testing.T, listings ...models.Listing) *executorEnv {
	t.Helper()
	env := newRunnerEnv(t, listings...)
	exec := NewExecutor(env.store, env.runner)
	exec.SetLocation(time.UTC)
	exec.SetClock(func() time.Time { return env.now })
	return &executorEnv{runnerEnv: env, exec: exec}
}

func TestExecuteDueSearches_FaultIsolation(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		env := newExecutorEnv(t,
			activeListing("A1", "Amherstburg", 1, at(1, 7, 0)),
			activeListing("B1", "Belle River", 1, at(1, 7, 0)),
			activeListing("B2", "Belle River", 1, at(1, 7, 1)),
			activeListing("C1", "Chatham", 1, at(1, 7, 0)),
			activeListing("C2", "Chatham", 1, at(1, 7, 1)),
			activeListing("C3", "Chatham", 1, at(1, 7, 2)),
		)
		env.exec.SetConcurrency(concurrency)

		s1 := env.addSearch("one", models.SearchCriteria{Cities: []string{"Amherstburg"}})
		s2 := env.addSearch("two", models.SearchCriteria{Cities: []string{"Belle River"}})
		s3 := env.addSearch("three", models.SearchCriteria{Cities: []string{"Chatham"}})
		env.notifier.failFor = map[uuid.UUID]bool{s2.ID: true}

		summary, err := env.exec.ExecuteDueSearches(context.Background())
		if err != nil {
			t.Fatalf("batch: %v", err)
		}
		if summary.Executed != 3 {
			t.Fatalf("concurrency %d: expected executed 3, got %d", concurrency, summary.Executed)
		}
		if summary.Errors != 1 {
			t.Fatalf("concurrency %d: expected errors 1, got %d", concurrency, summary.Errors)
		}
		if summary.Matches != 4 {
			t.Fatalf("concurrency %d: expected matches 4, got %d", concurrency, summary.Matches)
		}
		for _, s := range []*models.SavedSearch{s1, s2, s3} {
			if env.store.search(s.ID).LastRunAt == nil {
				t.Fatalf("concurrency %d: search %s lastRunAt did not advance", concurrency, s.Name)
			}
		}
		if got := env.store.search(s2.ID).LastMatchCount; got != 2 {
			t.Fatalf("concurrency %d: expected failed search lastMatchCount 2, got %d", concurrency, got)
		}
	}
}

func TestExecuteDueSearches_PanicIsCountedAsError(t *testing.T) {
	env := newExecutorEnv(t, activeListing("A1", "Windsor", 1, at(1, 7, 0)))
	s1 := env.addSearch("panics", models.SearchCriteria{})
	env.addSearch("fine", models.SearchCriteria{})
	env.store.metricFn = func(_ context.Context, id uuid.UUID) error {
		if id == s1.ID {
			panic("boom")
		}
		return nil
	}

	summary, err := env.exec.ExecuteDueSearches(context.Background())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if summary.Executed != 2 || summary.Errors != 1 || summary.Matches != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestExecuteDueSearches_SkipsNotDue(t *testing.T) {
	env := newExecutorEnv(t, activeListing("A1", "Windsor", 1, at(1, 7, 0)))
	due := env.addSearch("due", models.SearchCriteria{})
	later := env.addSearch("later", models.SearchCriteria{})
	later.Schedule = models.Daily{At: models.TimeOfDay{Hour: 9}}
	paused := env.addSearch("paused", models.SearchCriteria{})
	paused.IsActive = false

	summary, err := env.exec.ExecuteDueSearches(context.Background())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if summary.Executed != 1 {
		t.Fatalf("expected 1 executed, got %d", summary.Executed)
	}
	if env.store.search(due.ID).LastRunAt == nil {
		t.Fatalf("due search should have run")
	}
	if env.store.search(later.ID).LastRunAt != nil {
		t.Fatalf("search scheduled for 09:00 should not have run")
	}

	// a second trigger in the same minute must not run it again
	summary, err = env.exec.ExecuteDueSearches(context.Background())
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if summary.Executed != 0 {
		t.Fatalf("expected nothing executed in the same minute, got %d", summary.Executed)
	}
}

func TestExecuteDueSearches_DiscoveryFailureIsFatal(t *testing.T) {
	env := newExecutorEnv(t)
	env.store.listErr = errors.New("database unreachable")

	if _, err := env.exec.ExecuteDueSearches(context.Background()); err == nil {
		t.Fatalf("expected discovery failure to fail the batch")
	}
}

func TestExecuteDueSearches_HungStoreTimesOut(t *testing.T) {
	env := newExecutorEnv(t)
	env.addSearch("any", models.SearchCriteria{})
	env.store.listHang = true
	env.exec.SetCallTimeout(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := env.exec.ExecuteDueSearches(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("batch never returned from a hung store")
	}
}

func TestExecuteSearchByID(t *testing.T) {
	env := newExecutorEnv(t, activeListing("A1", "Windsor", 1, at(1, 7, 0)))
	search := env.addSearch("manual", models.SearchCriteria{})
	search.Schedule = models.Daily{At: models.TimeOfDay{Hour: 23}}
	search.IsActive = false

	res := env.exec.ExecuteSearchByID(context.Background(), search.ID.String())
	if !res.Success || res.Matches != 1 {
		t.Fatalf("forced run should succeed with 1 match, got %+v", res)
	}
	if len(env.store.logs) != 1 || env.store.logs[0].Type != models.NotificationManual {
		t.Fatalf("expected a manual log entry, got %+v", env.store.logs)
	}

	res = env.exec.ExecuteSearchByID(context.Background(), uuid.New().String())
	if res.Success || res.Error != "Search not found" {
		t.Fatalf("expected Search not found, got %+v", res)
	}

	res = env.exec.ExecuteSearchByID(context.Background(), "not-a-uuid")
	if res.Success || res.Error == "" {
		t.Fatalf("expected failure for malformed id, got %+v", res)
	}
}

func TestExecuteSearchByID_ReportsRunError(t *testing.T) {
	env := newExecutorEnv(t, activeListing("A1", "Windsor", 1, at(1, 7, 0)))
	search := env.addSearch("failing", models.SearchCriteria{})
	env.notifier.failFor = map[uuid.UUID]bool{search.ID: true}

	res := env.exec.ExecuteSearchByID(context.Background(), search.ID.String())
	if res.Success || res.Error == "" {
		t.Fatalf("expected failure result, got %+v", res)
	}
}
