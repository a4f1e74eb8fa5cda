package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"idx_portal/models"
)

// BatchSummary is the outcome of one ExecuteDueSearches call. Executed counts every
// due search attempted, Matches sums new listings over successful runs only.
type BatchSummary struct {
	Executed int `json:"executed"`
	Matches  int `json:"matches"`
	Errors   int `json:"errors"`
}

// ManualResult is the outcome of an on-demand run
type ManualResult struct {
	Success bool   `json:"success"`
	Matches int    `json:"matches"`
	Error   string `json:"error,omitempty"`
}

// Executor selects due searches and runs them, isolating each search's failure
type Executor struct {
	store       Store
	runner      *Runner
	logFn       RunLogFunc
	now         func() time.Time
	loc         *time.Location
	concurrency int
	timeout     time.Duration
}

func NewExecutor(store Store, runner *Runner) *Executor {
	return &Executor{
		store:       store,
		runner:      runner,
		logFn:       NoOpRunLog,
		now:         time.Now,
		loc:         time.Local,
		concurrency: 1,
	}
}

// SetConcurrency sets how many searches run at once within a batch
func (e *Executor) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	e.concurrency = n
}

// SetLocation sets the zone schedules are evaluated in
func (e *Executor) SetLocation(loc *time.Location) {
	if loc != nil {
		e.loc = loc
	}
}

func (e *Executor) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// SetCallTimeout bounds the executor's own store reads. Zero disables the bound.
func (e *Executor) SetCallTimeout(d time.Duration) {
	e.timeout = d
}

func (e *Executor) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Executor) SetLogger(fn RunLogFunc) {
	if fn != nil {
		e.logFn = fn
	}
}

// DueSearches loads active searches and keeps those due at now
func (e *Executor) DueSearches(ctx context.Context, now time.Time) ([]models.SavedSearch, error) {
	loadCtx, cancel := e.callCtx(ctx)
	searches, err := e.store.GetActiveSearches(loadCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load active searches: %w", err)
	}

	now = now.In(e.loc)
	due := searches[:0]
	for i := range searches {
		if IsDue(&searches[i], now) {
			due = append(due, searches[i])
		}
	}
	return due, nil
}

// ExecuteDueSearches runs every search due now. One search failing never stops the
// others. Only a failure to load the search list fails the whole batch.
func (e *Executor) ExecuteDueSearches(ctx context.Context) (BatchSummary, error) {
	// Runs complete even if the trigger that started them goes away.
	ctx = context.WithoutCancel(ctx)

	var summary BatchSummary
	due, err := e.DueSearches(ctx, e.now())
	if err != nil {
		return summary, err
	}
	if len(due) == 0 {
		return summary, nil
	}

	slog.Info("executing due searches", "count", len(due), "concurrency", e.concurrency)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for i := range due {
		search := &due[i]
		g.Go(func() error {
			n, err := e.runSafely(ctx, search, e.runner.Run)

			mu.Lock()
			defer mu.Unlock()
			summary.Executed++
			if err != nil {
				summary.Errors++
				return nil
			}
			summary.Matches += n
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("batch complete", "executed", summary.Executed, "matches", summary.Matches, "errors", summary.Errors)
	return summary, nil
}

// ExecuteSearchByID runs one search on demand regardless of schedule or active flag
func (e *Executor) ExecuteSearchByID(ctx context.Context, id string) ManualResult {
	ctx = context.WithoutCancel(ctx)

	sid, err := uuid.Parse(id)
	if err != nil {
		return ManualResult{Error: "Search not found"}
	}

	loadCtx, cancel := e.callCtx(ctx)
	search, err := e.store.GetSearchByID(loadCtx, sid)
	cancel()
	if err != nil {
		return ManualResult{Error: err.Error()}
	}
	if search == nil {
		return ManualResult{Error: "Search not found"}
	}

	n, err := e.runSafely(ctx, search, e.runner.RunManual)
	if err != nil {
		return ManualResult{Error: err.Error()}
	}
	return ManualResult{Success: true, Matches: n}
}

func (e *Executor) runSafely(ctx context.Context, search *models.SavedSearch, run func(context.Context, *models.SavedSearch) (int, error)) (n int, err error) {
	sid := search.ID.String()
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("search run panic: %v", r)
		}
		if err != nil {
			level := models.LogLevelError
			if errors.Is(err, ErrSearchLocked) {
				level = models.LogLevelWarn
			}
			slog.Error("search run failed", "search_id", sid, "search_name", search.Name, "error", err)
			e.logFn(ctx, level, sid, err.Error())
		}
	}()

	return run(ctx, search)
}
