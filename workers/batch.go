package workers

import (
	"context"
	"log/slog"
	"time"

	"idx_portal/models"
	"idx_portal/services"
)

// BatchStore records batch runs
type BatchStore interface {
	CreateBatchRun(run *models.BatchRun) (int64, error)
	UpdateBatchRun(run *models.BatchRun) error
}

// BatchExecutor is the part of services.Executor the worker drives
type BatchExecutor interface {
	ExecuteDueSearches(ctx context.Context) (services.BatchSummary, error)
}

// BatchWorker runs the due-search batch and keeps an operational record of each run
type BatchWorker struct {
	executor  BatchExecutor
	store     BatchStore
	triggerCh chan models.BatchTrigger
	now       func() time.Time
}

func NewBatchWorker(executor BatchExecutor, store BatchStore) *BatchWorker {
	return &BatchWorker{
		executor:  executor,
		store:     store,
		triggerCh: make(chan models.BatchTrigger, 1),
		now:       time.Now,
	}
}

// Trigger queues a batch without waiting for it. A batch already queued absorbs the call.
func (w *BatchWorker) Trigger() {
	w.TriggerFrom(models.TriggerCommand)
}

func (w *BatchWorker) TriggerFrom(trigger models.BatchTrigger) {
	select {
	case w.triggerCh <- trigger:
	default:
	}
}

// Start consumes triggers until ctx is done
func (w *BatchWorker) Start(ctx context.Context) {
	for {
		select {
		case trigger := <-w.triggerCh:
			w.RunBatch(ctx, trigger)
		case <-ctx.Done():
			return
		}
	}
}

// RunBatch executes due searches and records the outcome. Recording failures are
// logged and never block the batch itself.
func (w *BatchWorker) RunBatch(ctx context.Context, trigger models.BatchTrigger) (services.BatchSummary, error) {
	run := &models.BatchRun{
		Trigger:   trigger,
		StartedAt: w.now(),
		Status:    models.RunStatusRunning,
	}
	recorded := true
	if _, err := w.store.CreateBatchRun(run); err != nil {
		slog.Warn("record batch run failed", "trigger", trigger, "error", err)
		recorded = false
	} else {
		ctx = withBatch(ctx, run.ID)
	}

	summary, err := w.executor.ExecuteDueSearches(ctx)

	finished := w.now()
	run.FinishedAt = &finished
	run.Executed = summary.Executed
	run.Matches = summary.Matches
	run.Errors = summary.Errors
	run.Status = models.RunStatusCompleted
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Message = err.Error()
		slog.Error("batch failed", "trigger", trigger, "error", err)
	}

	if recorded {
		if uerr := w.store.UpdateBatchRun(run); uerr != nil {
			slog.Warn("update batch run failed", "batch_id", run.ID, "error", uerr)
		}
	}
	return summary, err
}
