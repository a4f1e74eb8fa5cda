package workers

import (
	"context"
	"fmt"
	"log/slog"

	"idx_portal/models"
	"idx_portal/services"
)

type ExpiryChecker interface {
	CheckExpiry(ctx context.Context) (services.ExpirySummary, error)
}

// ExpiryWorker runs the daily client expiry sweep on demand
type ExpiryWorker struct {
	svc       ExpiryChecker
	triggerCh chan struct{}
	logFunc   services.RunLogFunc
}

func NewExpiryWorker(svc ExpiryChecker) *ExpiryWorker {
	return &ExpiryWorker{
		svc:       svc,
		triggerCh: make(chan struct{}, 1),
		logFunc:   services.NoOpRunLog,
	}
}

func (w *ExpiryWorker) SetLogger(fn services.RunLogFunc) {
	if fn != nil {
		w.logFunc = fn
	}
}

// Trigger causes the worker to run immediately
func (w *ExpiryWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	for {
		select {
		case <-w.triggerCh:
			w.Run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) (services.ExpirySummary, error) {
	summary, err := w.svc.CheckExpiry(ctx)
	if err != nil {
		slog.Error("expiry check failed", "error", err)
		w.logFunc(ctx, models.LogLevelError, "", "expiry check: "+err.Error())
		return summary, err
	}

	msg := fmt.Sprintf("expiry check: %d expired, %d reminders sent, %d errors", summary.Expired, summary.RemindersSent, summary.Errors)
	slog.Info(msg)
	w.logFunc(ctx, models.LogLevelInfo, "", msg)
	return summary, nil
}
