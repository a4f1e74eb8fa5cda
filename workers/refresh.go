package workers

import (
	"context"
	"fmt"
	"log/slog"

	"idx_portal/models"
	"idx_portal/services"
)

type Refresher interface {
	Refresh(ctx context.Context) (services.RefreshSummary, error)
}

// RefreshWorker reloads the listing table from the IDX feed
type RefreshWorker struct {
	svc       Refresher
	triggerCh chan struct{}
	logFunc   services.RunLogFunc
}

func NewRefreshWorker(svc Refresher) *RefreshWorker {
	return &RefreshWorker{
		svc:       svc,
		triggerCh: make(chan struct{}, 1),
		logFunc:   services.NoOpRunLog,
	}
}

func (w *RefreshWorker) SetLogger(fn services.RunLogFunc) {
	if fn != nil {
		w.logFunc = fn
	}
}

func (w *RefreshWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *RefreshWorker) Start(ctx context.Context) {
	for {
		select {
		case <-w.triggerCh:
			w.Run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *RefreshWorker) Run(ctx context.Context) (services.RefreshSummary, error) {
	summary, err := w.svc.Refresh(ctx)
	if err != nil {
		slog.Error("listing refresh failed", "error", err)
		w.logFunc(ctx, models.LogLevelError, "", "listing refresh: "+err.Error())
		return summary, err
	}
	w.logFunc(ctx, models.LogLevelInfo, "", fmt.Sprintf("listing refresh: %d fetched, %d stored", summary.Fetched, summary.Stored))
	return summary, nil
}
