package workers

import (
	"context"
	"log/slog"

	"idx_portal/models"
	"idx_portal/services"
)

// LogSink is where operator log lines end up (the SQLite run_logs table)
type LogSink interface {
	Log(batchID *int64, level models.LogLevel, message, searchID string) error
}

type batchKey struct{}

// withBatch marks ctx as belonging to the recorded batch id
func withBatch(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, batchKey{}, id)
}

func batchFrom(ctx context.Context) *int64 {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(batchKey{}).(int64); ok {
		return &id
	}
	return nil
}

// BatchLog writes run-loop log lines to the sink, tagged with the batch whose
// context carried them. Lines logged outside a recorded batch have no batch id.
type BatchLog struct {
	sink LogSink
}

func NewBatchLog(sink LogSink) *BatchLog {
	return &BatchLog{sink: sink}
}

// Func returns the RunLogFunc to install on the runner and executor
func (l *BatchLog) Func() services.RunLogFunc {
	if l == nil || l.sink == nil {
		return services.NoOpRunLog
	}
	return func(ctx context.Context, level models.LogLevel, searchID, message string) {
		if err := l.sink.Log(batchFrom(ctx), level, message, searchID); err != nil {
			slog.Warn("write run log failed", "search_id", searchID, "error", err)
		}
	}
}
