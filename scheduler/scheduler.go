package scheduler

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"idx_portal/config"
	"idx_portal/models"
	"idx_portal/services"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// CommandStore is the operator queue and pause flag in the SQLite ops store
type CommandStore interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
	ParseCommandParams(cmd *models.Command) (*models.CommandParams, error)
	IsPaused() (bool, error)
	SetPaused(paused bool) error
}

// BatchRunner runs and records the due-search batch
type BatchRunner interface {
	RunBatch(ctx context.Context, trigger models.BatchTrigger) (services.BatchSummary, error)
	TriggerFrom(trigger models.BatchTrigger)
}

type SearchRunner interface {
	ExecuteSearchByID(ctx context.Context, id string) services.ManualResult
}

type Scheduler struct {
	cfg      config.SchedulerConfig
	store    CommandStore
	batch    BatchRunner
	searches SearchRunner
	cron     *cron.Cron
	stopCh   chan struct{}

	expiryWorker  Triggerable
	refreshWorker Triggerable
}

func New(cfg config.SchedulerConfig, loc *time.Location, store CommandStore, batch BatchRunner, searches SearchRunner) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		batch:    batch,
		searches: searches,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))),
		),
		stopCh: make(chan struct{}),
	}
}

// SetWorkers registers background workers for cron and manual triggering. Either may be nil.
func (s *Scheduler) SetWorkers(expiry, refresh Triggerable) {
	s.expiryWorker = expiry
	s.refreshWorker = refresh
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Always start background runners
	go s.pollCommands(ctx)

	if s.cfg.Cron != "" {
		slog.Info("starting batch schedule", "cron", s.cfg.Cron)
		if _, err := s.cron.AddFunc(s.cfg.Cron, func() { s.runScheduled(ctx) }); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.cfg.Cron, err)
		}
	} else {
		slog.Info("no batch schedule configured, daemon will only respond to commands and HTTP triggers")
	}

	if s.cfg.ExpiryCron != "" && s.expiryWorker != nil {
		if _, err := s.cron.AddFunc(s.cfg.ExpiryCron, s.expiryWorker.Trigger); err != nil {
			return fmt.Errorf("invalid expiry cron expression %q: %w", s.cfg.ExpiryCron, err)
		}
	}
	if s.cfg.RefreshCron != "" && s.refreshWorker != nil {
		if _, err := s.cron.AddFunc(s.cfg.RefreshCron, s.refreshWorker.Trigger); err != nil {
			return fmt.Errorf("invalid refresh cron expression %q: %w", s.cfg.RefreshCron, err)
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	close(s.stopCh)
}

// runScheduled is the cron entry; a paused daemon skips scheduled batches only
func (s *Scheduler) runScheduled(ctx context.Context) {
	paused, err := s.store.IsPaused()
	if err != nil {
		slog.Warn("read pause state failed", "error", err)
	}
	if paused {
		slog.Debug("scheduler paused, skipping batch")
		return
	}
	if _, err := s.batch.RunBatch(ctx, models.TriggerSchedule); err != nil {
		slog.Error("scheduled batch error", "error", err)
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.store.GetPendingCommands()
	if err != nil {
		slog.Error("get commands failed", "error", err)
		return
	}

	for _, cmd := range cmds {
		slog.Info("processing command", "command", cmd.Command, "id", cmd.ID)
		if err := s.handleCommand(ctx, &cmd); err != nil {
			slog.Error("command error", "command", cmd.Command, "error", err)
		}
		if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
			slog.Error("mark command processed failed", "id", cmd.ID, "error", err)
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunDue:
		s.batch.TriggerFrom(models.TriggerCommand)
		return nil
	case models.CmdRunSearch:
		params, err := s.store.ParseCommandParams(cmd)
		if err != nil {
			return err
		}
		if params.SearchID == "" {
			return fmt.Errorf("run_search requires search_id")
		}
		res := s.searches.ExecuteSearchByID(ctx, params.SearchID)
		if !res.Success {
			return fmt.Errorf("run search %s: %s", params.SearchID, res.Error)
		}
		slog.Info("search run via command", "search_id", params.SearchID, "matches", res.Matches)
		return nil
	case models.CmdCheckExpiry:
		return trigger(s.expiryWorker, cmd.Command)
	case models.CmdRefreshListings:
		return trigger(s.refreshWorker, cmd.Command)
	case models.CmdPause:
		return s.store.SetPaused(true)
	case models.CmdResume:
		return s.store.SetPaused(false)
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

func trigger(w Triggerable, cmd models.CommandType) error {
	if w == nil {
		return fmt.Errorf("%s: worker not configured", cmd)
	}
	w.Trigger()
	return nil
}
