package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"idx_portal/models"
	"idx_portal/services"
)

type BatchRunner interface {
	RunBatch(ctx context.Context, trigger models.BatchTrigger) (services.BatchSummary, error)
}

type SearchExecutor interface {
	ExecuteSearchByID(ctx context.Context, id string) services.ManualResult
}

type ExpiryRunner interface {
	Run(ctx context.Context) (services.ExpirySummary, error)
}

type RefreshRunner interface {
	Run(ctx context.Context) (services.RefreshSummary, error)
}

// OpsStore is the operator side of the SQLite ops store
type OpsStore interface {
	RecentBatchRuns(limit int) ([]models.BatchRun, error)
	LogsForSearch(searchID string, limit int) ([]models.RunLog, error)
	EnqueueCommand(cmd models.CommandType, params *models.CommandParams) (int64, error)
}

type NotificationHistory interface {
	ListNotificationLog(ctx context.Context, searchID uuid.UUID, limit int) ([]models.NotificationLogEntry, error)
}

type ListingLookup interface {
	GetListing(ctx context.Context, mlsNumber string) (*models.Listing, error)
}

// Deps wires the handlers. Refresh, History and Listings are optional.
type Deps struct {
	Batch       BatchRunner
	Executor    SearchExecutor
	Expiry      ExpiryRunner
	Refresh     RefreshRunner
	Searches    *services.SavedSearchService
	Preferences *services.PreferenceService
	Ops         OpsStore
	History     NotificationHistory
	Listings    ListingLookup
	CronSecret  string
}

type Server struct {
	httpServer *http.Server
	deps       Deps
	validator  *validator
	now        func() time.Time
}

func NewServer(port string, deps Deps) (*Server, error) {
	v, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("load request schemas: %w", err)
	}
	s := &Server{deps: deps, validator: v, now: time.Now}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/api/cron", func(r chi.Router) {
		r.With(s.requireSecret(true)).Get("/search-notifications", s.runDueSearches)
		r.With(s.requireSecret(false)).Post("/search-notifications", s.runSearchOrBatch)
		r.With(s.requireSecret(false)).Post("/check-expiry", s.checkExpiry)
	})

	r.With(s.requireSecret(false)).Post("/api/idx/refresh", s.refreshListings)

	r.Route("/api/portal", func(r chi.Router) {
		r.Use(requireClient)

		r.Get("/saved-searches", s.listClientSearches)
		r.Post("/saved-searches", s.createSearch)
		r.Get("/saved-searches/{id}", s.getSearch)
		r.Put("/saved-searches/{id}", s.updateSearch)
		r.Delete("/saved-searches/{id}", s.deleteSearch)
		r.Post("/saved-searches/{id}/toggle", s.toggleClientSearch)

		r.Get("/favorites", s.listPreferences)
		r.Post("/favorites", s.setPreference)
		r.Delete("/favorites/{mls}", s.deletePreference)
		r.Put("/favorites/{mls}/notes", s.updatePreferenceNotes)
		r.Post("/favorites/{mls}/view", s.recordPreferenceView)

		r.Get("/listings/{mls}", s.getListing)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.requireSecret(false))

		r.Get("/searches", s.adminListSearches)
		r.Post("/searches/{id}/toggle", s.adminToggleActive)
		r.Post("/searches/{id}/shadow", s.adminToggleShadow)
		r.Get("/searches/{id}/notifications", s.adminNotificationLog)
		r.Get("/searches/{id}/logs", s.adminRunLogs)
		r.Get("/batches", s.adminBatches)
		r.Post("/commands", s.adminEnqueueCommand)
	})

	return r
}

func (s *Server) Start() error {
	slog.Info("starting HTTP server", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}
