package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey int

const clientIDKey ctxKey = iota

// requestLogger logs one line per request with status and duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// requireSecret checks CRON_SECRET as a bearer token, or as ?secret= when allowQuery
// is set. An unset secret locks the route.
func (s *Server) requireSecret(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := ""
			if allowQuery {
				provided = r.URL.Query().Get("secret")
			}
			if provided == "" {
				provided = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}

			if s.deps.CronSecret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(s.deps.CronSecret)) != 1 {
				slog.Warn("rejected request with invalid secret", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireClient takes the authenticated client id from X-Client-ID, set by the
// portal's auth layer in front of this service
func requireClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-Client-ID"))
		if err != nil || id == uuid.Nil {
			writeError(w, http.StatusUnauthorized, "Client ID required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIDKey, id)))
	})
}

func clientFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(clientIDKey).(uuid.UUID)
	return id
}
