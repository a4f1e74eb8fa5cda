package api

import (
	"fmt"
	"net/http"
	"time"

	"idx_portal/models"
)

func (s *Server) runDueSearches(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	summary, err := s.deps.Batch.RunBatch(r.Context(), models.TriggerHTTP)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success":   false,
			"error":     err.Error(),
			"timestamp": s.now().UTC().Format(time.RFC3339),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Cron job completed successfully",
		"stats": map[string]any{
			"executed":     summary.Executed,
			"totalMatches": summary.Matches,
			"errors":       summary.Errors,
			"duration":     fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
		},
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// runSearchOrBatch runs one search when the body names it, otherwise the due batch
func (s *Server) runSearchOrBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SearchID string `json:"searchId"`
	}
	if err := s.validator.decode(r, schemaRunSearch, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if body.SearchID == "" {
		summary, err := s.deps.Batch.RunBatch(r.Context(), models.TriggerHTTP)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "All searches executed",
			"stats":   summary,
		})
		return
	}

	res := s.deps.Executor.ExecuteSearchByID(r.Context(), body.SearchID)
	msg := "Search execution failed"
	if res.Success {
		msg = fmt.Sprintf("Search executed successfully. Found %d new properties.", res.Matches)
	}
	payload := map[string]any{
		"success": res.Success,
		"message": msg,
		"matches": res.Matches,
	}
	if res.Error != "" {
		payload["error"] = res.Error
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) checkExpiry(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Expiry.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"expired":       summary.Expired,
		"remindersSent": summary.RemindersSent,
		"errors":        summary.Errors,
		"timestamp":     s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) refreshListings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "Listing refresh is not configured")
		return
	}
	summary, err := s.deps.Refresh.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("Refreshed %d listings", summary.Stored),
		"fetched":   summary.Fetched,
		"timestamp": summary.RefreshedAt.UTC().Format(time.RFC3339),
	})
}
