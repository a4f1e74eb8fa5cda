package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"idx_portal/models"
	"idx_portal/services"
)

func views(searches []models.SavedSearch) []models.SavedSearchView {
	out := make([]models.SavedSearchView, 0, len(searches))
	for i := range searches {
		out = append(out, searches[i].View())
	}
	return out
}

func searchID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func (s *Server) listClientSearches(w http.ResponseWriter, r *http.Request) {
	searches, err := s.deps.Searches.ListForClient(r.Context(), clientFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "searches": views(searches)})
}

func (s *Server) createSearch(w http.ResponseWriter, r *http.Request) {
	var in services.SearchInput
	if err := s.validator.decode(r, schemaSavedSearch, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	search, err := s.deps.Searches.Create(r.Context(), clientFrom(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "search": search.View()})
}

func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := searchID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Search not found")
		return
	}
	search, err := s.deps.Searches.Get(r.Context(), clientFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "search": search.View()})
}

func (s *Server) updateSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := searchID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Search not found")
		return
	}
	var in services.SearchInput
	if err := s.validator.decode(r, schemaSavedSearch, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	search, err := s.deps.Searches.Update(r.Context(), clientFrom(r.Context()), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "search": search.View()})
}

func (s *Server) deleteSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := searchID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Search not found")
		return
	}
	if err := s.deps.Searches.Delete(r.Context(), clientFrom(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) toggleClientSearch(w http.ResponseWriter, r *http.Request) {
	s.toggleActive(w, r, clientFrom(r.Context()))
}

func (s *Server) adminToggleActive(w http.ResponseWriter, r *http.Request) {
	s.toggleActive(w, r, uuid.Nil)
}

func (s *Server) toggleActive(w http.ResponseWriter, r *http.Request, clientID uuid.UUID) {
	id, ok := searchID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Search not found")
		return
	}
	current, err := s.deps.Searches.Get(r.Context(), clientID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	search, err := s.deps.Searches.SetActive(r.Context(), clientID, id, !current.IsActive)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "search": search.View()})
}

func (s *Server) adminToggleShadow(w http.ResponseWriter, r *http.Request) {
	id, ok := searchID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Search not found")
		return
	}
	current, err := s.deps.Searches.Get(r.Context(), uuid.Nil, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	search, err := s.deps.Searches.SetAdminShadow(r.Context(), id, !current.AdminShadowNotification)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "search": search.View()})
}

type searchStats struct {
	TotalSearches              int `json:"totalSearches"`
	ActiveSearches             int `json:"activeSearches"`
	ShadowNotificationsEnabled int `json:"shadowNotificationsEnabled"`
	TotalClients               int `json:"totalClients"`
}

func (s *Server) adminListSearches(w http.ResponseWriter, r *http.Request) {
	searches, err := s.deps.Searches.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	stats := searchStats{TotalSearches: len(searches)}
	clients := make(map[uuid.UUID]struct{})
	for i := range searches {
		if searches[i].IsActive {
			stats.ActiveSearches++
		}
		if searches[i].AdminShadowNotification {
			stats.ShadowNotificationsEnabled++
		}
		clients[searches[i].ClientID] = struct{}{}
	}
	stats.TotalClients = len(clients)

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "searches": views(searches), "stats": stats})
}

func (s *Server) adminNotificationLog(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "Notification history is not available")
		return
	}
	id, ok := searchID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Search not found")
		return
	}
	entries, err := s.deps.History.ListNotificationLog(r.Context(), id, queryLimit(r, 50))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.NotificationLogEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "notifications": entries})
}

func (s *Server) adminRunLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.deps.Ops.LogsForSearch(chi.URLParam(r, "id"), queryLimit(r, 100))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []models.RunLog{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "logs": logs})
}

func (s *Server) adminBatches(w http.ResponseWriter, r *http.Request) {
	runs, err := s.deps.Ops.RecentBatchRuns(queryLimit(r, 20))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if runs == nil {
		runs = []models.BatchRun{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "batches": runs})
}

func (s *Server) adminEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command  models.CommandType `json:"command"`
		SearchID string             `json:"search_id"`
	}
	if err := s.validator.decode(r, schemaCommand, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if body.Command == models.CmdRunSearch && body.SearchID == "" {
		writeError(w, http.StatusBadRequest, "run_search requires search_id")
		return
	}

	var params *models.CommandParams
	if body.SearchID != "" {
		params = &models.CommandParams{SearchID: body.SearchID}
	}
	id, err := s.deps.Ops.EnqueueCommand(body.Command, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"success": true, "id": id})
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}
