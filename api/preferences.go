package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"idx_portal/models"
	"idx_portal/services"
)

func (s *Server) listPreferences(w http.ResponseWriter, r *http.Request) {
	clientID := clientFrom(r.Context())
	category := models.PreferenceCategory(strings.ToLower(r.URL.Query().Get("category")))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid category. Must be love, like, or leave")
		return
	}

	prefs, err := s.deps.Preferences.List(r.Context(), clientID, category)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	counts, err := s.deps.Preferences.Counts(r.Context(), clientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if prefs == nil {
		prefs = []models.PropertyPreference{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "preferences": prefs, "counts": counts})
}

func (s *Server) setPreference(w http.ResponseWriter, r *http.Request) {
	var in services.PreferenceInput
	if err := s.validator.decode(r, schemaPreference, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	pref, err := s.deps.Preferences.Set(r.Context(), clientFrom(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "preference": pref})
}

func (s *Server) deletePreference(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.deps.Preferences.Remove(r.Context(), clientFrom(r.Context()), chi.URLParam(r, "mls"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Preference not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) updatePreferenceNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	pref, err := s.deps.Preferences.UpdateNotes(r.Context(), clientFrom(r.Context()), chi.URLParam(r, "mls"), body.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "preference": pref})
}

func (s *Server) recordPreferenceView(w http.ResponseWriter, r *http.Request) {
	pref, err := s.deps.Preferences.RecordView(r.Context(), clientFrom(r.Context()), chi.URLParam(r, "mls"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "preference": pref})
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	if s.deps.Listings == nil {
		writeError(w, http.StatusServiceUnavailable, "Listing lookup is not configured")
		return
	}
	listing, err := s.deps.Listings.GetListing(r.Context(), chi.URLParam(r, "mls"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if listing == nil || !listing.Eligible() {
		writeError(w, http.StatusNotFound, "Property not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "property": listing})
}
