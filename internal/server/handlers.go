package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"igtracker/pkg/scheduler"
	"igtracker/pkg/scraper"
	"igtracker/pkg/storage"
	"igtracker/pkg/tracker"
)

// writeError maps service errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotTracked), errors.Is(err, scraper.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, tracker.ErrAlreadyTracked):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scraper.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, tracker.ErrEmptyHandle), errors.Is(err, scheduler.ErrIntervalOutOfRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":             "ok",
		"scheduler_running":  s.Scheduler.Running(),
		"interval_minutes":   s.Scheduler.IntervalMinutes(),
		"scheduler_last_run": s.Scheduler.LastRun().UTC().Format(time.RFC3339),
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	profiles, err := s.Service.ListProfiles(r.Context(), includeInactive)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(profiles)
}

type addProfileRequest struct {
	Handle string `json:"handle"`
}

func (s *Server) handleAddProfile(w http.ResponseWriter, r *http.Request) {
	var req addProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := s.Service.AddProfile(r.Context(), req.Handle)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.Service.GetProfile(r.Context(), r.PathValue("handle"))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	purge := r.URL.Query().Get("purge") == "true"
	if err := s.Service.DeleteProfile(r.Context(), r.PathValue("handle"), purge); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Service.GetStats(r.Context(), r.PathValue("handle"), intParam(r, "days", 30))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	events, err := s.Service.ListChanges(r.Context(), r.PathValue("handle"),
		r.URL.Query().Get("kind"), intParam(r, "limit", 50), intParam(r, "offset", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(events)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.Service.ListHistory(r.Context(), r.PathValue("handle"),
		intParam(r, "limit", 50), intParam(r, "offset", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(h)
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = storage.KindFollower
	}
	removed := r.URL.Query().Get("removed") == "true"
	rels, err := s.Service.ListRelationships(r.Context(), r.PathValue("handle"), kind, removed)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(rels)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Service.ListAudit(r.Context(), false, intParam(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) handleScrapingAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Service.ListAudit(r.Context(), true, intParam(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]int{
		"poll_interval_minutes": scheduler.LoadInterval(r.Context(), s.Service.DB()),
	})
}

type updateConfigRequest struct {
	PollIntervalMinutes int `json:"poll_interval_minutes"`
}

// handleUpdateConfig persists a new poll interval and restarts the
// scheduler with it. A rejected interval leaves the running schedule
// untouched.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := scheduler.SaveInterval(r.Context(), s.Service.DB(), req.PollIntervalMinutes); err != nil {
		writeError(w, err)
		return
	}
	if s.Scheduler.Running() {
		// Start while running is a no-op, so applying the new interval
		// takes an explicit stop first. The schedule outlives this
		// request and gets its own context.
		s.Scheduler.Stop()
		if err := s.Scheduler.Start(context.Background(), req.PollIntervalMinutes); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// handleExport streams a profile's relationships of one kind as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	kind := r.PathValue("kind")
	switch kind {
	case storage.KindFollower, storage.KindFollowing, storage.KindMutual:
	case "followers":
		kind = storage.KindFollower
	default:
		http.Error(w, "unknown relationship kind", http.StatusBadRequest)
		return
	}

	rels, err := s.Service.ListRelationships(r.Context(), handle, kind, false)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+handle+`-`+kind+`.csv"`)
	cw := csv.NewWriter(w)
	cw.Write([]string{"handle", "display_name", "first_observed", "last_confirmed"})
	for _, rel := range rels {
		cw.Write([]string{
			rel.RelatedHandle,
			rel.DisplayName,
			rel.FirstObserved.UTC().Format(time.RFC3339),
			rel.LastConfirmed.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}
