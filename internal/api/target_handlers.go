package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/models"
	"github.com/fuomag9/targetwatch/internal/monitor"
	"github.com/fuomag9/targetwatch/internal/storage"
)

type createTargetRequest struct {
	URL      string `json:"url"`
	Interval int    `json:"interval"`
}

type intervalRequest struct {
	Interval int `json:"interval"`
}

// HandleCreateTarget registers a target for the caller and starts polling.
func HandleCreateTarget(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTargetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		target, err := svc.AddTarget(r.Context(), ownerFromContext(r.Context()), req.URL, req.Interval)
		if writeServiceError(w, logger, err) {
			return
		}
		writeJSON(w, http.StatusCreated, target)
	}
}

// HandleListTargets returns the caller's targets with their uptime.
func HandleListTargets(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListTargets(r.Context(), ownerFromContext(r.Context()))
		if writeServiceError(w, logger, err) {
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func HandleGetTarget(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := ownedTarget(w, r, svc, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, target)
	}
}

// HandleDeleteTarget deactivates a target. Its history is kept.
func HandleDeleteTarget(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := ownedTarget(w, r, svc, logger)
		if !ok {
			return
		}
		if writeServiceError(w, logger, svc.RemoveTarget(r.Context(), target.ID)) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleUpdateInterval(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := ownedTarget(w, r, svc, logger)
		if !ok {
			return
		}
		var req intervalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		updated, err := svc.ChangeInterval(r.Context(), target.ID, req.Interval)
		if writeServiceError(w, logger, err) {
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func HandleResumeTarget(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := ownedTarget(w, r, svc, logger)
		if !ok {
			return
		}
		resumed, err := svc.ResumeTarget(r.Context(), target.ID)
		if writeServiceError(w, logger, err) {
			return
		}
		writeJSON(w, http.StatusOK, resumed)
	}
}

func HandleGetUptime(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := ownedTarget(w, r, svc, logger)
		if !ok {
			return
		}
		stats, err := svc.UptimeStats(r.Context(), target.ID)
		if writeServiceError(w, logger, err) {
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// HandleGetOutcomes returns recent outcomes, most recent first. The limit
// query parameter is optional.
func HandleGetOutcomes(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := ownedTarget(w, r, svc, logger)
		if !ok {
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		rows, err := svc.Outcomes(r.Context(), target.ID, limit)
		if writeServiceError(w, logger, err) {
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// ownedTarget loads the {id} target and answers 404 when it belongs to
// someone else.
func ownedTarget(w http.ResponseWriter, r *http.Request, svc *monitor.Service, logger *zap.Logger) (*models.Target, bool) {
	target, err := svc.GetTarget(r.Context(), chi.URLParam(r, "id"))
	if err == nil && target.OwnerID != ownerFromContext(r.Context()) {
		err = storage.ErrNotFound
	}
	if writeServiceError(w, logger, err) {
		return nil, false
	}
	return target, true
}
