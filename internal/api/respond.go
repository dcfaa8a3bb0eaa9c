package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/monitor"
	"github.com/fuomag9/targetwatch/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps control-surface errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, monitor.ErrInvalidURL), errors.Is(err, monitor.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, monitor.ErrTargetLimit):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "target not found")
	default:
		logger.Error("api_internal_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	return true
}
