package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/breachhunt/internal/engine"
	"github.com/playperu/breachhunt/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeEngineError maps engine and store errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var we *engine.WriteError
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, engine.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "row changed concurrently, retry")
	case errors.Is(err, engine.ErrClockNotStarted),
		errors.Is(err, engine.ErrClockPaused),
		errors.Is(err, engine.ErrConfirmationRequired):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrPublish):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, engine.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &we):
		writeError(w, http.StatusServiceUnavailable, "store unavailable: "+we.Op)
	default:
		logger.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
