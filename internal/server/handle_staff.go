package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/playperu/breachhunt/internal/engine"
)

type AdvanceRequest struct {
	TeamID string `json:"teamId"`
}

type CallRequest struct {
	NodeID int `json:"nodeId"`
}

type AlertRequest struct {
	Message string `json:"message"`
}

// OutcomeResponse reports whether a guarded mutation changed anything.
type OutcomeResponse struct {
	Outcome engine.Outcome `json:"outcome"`
}

func handleManualAdvance(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdvanceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.TeamID = strings.TrimSpace(req.TeamID)
		if req.TeamID == "" {
			writeError(w, http.StatusBadRequest, "teamId is required")
			return
		}

		out, err := eng.ManualAdvance(r.Context(), sessionFrom(r), req.TeamID)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: out})
	}
}

func handleCallAdmin(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CallRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.NodeID < 1 {
			writeError(w, http.StatusBadRequest, "nodeId is required")
			return
		}

		if err := eng.CallAdmin(r.Context(), sessionFrom(r), req.NodeID); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAlert(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AlertRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := eng.Broadcast(r.Context(), sessionFrom(r), req.Message); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
