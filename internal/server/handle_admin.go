package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/breachhunt/internal/engine"
)

// StartClockRequest is the optional body of POST /api/admin/clock/start.
// Zero minutes keeps the configured duration.
type StartClockRequest struct {
	Minutes int `json:"minutes"`
}

type AdjustRequest struct {
	Minutes int `json:"minutes"`
}

type AdjustResponse struct {
	DurationMinutes int `json:"durationMinutes"`
}

type ResetResponse struct {
	ConfirmToken string    `json:"confirmToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type ResetConfirmRequest struct {
	ConfirmToken string `json:"confirmToken"`
}

func handleStartClock(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartClockRequest
		if err := readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Minutes < 0 {
			writeError(w, http.StatusBadRequest, "minutes must not be negative")
			return
		}

		if err := eng.StartClock(r.Context(), sessionFrom(r), req.Minutes); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: engine.Applied})
	}
}

func handleStopClock(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.StopClock(r.Context(), sessionFrom(r)); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: engine.Applied})
	}
}

// handleOutcome serves the guarded operations that may be refused.
func handleOutcome(logger *slog.Logger, op func(*http.Request) (engine.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := op(r)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: out})
	}
}

func handlePause(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return handleOutcome(logger, func(r *http.Request) (engine.Outcome, error) {
		return eng.Pause(r.Context(), sessionFrom(r))
	})
}

func handleResume(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return handleOutcome(logger, func(r *http.Request) (engine.Outcome, error) {
		return eng.Resume(r.Context(), sessionFrom(r))
	})
}

func handlePromote(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return handleOutcome(logger, func(r *http.Request) (engine.Outcome, error) {
		return eng.Promote(r.Context(), sessionFrom(r), chi.URLParam(r, "teamID"))
	})
}

func handleDemote(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return handleOutcome(logger, func(r *http.Request) (engine.Outcome, error) {
		return eng.Demote(r.Context(), sessionFrom(r), chi.URLParam(r, "teamID"))
	})
}

func handleAdjust(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdjustRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Minutes == 0 {
			writeError(w, http.StatusBadRequest, "minutes must not be zero")
			return
		}

		total, err := eng.AdjustTime(r.Context(), sessionFrom(r), req.Minutes)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, AdjustResponse{DurationMinutes: total})
	}
}

func handleResetRequest(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, expires, err := eng.RequestReset(sessionFrom(r))
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ResetResponse{ConfirmToken: token, ExpiresAt: expires})
	}
}

func handleResetConfirm(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetConfirmRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := eng.ConfirmReset(r.Context(), sessionFrom(r), req.ConfirmToken); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: engine.Applied})
	}
}

func handleResync(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Resync(r.Context(), sessionFrom(r)); err != nil {
			writeError(w, http.StatusServiceUnavailable, "resync failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
