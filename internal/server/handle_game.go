package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/playperu/breachhunt/internal/engine"
)

type AnswerRequest struct {
	Answer string `json:"answer"`
}

type AnswerResponse struct {
	IsCorrect    bool   `json:"isCorrect"`
	Message      string `json:"message,omitempty"`
	Node         int    `json:"node"`
	GameComplete bool   `json:"gameComplete"`
}

func handleAnswer(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnswerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Answer = strings.TrimSpace(req.Answer)
		if req.Answer == "" {
			writeError(w, http.StatusBadRequest, "answer is required")
			return
		}

		res, err := eng.SubmitAnswer(r.Context(), sessionFrom(r), req.Answer)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		if res.Finished && !res.Correct {
			writeError(w, http.StatusConflict, "all nodes completed")
			return
		}

		writeJSON(w, http.StatusOK, AnswerResponse{
			IsCorrect:    res.Correct,
			Message:      res.Message,
			Node:         res.Node,
			GameComplete: res.Finished,
		})
	}
}

func handleHeartbeat(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Heartbeat(r.Context(), sessionFrom(r)); err != nil {
			writeEngineError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
