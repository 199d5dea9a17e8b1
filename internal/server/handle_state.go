package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/breachhunt/internal/engine"
)

func snapshotOptions(r *http.Request) (engine.SnapshotOptions, bool) {
	var opts engine.SnapshotOptions
	if v := r.URL.Query().Get("node"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, false
		}
		opts.Node = n
	}
	return opts, true
}

func handleState(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, ok := snapshotOptions(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "node must be a positive integer")
			return
		}
		snap, err := eng.Snapshot(sessionFrom(r), opts)
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
