package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/playperu/breachhunt/internal/engine"
)

var errSessionEnded = errors.New("session ended")

// streamSnapshots calls send with the caller's encoded snapshot now and
// whenever the engine reports a change that alters it. It returns when ctx
// ends or send fails, and with errSessionEnded once ended is closed.
func streamSnapshots(ctx context.Context, eng *engine.Engine, sess engine.Session, opts engine.SnapshotOptions, ended <-chan struct{}, send func([]byte) error, ping func() error) error {
	changed, stop := eng.Watch()
	defer stop()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	var last []byte
	push := func() error {
		snap, err := eng.Snapshot(sess, opts)
		if errors.Is(err, engine.ErrNotReady) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if bytes.Equal(data, last) {
			return nil
		}
		last = data
		return send(data)
	}

	if err := push(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return errSessionEnded
		case <-changed:
			if err := push(); err != nil {
				return err
			}
		case <-keepalive.C:
			if err := ping(); err != nil {
				return err
			}
		}
	}
}

func handleEvents(logger *slog.Logger, eng *engine.Engine, auth *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, ok := snapshotOptions(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "node must be a positive integer")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		sess := sessionFrom(r)
		err := streamSnapshots(r.Context(), eng, sess, opts, auth.Ended(tokenFrom(r)),
			func(data []byte) error {
				if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
					return err
				}
				flusher.Flush()
				return nil
			},
			func() error {
				if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
					return err
				}
				flusher.Flush()
				return nil
			},
		)
		if err != nil {
			logger.Debug("event stream ended", "role", sess.Role, "error", err)
		}
	}
}
