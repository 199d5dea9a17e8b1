package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/breachhunt/internal/engine"
)

// statusSessionEnded is an application close code (4000-4999 range).
const statusSessionEnded websocket.StatusCode = 4001

// handleWSState pushes the caller's snapshots over a WebSocket. Anything
// the client sends is ignored. Logging out closes the socket with 4001.
func handleWSState(logger *slog.Logger, eng *engine.Engine, auth *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, ok := snapshotOptions(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "node must be a positive integer")
			return
		}
		sess := sessionFrom(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		err = streamSnapshots(ctx, eng, sess, opts, auth.Ended(tokenFrom(r)),
			func(data []byte) error {
				wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				return conn.Write(wctx, websocket.MessageText, data)
			},
			func() error {
				pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				return conn.Ping(pctx)
			},
		)
		if errors.Is(err, errSessionEnded) {
			conn.Close(statusSessionEnded, "session ended")
			return
		}
		if err != nil {
			logger.Debug("websocket stream ended", "role", sess.Role, "error", err)
			conn.Close(websocket.StatusInternalError, "stream ended")
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}
}
