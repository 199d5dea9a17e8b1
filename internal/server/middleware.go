package server

import (
	"context"
	"net/http"
	"slices"

	"github.com/playperu/breachhunt/internal/engine"
)

type ctxKey int

const (
	ctxKeySession ctxKey = iota
	ctxKeyToken
)

// requireSession resolves the caller's token and rejects requests whose
// role is not in roles.
func requireSession(auth *Auth, roles ...engine.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			sess, err := auth.Lookup(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, sess.Role) {
				writeError(w, http.StatusForbidden, "not permitted for this role")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			ctx = context.WithValue(ctx, ctxKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// asSpectator serves public read-only routes.
func asSpectator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxKeySession, engine.Session{Role: engine.RoleSpectator})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) engine.Session {
	return r.Context().Value(ctxKeySession).(engine.Session)
}

func tokenFrom(r *http.Request) string {
	token, _ := r.Context().Value(ctxKeyToken).(string)
	return token
}
