// Package middleware holds the HTTP middleware of the API: bearer token
// verification, per-IP rate limiting, request ids with access logging.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"coaching-schedule-api/internal/auth"
	"coaching-schedule-api/internal/model"
)

type ctxKey string

const actorKey ctxKey = "actor"

func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey).(model.Actor)
	return a, ok
}

// Unauthorized writes the 401 body. The handler package sets it so that
// rejected requests carry the same envelope as every other error.
type Unauthorized func(w http.ResponseWriter, r *http.Request, msg string)

func Auth(secret string, reject Unauthorized) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// token from Authorization: Bearer <jwt>
			h := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || raw == "" {
				reject(w, r, "missing bearer token")
				return
			}
			claims, err := auth.ParseToken(raw, secret)
			if err != nil {
				reject(w, r, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), claims.Actor())))
		})
	}
}
