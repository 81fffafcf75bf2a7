package middleware

import (
	"context"
	"net/http"
	"strings"
)

const headerActorID = "X-Actor-ID"

type actorCtxKey struct{}

// ActorID is middleware that extracts the acting user from the X-Actor-ID
// header and stores it in the request context. Identity is asserted by the
// upstream gateway; this service does not authenticate.
func ActorID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(headerActorID))
		if actor == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), actorCtxKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorIDFromContext returns the actor stored in ctx, or "" if absent.
func ActorIDFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorCtxKey{}).(string)
	return actor
}

// WithActorID stores actor in ctx. Used by tests and in-process callers.
func WithActorID(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}
