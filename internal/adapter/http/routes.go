package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/StratForge/internal/middleware"
)

// RouterOptions carries the cross-cutting pieces of the router. Nil
// middleware is skipped.
type RouterOptions struct {
	CORSOrigin  string
	Telemetry   func(http.Handler) http.Handler
	RateLimit   func(http.Handler) http.Handler
	Idempotency func(http.Handler) http.Handler
	WebSocket   http.HandlerFunc
}

// NewRouter builds the full HTTP surface.
func NewRouter(h *Handlers, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Telemetry != nil {
		r.Use(opts.Telemetry)
	}
	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)
	if opts.CORSOrigin != "" {
		r.Use(CORS(opts.CORSOrigin))
	}
	r.Use(middleware.ActorID)

	r.Get("/health", h.HealthCheck)
	if opts.WebSocket != nil {
		r.Get("/ws", opts.WebSocket)
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}
		MountRoutes(r, h, opts.Idempotency)
	})
	return r
}

// MountRoutes registers the /api/v1 routes. Reads get a request timeout;
// pipeline runs are bounded by the generator timeouts instead.
func MountRoutes(r chi.Router, h *Handlers, idempotency func(http.Handler) http.Handler) {
	if idempotency == nil {
		idempotency = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))

			r.Get("/schema/variables", h.ListSchemaVariables)

			r.Get("/strategies/{id}", h.GetStrategy)
			r.Get("/strategies/{id}/pillars", h.ListPillars)
			r.Get("/strategies/{id}/pillars/{type}/versions", h.ListPillarVersions)
			r.Get("/strategies/{id}/scores/history", h.ScoreHistory)
		})

		r.Group(func(r chi.Router) {
			r.Use(idempotency)

			r.Post("/strategies", h.CreateStrategy)
			r.Post("/strategies/{id}/upgrade", h.RunUpgrade)
			r.Post("/strategies/{id}/pillars/{type}/regenerate", h.RegeneratePillar)
			r.Post("/strategies/{id}/scores", h.RecalculateScores)
		})
	})
}
