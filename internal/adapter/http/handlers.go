package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/schema"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/service"
)

// Strategies is the strategy read and create surface.
type Strategies interface {
	Create(ctx context.Context, req strategy.CreateRequest) (*strategy.Strategy, error)
	Get(ctx context.Context, id, actorID string) (*strategy.Strategy, error)
	Pillars(ctx context.Context, id, actorID string) ([]strategy.Pillar, error)
	PillarVersions(ctx context.Context, id, actorID string, t strategy.PillarType) ([]strategy.PillarVersion, error)
}

// Upgrader runs a full schema upgrade.
type Upgrader interface {
	RunUpgrade(ctx context.Context, strategyID, actorID string) (*service.UpgradeResult, error)
}

// Regenerator reruns a single pipeline stage.
type Regenerator interface {
	RegeneratePillar(ctx context.Context, strategyID, actorID string, t strategy.PillarType) (*strategy.Pillar, error)
}

// Scores recalculates and lists strategy scores.
type Scores interface {
	RecalculateScores(ctx context.Context, strategyID string, trigger strategy.Trigger) (*service.ScoreResult, error)
	History(ctx context.Context, strategyID string, limit int) ([]strategy.ScoreSnapshot, error)
}

// Catalog serves the variable catalog.
type Catalog interface {
	CurrentSchema(ctx context.Context) ([]schema.Variable, error)
}

// HealthDeps are the dependencies reported by /health. Nil fields are skipped.
type HealthDeps struct {
	Postgres interface{ Ping(ctx context.Context) error }
	NATS     interface{ IsConnected() bool }
	LiteLLM  interface {
		Health(ctx context.Context) (bool, error)
		BreakerState() string
	}
	WSConnections func() int
}

// Handlers holds the services behind the HTTP API.
type Handlers struct {
	Strategies  Strategies
	Upgrades    Upgrader
	Regenerator Regenerator
	Scores      Scores
	Catalog     Catalog
	Health      HealthDeps
}

// CreateStrategy handles POST /api/v1/strategies. The owner is always the
// calling actor.
func (h *Handlers) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	actor := requireActor(w, r)
	if actor == "" {
		return
	}
	req, ok := readJSON[strategy.CreateRequest](w, r)
	if !ok {
		return
	}
	req.OwnerID = actor

	st, err := h.Strategies.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "parent strategy not found")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// GetStrategy handles GET /api/v1/strategies/{id}.
func (h *Handlers) GetStrategy(w http.ResponseWriter, r *http.Request) {
	actor := requireActor(w, r)
	if actor == "" {
		return
	}
	st, err := h.Strategies.Get(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeDomainError(w, err, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListPillars handles GET /api/v1/strategies/{id}/pillars.
func (h *Handlers) ListPillars(w http.ResponseWriter, r *http.Request) {
	actor := requireActor(w, r)
	if actor == "" {
		return
	}
	pillars, err := h.Strategies.Pillars(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeDomainError(w, err, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, pillars)
}

// ListPillarVersions handles GET /api/v1/strategies/{id}/pillars/{type}/versions.
func (h *Handlers) ListPillarVersions(w http.ResponseWriter, r *http.Request) {
	actor := requireActor(w, r)
	if actor == "" {
		return
	}
	t, ok := pillarTypeParam(w, r)
	if !ok {
		return
	}
	versions, err := h.Strategies.PillarVersions(r.Context(), chi.URLParam(r, "id"), actor, t)
	if err != nil {
		writeDomainError(w, err, "strategy not found")
		return
	}
	if versions == nil {
		versions = []strategy.PillarVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

type upgradeFailure struct {
	Error  string                 `json:"error"`
	Result *service.UpgradeResult `json:"result"`
}

// RunUpgrade handles POST /api/v1/strategies/{id}/upgrade. The run is
// synchronous; a stage failure still yields 200 with the errors listed in
// the result. A persistence failure mid-run returns 500 with the partial
// result.
func (h *Handlers) RunUpgrade(w http.ResponseWriter, r *http.Request) {
	actor := requireActor(w, r)
	if actor == "" {
		return
	}
	res, err := h.Upgrades.RunUpgrade(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		if res != nil && !isClientError(err) {
			slog.Error("upgrade aborted", "strategy_id", res.StrategyID, "run_id", res.RunID, "error", err)
			writeJSON(w, http.StatusInternalServerError, upgradeFailure{Error: "upgrade aborted", Result: res})
			return
		}
		writeDomainError(w, err, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RegeneratePillar handles POST /api/v1/strategies/{id}/pillars/{type}/regenerate.
func (h *Handlers) RegeneratePillar(w http.ResponseWriter, r *http.Request) {
	actor := requireActor(w, r)
	if actor == "" {
		return
	}
	t, ok := pillarTypeParam(w, r)
	if !ok {
		return
	}
	p, err := h.Regenerator.RegeneratePillar(r.Context(), chi.URLParam(r, "id"), actor, t)
	if err != nil {
		writeDomainError(w, err, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RecalculateScores handles POST /api/v1/strategies/{id}/scores.
func (h *Handlers) RecalculateScores(w http.ResponseWriter, r *http.Request) {
	actor := requireActor(w, r)
	if actor == "" {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.Strategies.Get(r.Context(), id, actor); err != nil {
		writeDomainError(w, err, "strategy not found")
		return
	}
	res, err := h.Scores.RecalculateScores(r.Context(), id, strategy.TriggerManual)
	if err != nil {
		writeDomainError(w, err, "strategy not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ScoreHistory handles GET /api/v1/strategies/{id}/scores/history?limit=N.
func (h *Handlers) ScoreHistory(w http.ResponseWriter, r *http.Request) {
	actor := requireActor(w, r)
	if actor == "" {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.Strategies.Get(r.Context(), id, actor); err != nil {
		writeDomainError(w, err, "strategy not found")
		return
	}
	snaps, err := h.Scores.History(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, err, "strategy not found")
		return
	}
	if snaps == nil {
		snaps = []strategy.ScoreSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// ListSchemaVariables handles GET /api/v1/schema/variables.
func (h *Handlers) ListSchemaVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := h.Catalog.CurrentSchema(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if vars == nil {
		vars = []schema.Variable{}
	}
	writeJSON(w, http.StatusOK, vars)
}

type healthReport struct {
	Status        string `json:"status"`
	Postgres      string `json:"postgres,omitempty"`
	NATS          string `json:"nats,omitempty"`
	LiteLLM       string `json:"litellm,omitempty"`
	Breaker       string `json:"breaker,omitempty"`
	WSConnections int    `json:"ws_connections"`
}

// HealthCheck handles GET /health. Postgres and NATS are required; LiteLLM
// being down only degrades the service.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rep := healthReport{Status: "ok"}
	status := http.StatusOK
	down := func(required bool) string {
		if required {
			rep.Status = "unavailable"
			status = http.StatusServiceUnavailable
		} else if rep.Status == "ok" {
			rep.Status = "degraded"
		}
		return "down"
	}

	if d := h.Health.Postgres; d != nil {
		rep.Postgres = "up"
		if err := d.Ping(ctx); err != nil {
			slog.Warn("health: postgres ping failed", "error", err)
			rep.Postgres = down(true)
		}
	}
	if d := h.Health.NATS; d != nil {
		rep.NATS = "up"
		if !d.IsConnected() {
			rep.NATS = down(true)
		}
	}
	if d := h.Health.LiteLLM; d != nil {
		rep.LiteLLM = "up"
		rep.Breaker = d.BreakerState()
		if ok, err := d.Health(ctx); !ok {
			slog.Warn("health: litellm unreachable", "error", err)
			rep.LiteLLM = down(false)
		}
	}
	if h.Health.WSConnections != nil {
		rep.WSConnections = h.Health.WSConnections()
	}
	writeJSON(w, status, rep)
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrValidation)
}
