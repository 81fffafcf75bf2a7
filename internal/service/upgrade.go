package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	sfotel "github.com/Strob0t/StratForge/internal/adapter/otel"
	"github.com/Strob0t/StratForge/internal/adapter/ws"
	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/schema"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/logger"
	"github.com/Strob0t/StratForge/internal/port/broadcast"
	"github.com/Strob0t/StratForge/internal/port/database"
	"github.com/Strob0t/StratForge/internal/port/generator"
	"github.com/Strob0t/StratForge/internal/port/messagequeue"
	"github.com/Strob0t/StratForge/internal/port/schemaprovider"
)

func newRunID() string {
	return uuid.NewString()
}

// InterviewCoverage counts filled schema variables against the schema size.
type InterviewCoverage struct {
	Filled int `json:"filled"`
	Total  int `json:"total"`
}

func coverageOf(d schema.DiffResult) InterviewCoverage {
	return InterviewCoverage{Filled: len(d.FilledIDs), Total: d.TotalSchemaVars}
}

// UpgradeResult reports one upgrade run. It is returned even when the run
// stopped early on a persistence error.
type UpgradeResult struct {
	RunID              string                `json:"run_id"`
	StrategyID         string                `json:"strategy_id"`
	VariablesAdded     []string              `json:"variables_added"`
	VariablesUpdated   []string              `json:"variables_updated"`
	VariablesObsolete  []string              `json:"variables_obsolete"`
	InterviewBefore    InterviewCoverage     `json:"interview_before"`
	InterviewAfter     InterviewCoverage     `json:"interview_after"`
	PillarsRegenerated []strategy.PillarType `json:"pillars_regenerated"`
	Errors             []StageError          `json:"errors"`
	Warnings           []string              `json:"warnings"`
	Complete           bool                  `json:"complete"`
	DurationMs         int64                 `json:"duration_ms"`
}

// UpgradeService brings a strategy in line with the current schema and
// regenerates all pillars.
type UpgradeService struct {
	store   database.Store
	schema  schemaprovider.Provider
	gen     generator.Generator
	regen   *RegenerationService
	hub     broadcast.Broadcaster
	queue   messagequeue.Queue
	sem     *semaphore.Weighted
	metrics *sfotel.Metrics
}

// NewUpgradeService creates an UpgradeService running at most maxRuns
// upgrades at once. queue may be nil.
func NewUpgradeService(
	store database.Store,
	schema schemaprovider.Provider,
	gen generator.Generator,
	regen *RegenerationService,
	hub broadcast.Broadcaster,
	queue messagequeue.Queue,
	maxRuns int,
	metrics *sfotel.Metrics,
) *UpgradeService {
	if maxRuns < 1 {
		maxRuns = 1
	}
	return &UpgradeService{
		store:   store,
		schema:  schema,
		gen:     gen,
		regen:   regen,
		hub:     hub,
		queue:   queue,
		sem:     semaphore.NewWeighted(int64(maxRuns)),
		metrics: metrics,
	}
}

// RunUpgrade diffs the interview dataset against the schema, backfills gaps
// through the generator without overwriting answered variables, persists the
// merged dataset, runs all eight stages and marks the strategy complete iff
// every stage succeeded.
func (s *UpgradeService) RunUpgrade(ctx context.Context, strategyID, actorID string) (*UpgradeResult, error) {
	st, err := s.store.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	if !st.CanAccess(actorID) {
		return nil, fmt.Errorf("strategy %s: %w", strategyID, domain.ErrForbidden)
	}

	release, err := s.regen.guard.acquire(st.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for upgrade slot: %w", err)
	}
	defer s.sem.Release(1)

	// Admitted runs outlive the caller; the generator timeouts bound them.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	res := &UpgradeResult{
		RunID:              newRunID(),
		StrategyID:         st.ID,
		VariablesAdded:     []string{},
		VariablesUpdated:   []string{},
		PillarsRegenerated: []strategy.PillarType{},
		Errors:             []StageError{},
		Warnings:           []string{},
	}
	ctx = logger.WithRunID(ctx, res.RunID)
	log := slog.With("strategy_id", st.ID)

	ctx, span := sfotel.StartUpgradeSpan(ctx, res.RunID, st.ID)
	defer span.End()
	if s.metrics != nil {
		s.metrics.UpgradesStarted.Add(ctx, 1)
	}
	s.hub.BroadcastEvent(ctx, ws.EventUpgradeStarted, ws.UpgradeEvent{StrategyID: st.ID, RunID: res.RunID})
	log.InfoContext(ctx, "upgrade started", "actor_id", actorID)

	runErr := s.run(ctx, st, actorID, res)

	res.DurationMs = time.Since(start).Milliseconds()
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
		log.ErrorContext(ctx, "upgrade stopped", "error", runErr, "regenerated", len(res.PillarsRegenerated))
	} else {
		log.InfoContext(ctx, "upgrade finished", "complete", res.Complete, "regenerated", len(res.PillarsRegenerated), "errors", len(res.Errors))
	}
	s.finish(ctx, actorID, res)
	return res, runErr
}

func (s *UpgradeService) run(ctx context.Context, st *strategy.Strategy, actorID string, res *UpgradeResult) error {
	vars, err := s.schema.CurrentSchema(ctx)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	ids := schema.IDs(vars)

	before := schema.Diff(st.Interview, ids)
	res.VariablesObsolete = before.ObsoleteIDs
	res.InterviewBefore = coverageOf(before)

	merged := st.Interview.Clone()
	if before.HasGaps() {
		proposals, err := s.backfill(ctx, st, vars, before)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("backfill: %v", err))
		} else {
			res.VariablesAdded, res.VariablesUpdated = mergeBackfill(merged, proposals, before)
		}
	}

	if len(res.VariablesAdded)+len(res.VariablesUpdated) > 0 {
		if err := s.store.UpdateInterviewDataset(ctx, st.ID, merged); err != nil {
			return fmt.Errorf("persist interview: %w", err)
		}
	}
	st.Interview = merged
	res.InterviewAfter = coverageOf(schema.Diff(merged, ids))

	outcome, err := s.regen.RunStages(ctx, st, res.RunID, actorID, strategy.TriggerUpgrade)
	res.PillarsRegenerated = append(res.PillarsRegenerated, outcome.Regenerated...)
	res.Errors = append(res.Errors, outcome.Errors...)
	if err != nil {
		return err
	}

	if len(outcome.Regenerated) == strategy.PillarCount {
		if err := s.store.UpdateStrategyPhase(ctx, st.ID, strategy.PhaseComplete); err != nil {
			return fmt.Errorf("mark complete: %w", err)
		}
		res.Complete = true
	}
	return nil
}

func (s *UpgradeService) backfill(ctx context.Context, st *strategy.Strategy, vars []schema.Variable, d schema.DiffResult) (map[string]string, error) {
	byID := schema.ByID(vars)
	gaps := make([]schema.Variable, 0, len(d.MissingIDs)+len(d.EmptyIDs))
	for _, id := range d.GapIDs() {
		gaps = append(gaps, byID[id])
	}
	return s.gen.Backfill(ctx, generator.BackfillRequest{
		Strategy:  generator.MetaOf(st),
		Interview: st.Interview.Clone(),
		Variables: gaps,
	})
}

// mergeBackfill writes non-blank proposals for gap variables into dataset.
// Filled variables and keys outside the schema are never touched.
func mergeBackfill(dataset strategy.InterviewDataset, proposals map[string]string, d schema.DiffResult) (added, updated []string) {
	added, updated = []string{}, []string{}
	for _, id := range d.MissingIDs {
		if v, ok := proposals[id]; ok && !schema.IsBlank(v) {
			dataset[id] = v
			added = append(added, id)
		}
	}
	for _, id := range d.EmptyIDs {
		if v, ok := proposals[id]; ok && !schema.IsBlank(v) {
			dataset[id] = v
			updated = append(updated, id)
		}
	}
	return added, updated
}

func (s *UpgradeService) finish(ctx context.Context, actorID string, res *UpgradeResult) {
	regenerated := make([]string, len(res.PillarsRegenerated))
	for i, t := range res.PillarsRegenerated {
		regenerated[i] = string(t)
	}
	errs := make([]string, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = e.String()
	}

	if s.metrics != nil {
		s.metrics.UpgradesCompleted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("complete", res.Complete)))
	}

	s.hub.BroadcastEvent(ctx, ws.EventUpgradeCompleted, ws.UpgradeEvent{
		StrategyID:         res.StrategyID,
		RunID:              res.RunID,
		PillarsRegenerated: regenerated,
		Errors:             errs,
		Complete:           res.Complete,
		DurationMs:         res.DurationMs,
	})

	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.UpgradeCompletedPayload{
		StrategyID:         res.StrategyID,
		RunID:              res.RunID,
		ActorID:            actorID,
		PillarsRegenerated: regenerated,
		Errors:             errs,
		Complete:           res.Complete,
		DurationMs:         res.DurationMs,
	})
	if err != nil {
		slog.ErrorContext(ctx, "marshal upgrade completed", "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectUpgradeCompleted, data); err != nil {
		slog.WarnContext(ctx, "publish upgrade completed failed", "error", err)
	}
}
