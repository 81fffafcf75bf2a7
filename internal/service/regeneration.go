package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	sfotel "github.com/Strob0t/StratForge/internal/adapter/otel"
	"github.com/Strob0t/StratForge/internal/adapter/ws"
	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/logger"
	"github.com/Strob0t/StratForge/internal/port/broadcast"
	"github.com/Strob0t/StratForge/internal/port/database"
	"github.com/Strob0t/StratForge/internal/port/generator"
	"github.com/Strob0t/StratForge/internal/port/recompute"
)

// FreshOutputs holds the content generated during one run and the stages that
// failed in it. It is created per run and passed through every stage call.
type FreshOutputs struct {
	content map[strategy.PillarType]json.RawMessage
	failed  map[strategy.PillarType]bool
}

// NewFreshOutputs creates an empty run cache.
func NewFreshOutputs() *FreshOutputs {
	return &FreshOutputs{
		content: make(map[strategy.PillarType]json.RawMessage, strategy.PillarCount),
		failed:  make(map[strategy.PillarType]bool),
	}
}

// Put records the committed content of t.
func (f *FreshOutputs) Put(t strategy.PillarType, c json.RawMessage) {
	f.content[t] = c
	delete(f.failed, t)
}

// Get returns the content generated for t in this run.
func (f *FreshOutputs) Get(t strategy.PillarType) (json.RawMessage, bool) {
	c, ok := f.content[t]
	return c, ok
}

// MarkFailed records that t failed in this run.
func (f *FreshOutputs) MarkFailed(t strategy.PillarType) {
	f.failed[t] = true
}

// Failed reports whether t failed in this run.
func (f *FreshOutputs) Failed(t strategy.PillarType) bool {
	return f.failed[t]
}

// StageError is a recorded stage failure.
type StageError struct {
	Stage   strategy.PillarType `json:"stage"`
	Message string              `json:"message"`
}

func (e StageError) String() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// RunOutcome is what the stage loop reports back.
type RunOutcome struct {
	Regenerated []strategy.PillarType
	Errors      []StageError
}

// scoreRecalculator is the part of ScoreService the pipeline triggers.
type scoreRecalculator interface {
	RecalculateScores(ctx context.Context, strategyID string, trigger strategy.Trigger) (*ScoreResult, error)
}

// runGuard allows one pipeline run per strategy at a time.
type runGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func (g *runGuard) acquire(strategyID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[string]struct{})
	}
	if _, busy := g.active[strategyID]; busy {
		return nil, fmt.Errorf("strategy %s: regeneration already running: %w", strategyID, domain.ErrConflict)
	}
	g.active[strategyID] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.active, strategyID)
		g.mu.Unlock()
	}, nil
}

// RegenerationService runs pillar stages in the fixed order and triggers the
// downstream recomputations.
type RegenerationService struct {
	store      database.Store
	gen        generator.Generator
	hub        broadcast.Broadcaster
	dispatcher *Dispatcher
	scores     scoreRecalculator
	budget     recompute.Recomputer
	widgets    recompute.Recomputer
	metrics    *sfotel.Metrics
	guard      runGuard
}

// NewRegenerationService creates a RegenerationService. budget and widgets may be nil.
func NewRegenerationService(
	store database.Store,
	gen generator.Generator,
	hub broadcast.Broadcaster,
	dispatcher *Dispatcher,
	scores scoreRecalculator,
	metrics *sfotel.Metrics,
) *RegenerationService {
	return &RegenerationService{
		store:      store,
		gen:        gen,
		hub:        hub,
		dispatcher: dispatcher,
		scores:     scores,
		metrics:    metrics,
	}
}

// SetRecomputers attaches the budget-tier and widget recomputers.
func (s *RegenerationService) SetRecomputers(budget, widgets recompute.Recomputer) {
	s.budget = budget
	s.widgets = widgets
}

// RunStages attempts all eight stages of st in order. A stage failure is
// recorded and the loop continues. A persistence error stops the loop and is
// returned with the outcome so far. Score and widget recomputation are
// submitted once the loop ends, whatever the stage outcomes. The stages do
// not observe cancellation of ctx: a pillar marked generating always ends in
// complete or error.
func (s *RegenerationService) RunStages(ctx context.Context, st *strategy.Strategy, runID, actorID string, trigger strategy.Trigger) (*RunOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	fresh := NewFreshOutputs()
	outcome := &RunOutcome{}

	var runErr error
	for _, t := range strategy.Stages {
		if err := s.runStage(ctx, st, runID, actorID, t, fresh, outcome); err != nil {
			runErr = err
			break
		}
	}

	s.submitRecomputes(ctx, st.ID, trigger)
	return outcome, runErr
}

// RegeneratePillar reruns one stage with the durable content of its
// dependencies as context. Once the stage starts it runs to completion even
// if ctx is cancelled.
func (s *RegenerationService) RegeneratePillar(ctx context.Context, strategyID, actorID string, t strategy.PillarType) (*strategy.Pillar, error) {
	if _, err := strategy.ParsePillarType(string(t)); err != nil {
		return nil, err
	}

	st, err := s.store.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	if !st.CanAccess(actorID) {
		return nil, fmt.Errorf("strategy %s: %w", strategyID, domain.ErrForbidden)
	}

	release, err := s.guard.acquire(st.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	runID := newRunID()
	ctx = logger.WithRunID(context.WithoutCancel(ctx), runID)
	outcome := &RunOutcome{}
	if err := s.runStage(ctx, st, runID, actorID, t, NewFreshOutputs(), outcome); err != nil {
		return nil, err
	}
	s.submitRecomputes(ctx, st.ID, strategy.TriggerPillarUpdate)

	if len(outcome.Errors) > 0 {
		return nil, fmt.Errorf("regenerate %s: %s: %w", t, outcome.Errors[0].Message, generator.ErrGeneration)
	}
	return s.store.GetPillar(ctx, st.ID, t)
}

// runStage executes one stage. Only persistence errors are returned.
func (s *RegenerationService) runStage(
	ctx context.Context,
	st *strategy.Strategy,
	runID, actorID string,
	t strategy.PillarType,
	fresh *FreshOutputs,
	outcome *RunOutcome,
) error {
	pillar := st.Pillar(t)
	if pillar == nil {
		fresh.MarkFailed(t)
		outcome.Errors = append(outcome.Errors, StageError{Stage: t, Message: "pillar missing"})
		return nil
	}

	ctx, span := sfotel.StartStageSpan(ctx, runID, string(t))
	defer span.End()
	start := time.Now()
	log := slog.With("strategy_id", st.ID, "stage", string(t))

	if err := s.store.UpdatePillarStatus(ctx, pillar.ID, strategy.StatusGenerating, ""); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("stage %s: mark generating: %w", t, err)
	}
	pillar.Status = strategy.StatusGenerating
	s.broadcastPillar(ctx, st.ID, runID, pillar, "")

	body, genErr := s.gen.Generate(ctx, s.stageRequest(st, t, fresh))
	if genErr != nil {
		fresh.MarkFailed(t)
		msg := genErr.Error()
		log.WarnContext(ctx, "stage failed", "error", genErr)
		span.SetStatus(codes.Error, msg)
		if s.metrics != nil {
			s.metrics.StageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(t))))
		}

		if err := s.store.UpdatePillarStatus(ctx, pillar.ID, strategy.StatusError, msg); err != nil {
			return fmt.Errorf("stage %s: mark error: %w", t, err)
		}
		pillar.Status = strategy.StatusError
		pillar.ErrorMessage = msg
		outcome.Errors = append(outcome.Errors, StageError{Stage: t, Message: msg})
		s.broadcastPillar(ctx, st.ID, runID, pillar, msg)
		return nil
	}

	updated, err := s.store.CommitPillarContent(ctx, pillar.ID, body, actorID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if serr := s.store.UpdatePillarStatus(ctx, pillar.ID, strategy.StatusError, "persist failed"); serr != nil {
			log.ErrorContext(ctx, "mark pillar error failed", "error", serr)
		}
		return fmt.Errorf("stage %s: commit content: %w", t, err)
	}
	*pillar = *updated
	fresh.Put(t, updated.Content)
	outcome.Regenerated = append(outcome.Regenerated, t)

	if s.metrics != nil {
		s.metrics.StageDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("stage", string(t))))
	}
	log.InfoContext(ctx, "stage complete", "version", updated.Version)
	s.broadcastPillar(ctx, st.ID, runID, pillar, "")

	if t == strategy.TypeI && s.budget != nil {
		s.dispatcher.Submit(ctx, "budget_tier", st.ID, func(ctx context.Context) error {
			if err := s.budget.Recompute(ctx, st.ID); err != nil {
				slog.WarnContext(ctx, "pipeline warning: budget tier recompute failed", "strategy_id", st.ID, "error", err)
				return err
			}
			return nil
		})
	}
	return nil
}

// stageRequest builds the context bundle of t. A dependency generated in this
// run is passed fresh. A dependency that failed in this run is listed in
// FailedStages and, when it has durable content, passed with Stale set. A
// dependency not attempted in this run passes its durable content.
func (s *RegenerationService) stageRequest(st *strategy.Strategy, t strategy.PillarType, fresh *FreshOutputs) generator.StageRequest {
	req := generator.StageRequest{
		Stage:     t,
		Strategy:  generator.MetaOf(st),
		Interview: st.Interview.Clone(),
		Prior:     make(map[strategy.PillarType]generator.PriorOutput),
	}
	for _, dep := range t.Dependencies() {
		if c, ok := fresh.Get(dep); ok {
			req.Prior[dep] = generator.PriorOutput{Content: c}
			continue
		}

		p := st.Pillar(dep)
		durable := p != nil && p.HasContent()
		switch {
		case fresh.Failed(dep):
			req.FailedStages = append(req.FailedStages, dep)
			if durable {
				req.Prior[dep] = generator.PriorOutput{Content: p.Content, Stale: true}
			}
		case durable:
			req.Prior[dep] = generator.PriorOutput{Content: p.Content}
		}
	}
	return req
}

func (s *RegenerationService) submitRecomputes(ctx context.Context, strategyID string, trigger strategy.Trigger) {
	if s.scores != nil {
		s.dispatcher.Submit(ctx, "scores", strategyID, func(ctx context.Context) error {
			_, err := s.scores.RecalculateScores(ctx, strategyID, trigger)
			return err
		})
	}
	if s.widgets != nil {
		s.dispatcher.Submit(ctx, "widgets", strategyID, func(ctx context.Context) error {
			return s.widgets.Recompute(ctx, strategyID)
		})
	}
	slog.DebugContext(ctx, "recomputes submitted", "strategy_id", strategyID, "trigger", trigger)
}

func (s *RegenerationService) broadcastPillar(ctx context.Context, strategyID, runID string, p *strategy.Pillar, errMsg string) {
	s.hub.BroadcastEvent(ctx, ws.EventPillarStatus, ws.PillarStatusEvent{
		StrategyID: strategyID,
		RunID:      runID,
		Pillar:     string(p.Type),
		Status:     string(p.Status),
		Version:    p.Version,
		Error:      errMsg,
	})
}
