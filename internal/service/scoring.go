package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	sfotel "github.com/Strob0t/StratForge/internal/adapter/otel"
	"github.com/Strob0t/StratForge/internal/adapter/ws"
	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/content"
	"github.com/Strob0t/StratForge/internal/domain/scoring"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/port/broadcast"
	"github.com/Strob0t/StratForge/internal/port/contentparser"
	"github.com/Strob0t/StratForge/internal/port/database"
	"github.com/Strob0t/StratForge/internal/port/messagequeue"
	"github.com/Strob0t/StratForge/internal/port/schemaprovider"
)

// ScoreResult is the full outcome of one recalculation. Risk and BMF are nil
// when their audit pillar is not complete or did not parse.
type ScoreResult struct {
	StrategyID         string                                  `json:"strategy_id"`
	Trigger            strategy.Trigger                        `json:"trigger"`
	CoherenceScore     int                                     `json:"coherence_score"`
	CoherenceBreakdown scoring.CoherenceBreakdown              `json:"coherence_breakdown"`
	RiskScore          *int                                    `json:"risk_score"`
	RiskBreakdown      *scoring.RiskBreakdown                  `json:"risk_breakdown"`
	BmfScore           *int                                    `json:"bmf_score"`
	BmfBreakdown       *scoring.BmfBreakdown                   `json:"bmf_breakdown"`
	Issues             map[strategy.PillarType][]content.Issue `json:"issues,omitempty"`
}

// ScoreService recomputes the deterministic scores of a strategy and
// persists them.
type ScoreService struct {
	store   database.Store
	parser  contentparser.Parser
	schema  schemaprovider.Provider
	hub     broadcast.Broadcaster
	metrics *sfotel.Metrics
}

// NewScoreService creates a ScoreService.
func NewScoreService(
	store database.Store,
	parser contentparser.Parser,
	schema schemaprovider.Provider,
	hub broadcast.Broadcaster,
	metrics *sfotel.Metrics,
) *ScoreService {
	return &ScoreService{store: store, parser: parser, schema: schema, hub: hub, metrics: metrics}
}

// RecalculateScores loads the strategy, scores it and persists the result:
// coherence on the strategy, risk and BMF patched into the R and T content,
// and one history snapshot. A snapshot failure is logged, never returned.
func (s *ScoreService) RecalculateScores(ctx context.Context, strategyID string, trigger strategy.Trigger) (*ScoreResult, error) {
	if err := strategy.ValidateTrigger(trigger); err != nil {
		return nil, err
	}

	ctx, span := sfotel.StartScoreSpan(ctx, strategyID, string(trigger))
	defer span.End()

	st, err := s.store.GetStrategy(ctx, strategyID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load strategy: %w", err)
	}

	schemaIDs, err := s.schema.CurrentVariableIDs(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load schema: %w", err)
	}

	bundle, issues := s.parseAll(st.Pillars)
	res := &ScoreResult{StrategyID: st.ID, Trigger: trigger, Issues: issues}

	res.CoherenceBreakdown = scoring.Coherence(scoring.CoherenceInput{
		Pillars:   st.Pillars,
		Dataset:   st.Interview,
		SchemaIDs: schemaIDs,
		Bundle:    bundle,
		Parent:    s.parentBundle(ctx, st),
	})
	res.CoherenceScore = res.CoherenceBreakdown.Total

	if p := st.Pillar(strategy.TypeR); completeAndTyped(p, bundle.R != nil) {
		rb := scoring.Risk(bundle.R)
		res.RiskBreakdown = &rb
		res.RiskScore = &rb.Total
	}
	if p := st.Pillar(strategy.TypeT); completeAndTyped(p, bundle.T != nil) {
		bb := scoring.BrandMarketFit(bundle.T)
		res.BmfBreakdown = &bb
		res.BmfScore = &bb.Total
	}

	if err := s.persist(ctx, st, res); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	snap := &strategy.ScoreSnapshot{
		StrategyID:     st.ID,
		CoherenceScore: res.CoherenceScore,
		RiskScore:      res.RiskScore,
		BmfScore:       res.BmfScore,
		Trigger:        trigger,
	}
	if err := s.store.AppendScoreSnapshot(ctx, snap); err != nil {
		slog.ErrorContext(ctx, "append score snapshot failed", "strategy_id", st.ID, "trigger", trigger, "error", err)
	}

	if s.metrics != nil {
		s.metrics.ScoreRecalculations.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", string(trigger))))
	}
	span.SetAttributes(attribute.Int("score.coherence", res.CoherenceScore))

	s.hub.BroadcastEvent(ctx, ws.EventScoresUpdated, ws.ScoresUpdatedEvent{
		StrategyID:     st.ID,
		CoherenceScore: res.CoherenceScore,
		RiskScore:      res.RiskScore,
		BmfScore:       res.BmfScore,
		Trigger:        string(trigger),
	})

	slog.InfoContext(ctx, "scores recalculated", "strategy_id", st.ID, "trigger", trigger, "coherence", res.CoherenceScore)
	return res, nil
}

// History returns the newest score snapshots of a strategy.
func (s *ScoreService) History(ctx context.Context, strategyID string, limit int) ([]strategy.ScoreSnapshot, error) {
	if _, err := s.store.GetStrategy(ctx, strategyID); err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	return s.store.ListScoreSnapshots(ctx, strategyID, limit)
}

// StartRecomputeSubscriber recalculates scores for every message on the
// scores subject. Unknown strategies are acknowledged and dropped.
func (s *ScoreService) StartRecomputeSubscriber(ctx context.Context, q messagequeue.Queue) (func(), error) {
	return q.Subscribe(ctx, messagequeue.SubjectScoresRecompute, func(ctx context.Context, _ string, data []byte) error {
		var p messagequeue.RecomputePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode recompute payload: %w", err)
		}
		_, err := s.RecalculateScores(ctx, p.StrategyID, strategy.TriggerQueue)
		if errors.Is(err, domain.ErrNotFound) {
			slog.WarnContext(ctx, "score recompute for unknown strategy", "strategy_id", p.StrategyID)
			return nil
		}
		return err
	})
}

func (s *ScoreService) parseAll(pillars []strategy.Pillar) (content.Bundle, map[strategy.PillarType][]content.Issue) {
	var bundle content.Bundle
	issues := make(map[strategy.PillarType][]content.Issue)
	for i := range pillars {
		p := &pillars[i]
		if !p.HasContent() {
			continue
		}
		r := s.parser.Parse(p.Type, p.Content)
		bundle.Add(r)
		if is := r.ValidationIssues(); len(is) > 0 {
			issues[p.Type] = is
		}
	}
	return bundle, issues
}

// parentBundle parses the parent's foundation pillars. Failures degrade to
// no inheritance.
func (s *ScoreService) parentBundle(ctx context.Context, st *strategy.Strategy) *content.Bundle {
	if st.ParentID == "" {
		return nil
	}
	parent, err := s.store.GetStrategy(ctx, st.ParentID)
	if err != nil {
		slog.WarnContext(ctx, "load parent strategy failed", "strategy_id", st.ID, "parent_id", st.ParentID, "error", err)
		return nil
	}
	var b content.Bundle
	for _, t := range []strategy.PillarType{strategy.TypeA, strategy.TypeD} {
		if p := parent.Pillar(t); p != nil && p.HasContent() {
			b.Add(s.parser.Parse(t, p.Content))
		}
	}
	return &b
}

func (s *ScoreService) persist(ctx context.Context, st *strategy.Strategy, res *ScoreResult) error {
	if err := s.store.UpdateCoherenceScore(ctx, st.ID, res.CoherenceScore); err != nil {
		return fmt.Errorf("persist coherence score: %w", err)
	}
	if res.RiskScore != nil {
		if err := s.store.PatchPillarScore(ctx, st.Pillar(strategy.TypeR).ID, content.RiskScoreField, *res.RiskScore); err != nil {
			return fmt.Errorf("persist risk score: %w", err)
		}
	}
	if res.BmfScore != nil {
		if err := s.store.PatchPillarScore(ctx, st.Pillar(strategy.TypeT).ID, content.BmfScoreField, *res.BmfScore); err != nil {
			return fmt.Errorf("persist bmf score: %w", err)
		}
	}
	return nil
}

func completeAndTyped(p *strategy.Pillar, typed bool) bool {
	return p != nil && p.Status == strategy.StatusComplete && typed
}
