// Package database defines the database store port (interface).
package database

import (
	"context"
	"encoding/json"

	"github.com/Strob0t/StratForge/internal/domain/schema"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// Store is the port interface for database operations.
type Store interface {
	// Strategies
	CreateStrategy(ctx context.Context, req strategy.CreateRequest) (*strategy.Strategy, error)
	// GetStrategy returns the strategy with its pillars loaded in stage order.
	GetStrategy(ctx context.Context, id string) (*strategy.Strategy, error)
	UpdateInterviewDataset(ctx context.Context, id string, dataset strategy.InterviewDataset) error
	UpdateStrategyPhase(ctx context.Context, id string, phase strategy.Phase) error
	UpdateCoherenceScore(ctx context.Context, id string, score int) error

	// Pillars
	ListPillars(ctx context.Context, strategyID string) ([]strategy.Pillar, error)
	GetPillar(ctx context.Context, strategyID string, t strategy.PillarType) (*strategy.Pillar, error)
	UpdatePillarStatus(ctx context.Context, pillarID string, status strategy.PillarStatus, errMsg string) error
	// CommitPillarContent atomically snapshots any existing non-null content
	// into a PillarVersion, then stores content with status complete and
	// version+1. It returns the updated pillar.
	CommitPillarContent(ctx context.Context, pillarID string, content json.RawMessage, actorID string) (*strategy.Pillar, error)
	// PatchPillarScore sets one top-level score key inside object content,
	// leaving the rest untouched. Non-object content is left as is.
	PatchPillarScore(ctx context.Context, pillarID, field string, score int) error
	ListPillarVersions(ctx context.Context, pillarID string) ([]strategy.PillarVersion, error)

	// Score history
	AppendScoreSnapshot(ctx context.Context, snap *strategy.ScoreSnapshot) error
	ListScoreSnapshots(ctx context.Context, strategyID string, limit int) ([]strategy.ScoreSnapshot, error)

	// Schema catalog
	ListSchemaVariables(ctx context.Context) ([]schema.Variable, error)
	ReplaceSchemaVariables(ctx context.Context, vars []schema.Variable) error
}
