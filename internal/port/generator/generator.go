// Package generator defines the port for the external content generator.
package generator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Strob0t/StratForge/internal/domain/schema"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// ErrGeneration marks a failed generator call. Adapters wrap it.
var ErrGeneration = errors.New("generation failed")

// StrategyMeta is the strategy metadata handed to the generator.
type StrategyMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Sector      string `json:"sector"`
}

// MetaOf extracts the generator metadata of s.
func MetaOf(s *strategy.Strategy) StrategyMeta {
	return StrategyMeta{ID: s.ID, Name: s.Name, Description: s.Description, Sector: s.Sector}
}

// PriorOutput is the content of an upstream stage. Stale is set when the
// stage failed in this run and Content is its last durably committed value.
type PriorOutput struct {
	Content json.RawMessage `json:"content"`
	Stale   bool            `json:"stale,omitempty"`
}

// StageRequest is the context bundle for generating one pillar. Prior holds
// the outputs of the stage's dependencies; FailedStages lists dependencies
// that failed earlier in this run.
type StageRequest struct {
	Stage        strategy.PillarType                 `json:"stage"`
	Strategy     StrategyMeta                        `json:"strategy"`
	Interview    strategy.InterviewDataset           `json:"interview"`
	Prior        map[strategy.PillarType]PriorOutput `json:"prior"`
	FailedStages []strategy.PillarType               `json:"failed_stages,omitempty"`
}

// BackfillRequest asks the generator to propose values for dataset gaps.
type BackfillRequest struct {
	Strategy  StrategyMeta              `json:"strategy"`
	Interview strategy.InterviewDataset `json:"interview"`
	Variables []schema.Variable         `json:"variables"`
}

// Generator produces pillar content and interview backfills.
type Generator interface {
	// Generate returns the content of req.Stage.
	Generate(ctx context.Context, req StageRequest) (json.RawMessage, error)
	// Backfill returns proposed values keyed by variable ID.
	Backfill(ctx context.Context, req BackfillRequest) (map[string]string, error)
}
