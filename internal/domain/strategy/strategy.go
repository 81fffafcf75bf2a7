// Package strategy contains the domain model of a multi-pillar strategy document.
package strategy

import (
	"time"
)

// Phase represents the lifecycle phase of a strategy.
type Phase string

const (
	PhaseDraft      Phase = "draft"
	PhaseInterview  Phase = "interview"
	PhaseGeneration Phase = "generation"
	PhaseComplete   Phase = "complete"
)

// InterviewDataset is the flat map of raw interview answers keyed by variable ID.
type InterviewDataset map[string]string

// Clone returns a copy of d. A nil dataset clones to an empty one.
func (d InterviewDataset) Clone() InterviewDataset {
	out := make(InterviewDataset, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Strategy is the aggregate root holding eight pillars and an interview dataset.
type Strategy struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"`
	ParentID       string           `json:"parent_id,omitempty"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Sector         string           `json:"sector"`
	Phase          Phase            `json:"phase"`
	CoherenceScore int              `json:"coherence_score"`
	Interview      InterviewDataset `json:"interview"`
	Version        int              `json:"version"`
	Pillars        []Pillar         `json:"pillars,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CanAccess reports whether actorID may read or modify the strategy.
func (s *Strategy) CanAccess(actorID string) bool {
	return actorID != "" && s.OwnerID == actorID
}

// Pillar returns the pillar of type t, or nil.
func (s *Strategy) Pillar(t PillarType) *Pillar {
	for i := range s.Pillars {
		if s.Pillars[i].Type == t {
			return &s.Pillars[i]
		}
	}
	return nil
}

// CreateRequest is the input for creating a strategy with its eight pillars.
type CreateRequest struct {
	OwnerID     string           `json:"owner_id"`
	ParentID    string           `json:"parent_id,omitempty"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Sector      string           `json:"sector"`
	Interview   InterviewDataset `json:"interview,omitempty"`
}

// Trigger records why a score recomputation happened.
type Trigger string

const (
	TriggerManual       Trigger = "manual"
	TriggerRegeneration Trigger = "regeneration"
	TriggerUpgrade      Trigger = "upgrade"
	TriggerPillarUpdate Trigger = "pillar_update"
	TriggerScheduled    Trigger = "scheduled"
	TriggerQueue        Trigger = "queue"
)

// ScoreSnapshot is an append-only history row of computed scores.
type ScoreSnapshot struct {
	ID             string    `json:"id"`
	StrategyID     string    `json:"strategy_id"`
	CoherenceScore int       `json:"coherence_score"`
	RiskScore      *int      `json:"risk_score"`
	BmfScore       *int      `json:"bmf_score"`
	Trigger        Trigger   `json:"trigger"`
	CreatedAt      time.Time `json:"created_at"`
}
