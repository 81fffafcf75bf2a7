package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/StratForge/internal/domain"
)

// PillarType identifies one of the eight canonical pillars of a strategy.
type PillarType string

const (
	TypeA PillarType = "A" // authenticity
	TypeD PillarType = "D" // distinction
	TypeV PillarType = "V" // value
	TypeE PillarType = "E" // engagement
	TypeR PillarType = "R" // risk audit
	TypeT PillarType = "T" // market validation (track)
	TypeI PillarType = "I" // implementation
	TypeS PillarType = "S" // synthesis
)

// Stages is the fixed regeneration order.
var Stages = [8]PillarType{TypeA, TypeD, TypeV, TypeE, TypeR, TypeT, TypeI, TypeS}

// PillarCount is the number of pillars every strategy holds.
const PillarCount = len(Stages)

// PillarStatus represents the generation state of a pillar.
type PillarStatus string

const (
	StatusIdle       PillarStatus = "idle"
	StatusGenerating PillarStatus = "generating"
	StatusComplete   PillarStatus = "complete"
	StatusError      PillarStatus = "error"
)

// StageSwitch is implemented by anything that dispatches on a pillar type.
// Adding or removing a stage changes this interface, so every dispatcher
// stops compiling until it handles the change.
type StageSwitch[R any] interface {
	Authenticity() R
	Distinction() R
	Value() R
	Engagement() R
	Risk() R
	Track() R
	Implementation() R
	Synthesis() R
}

// Visit dispatches t to the matching method of s.
func Visit[R any](t PillarType, s StageSwitch[R]) (R, error) {
	switch t {
	case TypeA:
		return s.Authenticity(), nil
	case TypeD:
		return s.Distinction(), nil
	case TypeV:
		return s.Value(), nil
	case TypeE:
		return s.Engagement(), nil
	case TypeR:
		return s.Risk(), nil
	case TypeT:
		return s.Track(), nil
	case TypeI:
		return s.Implementation(), nil
	case TypeS:
		return s.Synthesis(), nil
	}
	var zero R
	return zero, fmt.Errorf("pillar type %q: %w", t, domain.ErrValidation)
}

// ParsePillarType converts s into a PillarType.
func ParsePillarType(s string) (PillarType, error) {
	t := PillarType(s)
	if _, err := Visit[string](t, names{}); err != nil {
		return "", err
	}
	return t, nil
}

// Name returns the human-readable pillar name.
func (t PillarType) Name() string {
	n, err := Visit[string](t, names{})
	if err != nil {
		return string(t)
	}
	return n
}

// Index returns the position of t in Stages, or -1.
func (t PillarType) Index() int {
	for i, s := range Stages {
		if s == t {
			return i
		}
	}
	return -1
}

// IsFiche reports whether t is one of the foundational A/D/V/E pillars.
func (t PillarType) IsFiche() bool {
	return t == TypeA || t == TypeD || t == TypeV || t == TypeE
}

// Dependencies returns the stages whose output t consumes, in stage order.
// The result is always a subset of the stages preceding t.
func (t PillarType) Dependencies() []PillarType {
	deps, err := Visit[[]PillarType](t, dependencies{})
	if err != nil {
		return nil
	}
	return deps
}

type names struct{}

func (names) Authenticity() string   { return "Authenticity" }
func (names) Distinction() string    { return "Distinction" }
func (names) Value() string          { return "Value" }
func (names) Engagement() string     { return "Engagement" }
func (names) Risk() string           { return "Risk Audit" }
func (names) Track() string          { return "Market Validation" }
func (names) Implementation() string { return "Implementation" }
func (names) Synthesis() string      { return "Synthesis" }

// dependencies encodes the read-after-write chain of the regeneration pipeline.
// Fiche stages see every fiche output produced before them, R sees all fiches,
// T adds R, I adds T, and S sees everything.
type dependencies struct{}

func (dependencies) Authenticity() []PillarType { return nil }
func (dependencies) Distinction() []PillarType  { return []PillarType{TypeA} }
func (dependencies) Value() []PillarType        { return []PillarType{TypeA, TypeD} }
func (dependencies) Engagement() []PillarType   { return []PillarType{TypeA, TypeD, TypeV} }
func (dependencies) Risk() []PillarType         { return []PillarType{TypeA, TypeD, TypeV, TypeE} }
func (dependencies) Track() []PillarType {
	return []PillarType{TypeA, TypeD, TypeV, TypeE, TypeR}
}

func (dependencies) Implementation() []PillarType {
	return []PillarType{TypeA, TypeD, TypeV, TypeE, TypeR, TypeT}
}

func (dependencies) Synthesis() []PillarType {
	return []PillarType{TypeA, TypeD, TypeV, TypeE, TypeR, TypeT, TypeI}
}

// Pillar is one content slot of a strategy.
type Pillar struct {
	ID           string          `json:"id"`
	StrategyID   string          `json:"strategy_id"`
	Type         PillarType      `json:"type"`
	Status       PillarStatus    `json:"status"`
	Content      json.RawMessage `json:"content"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Version      int             `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasContent reports whether the pillar holds non-null content.
func (p *Pillar) HasContent() bool {
	return !IsNullContent(p.Content)
}

// IsNullContent reports whether raw is absent or a JSON null.
func IsNullContent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// PillarVersion is an immutable snapshot of pillar content taken before an overwrite.
type PillarVersion struct {
	ID        string          `json:"id"`
	PillarID  string          `json:"pillar_id"`
	Version   int             `json:"version"`
	Content   json.RawMessage `json:"content"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}
