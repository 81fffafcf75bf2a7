package scoring

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/Strob0t/StratForge/internal/domain/content"
	"github.com/Strob0t/StratForge/internal/domain/schema"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// Coherence component maxima.
const (
	MaxPillarCompletion     = 25
	MaxVariableCoverage     = 20
	MaxContentQuality       = 15
	MaxCrossPillarAlignment = 25
	MaxAuditIntegration     = 15

	alignmentChecks       = 7
	minStringContentChars = 100
	minStructuredBytes    = 20
)

// CoherenceInput is everything the coherence formula looks at.
type CoherenceInput struct {
	Pillars []strategy.Pillar
	Dataset strategy.InterviewDataset
	// SchemaIDs is the current catalog; coverage is 0 when it is empty.
	SchemaIDs []string
	Bundle    content.Bundle
	// Parent is the parsed bundle of the parent strategy, nil for root strategies.
	Parent *content.Bundle
}

// CoherenceBreakdown is the per-component coherence score.
type CoherenceBreakdown struct {
	PillarCompletion     int `json:"pillar_completion"`
	VariableCoverage     int `json:"variable_coverage"`
	ContentQuality       int `json:"content_quality"`
	CrossPillarAlignment int `json:"cross_pillar_alignment"`
	AuditIntegration     int `json:"audit_integration"`
	Total                int `json:"total"`
}

// Coherence computes the coherence breakdown of a strategy.
func Coherence(in CoherenceInput) CoherenceBreakdown {
	completed, nonTrivial := 0, 0
	for i := range in.Pillars {
		p := &in.Pillars[i]
		if p.Status != strategy.StatusComplete {
			continue
		}
		completed++
		if isNonTrivial(p.Content) {
			nonTrivial++
		}
	}

	diff := schema.Diff(in.Dataset, in.SchemaIDs)

	b := CoherenceBreakdown{
		PillarCompletion:     scaled(completed, strategy.PillarCount, MaxPillarCompletion),
		VariableCoverage:     scaled(len(diff.FilledIDs), diff.TotalSchemaVars, MaxVariableCoverage),
		ContentQuality:       scaled(nonTrivial, strategy.PillarCount, MaxContentQuality),
		CrossPillarAlignment: scaled(alignmentPassed(in.Bundle, in.Parent), alignmentChecks, MaxCrossPillarAlignment),
		AuditIntegration:     auditIntegration(in.Bundle),
	}
	b.Total = clamp(b.PillarCompletion+b.VariableCoverage+b.ContentQuality+b.CrossPillarAlignment+b.AuditIntegration, MaxScore)
	return b
}

// isNonTrivial reports whether stored content carries real substance: a JSON
// string of at least 100 characters, or any other JSON value whose compact
// form is at least 20 bytes.
func isNonTrivial(raw json.RawMessage) bool {
	if strategy.IsNullContent(raw) {
		return false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return false
		}
		return utf8.RuneCountInString(s) >= minStringContentChars
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return false
	}
	return buf.Len() >= minStructuredBytes
}

// foundation is the subset of A and D consulted by the alignment checks.
type foundation struct {
	archetype   string
	purpose     string
	values      int
	positioning string
	personality string
	personas    int
}

func foundationOf(b *content.Bundle) foundation {
	var f foundation
	if b == nil {
		return f
	}
	if b.A != nil {
		f.archetype = b.A.Archetype
		f.purpose = b.A.Purpose
		f.values = len(b.A.Values)
	}
	if b.D != nil {
		f.positioning = b.D.Positioning
		f.personality = b.D.ToneOfVoice.Personality
		f.personas = len(b.D.Personas)
	}
	return f
}

// inherit fills blank fields of f from parent.
func (f foundation) inherit(parent foundation) foundation {
	if blank(f.archetype) {
		f.archetype = parent.archetype
	}
	if blank(f.purpose) {
		f.purpose = parent.purpose
	}
	if f.values == 0 {
		f.values = parent.values
	}
	if blank(f.positioning) {
		f.positioning = parent.positioning
	}
	if blank(f.personality) {
		f.personality = parent.personality
	}
	if f.personas == 0 {
		f.personas = parent.personas
	}
	return f
}

func alignmentPassed(b content.Bundle, parent *content.Bundle) int {
	f := foundationOf(&b)
	if parent != nil {
		f = f.inherit(foundationOf(parent))
	}

	var (
		proposition string
		offers      int
		economics   bool
	)
	if b.V != nil {
		proposition = b.V.ValueProposition
		offers = len(b.V.ProductLadder)
		economics = b.V.UnitEconomics.Present()
	}
	var touchpoints, rituals, kpis int
	if b.E != nil {
		touchpoints = len(b.E.Touchpoints)
		rituals = len(b.E.Rituals)
		kpis = len(b.E.KPIs)
	}

	checks := [alignmentChecks]bool{
		// values inform voice
		f.values > 0 && !blank(f.personality),
		// archetype informs positioning
		!blank(f.archetype) && !blank(f.positioning),
		// personas inform touchpoints
		f.personas > 0 && touchpoints > 0,
		// positioning informs promise
		!blank(f.positioning) && !blank(proposition),
		// offers address personas
		offers > 0 && f.personas > 0,
		// purpose grounds rituals
		!blank(f.purpose) && rituals > 0,
		// economics tracked by KPIs
		economics && kpis > 0,
	}
	passed := 0
	for _, ok := range checks {
		if ok {
			passed++
		}
	}
	return passed
}

func auditIntegration(b content.Bundle) int {
	passed, total := 0, 0
	count := func(ok bool) {
		total++
		if ok {
			passed++
		}
	}
	if r := b.R; r != nil {
		count(len(r.MicroSwots) > 0)
		count(!r.GlobalSwot.Empty())
		count(len(r.MitigationPriorities) > 0)
	}
	if t := b.T; t != nil {
		count(t.Triangulation.Any())
		count(len(t.HypothesisValidation) > 0)
		count(!blank(t.MarketSizing.TAM))
	}
	return scaled(passed, total, MaxAuditIntegration)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
