// Package content defines the typed shapes of generated pillar content and the
// best-effort parser that turns stored JSON into them.
package content

import (
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// Issue is a non-fatal validation finding produced while parsing content.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Payload is the typed content of one pillar.
type Payload interface {
	Stage() strategy.PillarType
	validate() []Issue
}

// Result is the outcome of parsing stored content. It is either Typed or Raw;
// callers must type-switch and handle Raw explicitly.
type Result interface {
	PillarType() strategy.PillarType
	ValidationIssues() []Issue
	sealed()
}

// Typed is content that decoded into its stage payload.
type Typed struct {
	Type    strategy.PillarType
	Payload Payload
	Issues  []Issue
}

func (t Typed) PillarType() strategy.PillarType { return t.Type }
func (t Typed) ValidationIssues() []Issue       { return t.Issues }
func (Typed) sealed()                           {}

// Raw is content that could not be decoded; Blob holds it untouched.
type Raw struct {
	Type   strategy.PillarType
	Blob   []byte
	Issues []Issue
}

func (r Raw) PillarType() strategy.PillarType { return r.Type }
func (r Raw) ValidationIssues() []Issue       { return r.Issues }
func (Raw) sealed()                           {}

// Bundle holds the typed payloads of one strategy, nil where a pillar is
// absent or did not parse.
type Bundle struct {
	A *Authenticity
	D *Distinction
	V *Value
	E *Engagement
	R *RiskAudit
	T *MarketAudit
	I *Implementation
	S *Synthesis
}

// Add stores r in the bundle when it is Typed. Raw results are ignored.
func (b *Bundle) Add(r Result) {
	t, ok := r.(Typed)
	if !ok {
		return
	}
	switch p := t.Payload.(type) {
	case *Authenticity:
		b.A = p
	case *Distinction:
		b.D = p
	case *Value:
		b.V = p
	case *Engagement:
		b.E = p
	case *RiskAudit:
		b.R = p
	case *MarketAudit:
		b.T = p
	case *Implementation:
		b.I = p
	case *Synthesis:
		b.S = p
	}
}
