package content

import (
	"strings"

	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// Level is a qualitative low/medium/high rating.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Normalize lowercases and trims a level so "High " compares equal to LevelHigh.
func (l Level) Normalize() Level {
	return Level(strings.ToLower(strings.TrimSpace(string(l))))
}

// HypothesisStatus is the validation state of a market hypothesis.
type HypothesisStatus string

const (
	HypothesisValidated   HypothesisStatus = "validated"
	HypothesisInvalidated HypothesisStatus = "invalidated"
	HypothesisToTest      HypothesisStatus = "to_test"
)

// Normalize lowercases and trims a status.
func (s HypothesisStatus) Normalize() HypothesisStatus {
	return HypothesisStatus(strings.ToLower(strings.TrimSpace(string(s))))
}

// --- A ---

// Authenticity is the A pillar: identity, purpose and values.
type Authenticity struct {
	Archetype   string       `json:"archetype"`
	Purpose     string       `json:"purpose"`
	Mission     string       `json:"mission"`
	Vision      string       `json:"vision"`
	OriginStory string       `json:"originStory"`
	Values      []BrandValue `json:"values"`
}

// BrandValue is one declared brand value.
type BrandValue struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (*Authenticity) Stage() strategy.PillarType { return strategy.TypeA }

func (a *Authenticity) validate() []Issue {
	var issues []Issue
	if blank(a.Purpose) {
		issues = append(issues, Issue{Field: "purpose", Message: "purpose is empty"})
	}
	if len(a.Values) == 0 {
		issues = append(issues, Issue{Field: "values", Message: "no brand values"})
	}
	return issues
}

// --- D ---

// Distinction is the D pillar: positioning, personas and voice.
type Distinction struct {
	Positioning    string      `json:"positioning"`
	Personas       []Persona   `json:"personas"`
	ToneOfVoice    ToneOfVoice `json:"toneOfVoice"`
	Competitors    []string    `json:"competitors"`
	VisualIdentity string      `json:"visualIdentity"`
}

// Persona is a target customer profile.
type Persona struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Motivations []string `json:"motivations"`
}

// ToneOfVoice describes how the brand speaks.
type ToneOfVoice struct {
	Personality string   `json:"personality"`
	DoSay       []string `json:"doSay"`
	DontSay     []string `json:"dontSay"`
}

func (*Distinction) Stage() strategy.PillarType { return strategy.TypeD }

func (d *Distinction) validate() []Issue {
	var issues []Issue
	if blank(d.Positioning) {
		issues = append(issues, Issue{Field: "positioning", Message: "positioning is empty"})
	}
	if len(d.Personas) == 0 {
		issues = append(issues, Issue{Field: "personas", Message: "no personas"})
	}
	return issues
}

// --- V ---

// Value is the V pillar: promise, offers and economics.
type Value struct {
	ValueProposition string         `json:"valueProposition"`
	ProductLadder    []Offer        `json:"productLadder"`
	Pricing          string         `json:"pricing"`
	UnitEconomics    *UnitEconomics `json:"unitEconomics,omitempty"`
}

// Offer is one rung of the product ladder.
type Offer struct {
	Name        string `json:"name"`
	Tier        string `json:"tier"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

// UnitEconomics holds the headline per-customer economics.
type UnitEconomics struct {
	CAC    string `json:"cac"`
	LTV    string `json:"ltv"`
	Margin string `json:"margin"`
}

// Present reports whether any economics figure is filled in.
func (u *UnitEconomics) Present() bool {
	return u != nil && (!blank(u.CAC) || !blank(u.LTV) || !blank(u.Margin))
}

func (*Value) Stage() strategy.PillarType { return strategy.TypeV }

func (v *Value) validate() []Issue {
	var issues []Issue
	if blank(v.ValueProposition) {
		issues = append(issues, Issue{Field: "valueProposition", Message: "value proposition is empty"})
	}
	if len(v.ProductLadder) == 0 {
		issues = append(issues, Issue{Field: "productLadder", Message: "no offers"})
	}
	return issues
}

// --- E ---

// Engagement is the E pillar: touchpoints, rituals and KPIs.
type Engagement struct {
	Touchpoints []Touchpoint `json:"touchpoints"`
	Rituals     []Ritual     `json:"rituals"`
	KPIs        []KPI        `json:"kpis"`
	Community   string       `json:"community"`
}

// Touchpoint is a channel where a persona meets the brand.
type Touchpoint struct {
	Channel string `json:"channel"`
	Persona string `json:"persona"`
	Role    string `json:"role"`
}

// Ritual is a recurring brand experience.
type Ritual struct {
	Name        string `json:"name"`
	Frequency   string `json:"frequency"`
	Description string `json:"description"`
}

// KPI is a tracked engagement indicator.
type KPI struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

func (*Engagement) Stage() strategy.PillarType { return strategy.TypeE }

func (e *Engagement) validate() []Issue {
	if len(e.Touchpoints) == 0 {
		return []Issue{{Field: "touchpoints", Message: "no touchpoints"}}
	}
	return nil
}

// --- R ---

// RiskAudit is the R pillar: structured risk assessment.
type RiskAudit struct {
	MicroSwots              []MicroSwot  `json:"microSwots"`
	ProbabilityImpactMatrix []RiskItem   `json:"probabilityImpactMatrix"`
	GlobalSwot              Swot         `json:"globalSwot"`
	MitigationPriorities    []Mitigation `json:"mitigationPriorities"`
	Summary                 string       `json:"summary"`
	RiskScore               *int         `json:"riskScore,omitempty"`
}

// MicroSwot is the risk assessment of a single interview variable.
type MicroSwot struct {
	VariableID    string   `json:"variableId"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
	RiskLevel     Level    `json:"riskLevel"`
	Commentary    string   `json:"commentary"`
}

// RiskItem is one cell of the probability/impact matrix.
type RiskItem struct {
	Risk        string `json:"risk"`
	Probability Level  `json:"probability"`
	Impact      Level  `json:"impact"`
}

// Swot is a global strengths/weaknesses/opportunities/threats summary.
type Swot struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// Empty reports whether the SWOT has no entries at all.
func (s Swot) Empty() bool {
	return len(s.Strengths)+len(s.Weaknesses)+len(s.Opportunities)+len(s.Threats) == 0
}

// Mitigation is a planned response to a risk.
type Mitigation struct {
	Risk     string `json:"risk"`
	Action   string `json:"action"`
	Owner    string `json:"owner"`
	Timeline string `json:"timeline"`
}

func (*RiskAudit) Stage() strategy.PillarType { return strategy.TypeR }

func (r *RiskAudit) validate() []Issue {
	var issues []Issue
	if len(r.MicroSwots) == 0 {
		issues = append(issues, Issue{Field: "microSwots", Message: "no micro-SWOT assessments"})
	}
	if len(r.ProbabilityImpactMatrix) == 0 {
		issues = append(issues, Issue{Field: "probabilityImpactMatrix", Message: "matrix is empty"})
	}
	return issues
}

// --- T ---

// MarketAudit is the T pillar: market validation.
type MarketAudit struct {
	Triangulation        Triangulation `json:"triangulation"`
	HypothesisValidation []Hypothesis  `json:"hypothesisValidation"`
	MarketSizing         MarketSizing  `json:"marketSizing"`
	CompetitorBenchmark  []Benchmark   `json:"competitorBenchmark"`
	Recommendations      []string      `json:"recommendations"`
	MarketReality        MarketReality `json:"marketReality"`
	BrandMarketFitScore  *int          `json:"brandMarketFitScore,omitempty"`
}

// Triangulation cross-checks three data sources and a synthesis.
type Triangulation struct {
	InternalData string `json:"internalData"`
	MarketData   string `json:"marketData"`
	CustomerData string `json:"customerData"`
	Synthesis    string `json:"synthesis"`
}

// Any reports whether at least one triangulation field is filled in.
func (t Triangulation) Any() bool {
	return !blank(t.InternalData) || !blank(t.MarketData) || !blank(t.CustomerData) || !blank(t.Synthesis)
}

// Hypothesis is a market assumption under validation.
type Hypothesis struct {
	Hypothesis string           `json:"hypothesis"`
	Status     HypothesisStatus `json:"status"`
	Evidence   string           `json:"evidence"`
}

// MarketSizing holds TAM/SAM/SOM estimates.
type MarketSizing struct {
	TAM         string `json:"tam"`
	SAM         string `json:"sam"`
	SOM         string `json:"som"`
	Methodology string `json:"methodology"`
}

// Benchmark compares the brand with one competitor.
type Benchmark struct {
	Competitor     string `json:"competitor"`
	Strengths      string `json:"strengths"`
	Weaknesses     string `json:"weaknesses"`
	Differentiator string `json:"differentiator"`
}

// MarketReality lists observed market signals.
type MarketReality struct {
	MacroTrends      []string `json:"macroTrends"`
	WeakSignals      []string `json:"weakSignals"`
	EmergingPatterns []string `json:"emergingPatterns"`
}

func (*MarketAudit) Stage() strategy.PillarType { return strategy.TypeT }

func (m *MarketAudit) validate() []Issue {
	var issues []Issue
	if !m.Triangulation.Any() {
		issues = append(issues, Issue{Field: "triangulation", Message: "triangulation is empty"})
	}
	if len(m.HypothesisValidation) == 0 {
		issues = append(issues, Issue{Field: "hypothesisValidation", Message: "no hypotheses"})
	}
	return issues
}

// --- I ---

// Implementation is the I pillar: roadmap and budget.
type Implementation struct {
	Roadmap []Milestone `json:"roadmap"`
	Budget  Budget      `json:"budget"`
	Team    []string    `json:"team"`
}

// Milestone is one step of the implementation roadmap.
type Milestone struct {
	Title   string `json:"title"`
	Quarter string `json:"quarter"`
	Outcome string `json:"outcome"`
}

// Budget is the implementation budget envelope.
type Budget struct {
	Total string `json:"total"`
	Tier  string `json:"tier"`
}

func (*Implementation) Stage() strategy.PillarType { return strategy.TypeI }

func (i *Implementation) validate() []Issue {
	if len(i.Roadmap) == 0 {
		return []Issue{{Field: "roadmap", Message: "roadmap is empty"}}
	}
	return nil
}

// --- S ---

// Synthesis is the S pillar: executive summary of the whole strategy.
type Synthesis struct {
	ExecutiveSummary string   `json:"executiveSummary"`
	Priorities       []string `json:"priorities"`
}

func (*Synthesis) Stage() strategy.PillarType { return strategy.TypeS }

func (s *Synthesis) validate() []Issue {
	if blank(s.ExecutiveSummary) {
		return []Issue{{Field: "executiveSummary", Message: "executive summary is empty"}}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
