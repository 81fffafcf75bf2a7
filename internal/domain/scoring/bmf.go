package scoring

import "github.com/Strob0t/StratForge/internal/domain/content"

// Brand-market-fit component maxima.
const (
	MaxTriangulationQuality       = 25
	MaxHypothesisValidation       = 30
	MaxMarketSizing               = 20
	MaxCompetitiveDifferentiation = 25
)

// BmfBreakdown is the per-component brand-market-fit score.
type BmfBreakdown struct {
	TriangulationQuality       int `json:"triangulation_quality"`
	HypothesisValidation       int `json:"hypothesis_validation"`
	MarketSizing               int `json:"market_sizing"`
	CompetitiveDifferentiation int `json:"competitive_differentiation"`
	Total                      int `json:"total"`
}

// BrandMarketFit computes the brand-market-fit breakdown of a market audit.
func BrandMarketFit(a *content.MarketAudit) BmfBreakdown {
	if a == nil {
		a = &content.MarketAudit{}
	}
	b := BmfBreakdown{
		TriangulationQuality:       triangulationQuality(a.Triangulation),
		HypothesisValidation:       hypothesisValidation(a.HypothesisValidation),
		MarketSizing:               marketSizing(a.MarketSizing),
		CompetitiveDifferentiation: competitiveDifferentiation(a),
	}
	b.Total = clamp(b.TriangulationQuality+b.HypothesisValidation+b.MarketSizing+b.CompetitiveDifferentiation, MaxScore)
	return b
}

func triangulationQuality(t content.Triangulation) int {
	score := 0
	score += points(t.InternalData, 8)
	score += points(t.MarketData, 8)
	score += points(t.CustomerData, 5)
	score += points(t.Synthesis, 4)
	return clamp(score, MaxTriangulationQuality)
}

func hypothesisValidation(hs []content.Hypothesis) int {
	if len(hs) == 0 {
		return 0
	}
	var validated, toTest int
	for _, h := range hs {
		switch h.Status.Normalize() {
		case content.HypothesisValidated:
			validated++
		case content.HypothesisToTest:
			toTest++
		}
	}
	n := float64(len(hs))
	return clampRound(float64(validated)/n*25+(1-float64(toTest)/n)*5, MaxHypothesisValidation)
}

func marketSizing(m content.MarketSizing) int {
	score := points(m.TAM, 6) + points(m.SAM, 6) + points(m.SOM, 4) + points(m.Methodology, 4)
	return clamp(score, MaxMarketSizing)
}

func competitiveDifferentiation(a *content.MarketAudit) int {
	score := 0
	switch n := len(a.CompetitorBenchmark); {
	case n >= 2:
		score += 10
	case n == 1:
		score += 5
	}
	switch n := len(a.Recommendations); {
	case n >= 3:
		score += 8
	case n >= 1:
		score += 4
	}
	if len(a.MarketReality.MacroTrends) > 0 {
		score += 4
	}
	if len(a.MarketReality.WeakSignals) > 0 {
		score += 3
	}
	return clamp(score, MaxCompetitiveDifferentiation)
}

func points(field string, weight int) int {
	if blank(field) {
		return 0
	}
	return weight
}
