package scoring

import "github.com/Strob0t/StratForge/internal/domain/content"

// Risk component maxima.
const (
	MaxMicroSwotRisk         = 40
	MaxProbabilityImpactRisk = 30
	MaxGlobalSwotBalance     = 20
	MaxMitigationCoverage    = 10

	neutralRiskValue = 0.5
	maxCellValue     = 9
)

// RiskBreakdown is the per-component risk score. MitigationCoverage is a
// penalty: the higher it is, the fewer high risks are mitigated.
type RiskBreakdown struct {
	MicroSwotRisk         int `json:"micro_swot_risk"`
	ProbabilityImpactRisk int `json:"probability_impact_risk"`
	GlobalSwotBalance     int `json:"global_swot_balance"`
	MitigationCoverage    int `json:"mitigation_coverage"`
	Total                 int `json:"total"`
}

// Risk computes the risk breakdown of a risk audit. Missing data yields the
// neutral defaults, so an empty audit scores 45.
func Risk(a *content.RiskAudit) RiskBreakdown {
	if a == nil {
		a = &content.RiskAudit{}
	}
	b := RiskBreakdown{
		MicroSwotRisk:         microSwotRisk(a.MicroSwots),
		ProbabilityImpactRisk: probabilityImpactRisk(a.ProbabilityImpactMatrix),
		GlobalSwotBalance:     globalSwotBalance(a.GlobalSwot),
		MitigationCoverage:    mitigationPenalty(a.MicroSwots, len(a.MitigationPriorities)),
	}
	b.Total = clamp(b.MicroSwotRisk+b.ProbabilityImpactRisk+b.GlobalSwotBalance+b.MitigationCoverage, MaxScore)
	return b
}

func microSwotRisk(items []content.MicroSwot) int {
	avg := neutralRiskValue
	if len(items) > 0 {
		var sum float64
		for _, it := range items {
			sum += riskValue(it.RiskLevel)
		}
		avg = sum / float64(len(items))
	}
	return clampRound(avg*MaxMicroSwotRisk, MaxMicroSwotRisk)
}

func probabilityImpactRisk(matrix []content.RiskItem) int {
	if len(matrix) == 0 {
		return MaxProbabilityImpactRisk / 2
	}
	sum := 0
	for _, it := range matrix {
		sum += levelWeight(it.Probability) * levelWeight(it.Impact)
	}
	return scaled(sum, len(matrix)*maxCellValue, MaxProbabilityImpactRisk)
}

func globalSwotBalance(s content.Swot) int {
	negatives := len(s.Weaknesses) + len(s.Threats)
	positives := len(s.Strengths) + len(s.Opportunities)
	if negatives+positives == 0 {
		return MaxGlobalSwotBalance / 2
	}
	return scaled(negatives, negatives+positives, MaxGlobalSwotBalance)
}

func mitigationPenalty(items []content.MicroSwot, mitigations int) int {
	high := 0
	for _, it := range items {
		if it.RiskLevel.Normalize() == content.LevelHigh {
			high++
		}
	}
	if high == 0 {
		return 0
	}
	coverage := min(1, float64(mitigations)/float64(high))
	return clampRound((1-coverage)*MaxMitigationCoverage, MaxMitigationCoverage)
}

// riskValue maps a micro-SWOT level onto [0,1]; unknown levels are neutral.
func riskValue(l content.Level) float64 {
	switch l.Normalize() {
	case content.LevelLow:
		return 0
	case content.LevelHigh:
		return 1
	default:
		return neutralRiskValue
	}
}

// levelWeight maps a probability or impact level onto 1..3; unknown levels weigh 2.
func levelWeight(l content.Level) int {
	switch l.Normalize() {
	case content.LevelLow:
		return 1
	case content.LevelHigh:
		return 3
	default:
		return 2
	}
}
