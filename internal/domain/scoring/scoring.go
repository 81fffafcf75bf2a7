// Package scoring implements the deterministic Coherence, Risk and
// Brand-Market-Fit calculators. All functions are pure and safe for
// concurrent use.
package scoring

import "math"

// MaxScore is the upper bound of every total.
const MaxScore = 100

// scaled returns round(num/den × max), or 0 when den is not positive.
func scaled(num, den, max int) int {
	if den <= 0 {
		return 0
	}
	return clamp(int(math.Round(float64(num)/float64(den)*float64(max))), max)
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func clampRound(v float64, max int) int {
	return clamp(int(math.Round(v)), max)
}
