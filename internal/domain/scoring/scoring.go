// Package scoring holds the weighted-decay formulas used to aggregate
// per-score pp and accuracy, and the contract for the external pp calculator.
package scoring

import (
	"context"
	"math"

	"github.com/okian/rankd/internal/domain/model"
)

// Weighting constants.
const (
	// Decay is the weight multiplier applied per rank position.
	Decay = 0.95
	// BonusCeiling is the asymptotic maximum of the play-count bonus.
	BonusCeiling = 416.6667
	// BonusDecay controls how quickly the bonus approaches its ceiling.
	BonusDecay = 0.9994
)

// Sanitize returns v, or 0 when v is NaN, infinite or negative.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// SanitizeAccuracy returns v clamped to [0, 100], with malformed values as 0.
func SanitizeAccuracy(v float64) float64 {
	return math.Min(Sanitize(v), 100)
}

// WeightedPP returns Σ pp[i]·0.95^i. pps must be ordered best first.
func WeightedPP(pps []float64) float64 {
	total, w := 0.0, 1.0
	for _, pp := range pps {
		total += Sanitize(pp) * w
		w *= Decay
	}
	return total
}

// WeightedAccuracy returns Σ acc[i]·0.95^i / Σ 0.95^i, or 0 for no scores.
func WeightedAccuracy(accs []float64) float64 {
	num, den, w := 0.0, 0.0, 1.0
	for _, acc := range accs {
		num += SanitizeAccuracy(acc) * w
		den += w
		w *= Decay
	}
	if den == 0 {
		return 0
	}
	return SanitizeAccuracy(num / den)
}

// BonusPP returns the play-count bonus for n best scores.
func BonusPP(n int) float64 {
	if n <= 0 {
		return 0
	}
	return BonusCeiling * (1 - math.Pow(BonusDecay, float64(n)))
}

// TotalPP is the weighted pp plus the bonus for len(pps) scores.
func TotalPP(pps []float64) float64 {
	return WeightedPP(pps) + BonusPP(len(pps))
}

// Calculator computes the pp of a single score. ok is false when the
// calculator has no result for the score.
type Calculator interface {
	ComputePP(ctx context.Context, score model.ScoreRecord, beatmap model.Beatmap) (pp float64, ok bool, err error)
}

// CalculatorFunc adapts a function to Calculator.
type CalculatorFunc func(ctx context.Context, score model.ScoreRecord, beatmap model.Beatmap) (float64, bool, error)

// ComputePP calls f.
func (f CalculatorFunc) ComputePP(ctx context.Context, score model.ScoreRecord, beatmap model.Beatmap) (float64, bool, error) {
	return f(ctx, score, beatmap)
}
