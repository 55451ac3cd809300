package scoring

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/rankd/internal/domain/model"
)

// Default estimator configuration constants.
const (
	defaultBasePP     = 12.0
	defaultRandomSeed = 42
)

// EstimatorOption applies a configuration option to the Estimator.
type EstimatorOption func(*Estimator)

// WithLatencyRange sets a simulated latency range for each computation.
func WithLatencyRange(minLatency, maxLatency time.Duration) EstimatorOption {
	return func(e *Estimator) {
		if minLatency > 0 && maxLatency > minLatency {
			e.minLatency = minLatency
			e.maxLatency = maxLatency
		}
	}
}

// WithModMultipliers sets pp multipliers per mod flag.
func WithModMultipliers(multipliers map[model.Mods]float64) EstimatorOption {
	return func(e *Estimator) {
		e.modMultipliers = make(map[model.Mods]float64, len(multipliers))
		for mod, m := range multipliers {
			if m > 0 {
				e.modMultipliers[mod] = m
			}
		}
	}
}

// WithBasePP sets the pp of a perfect one-second play.
func WithBasePP(base float64) EstimatorOption {
	return func(e *Estimator) {
		if base > 0 {
			e.basePP = base
		}
	}
}

// Estimator is a stand-in Calculator for deployments without a native
// difficulty calculator. Results are deterministic for a given score.
type Estimator struct {
	basePP         float64
	modMultipliers map[model.Mods]float64
	minLatency     time.Duration
	maxLatency     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEstimator creates an estimator with configuration options.
func NewEstimator(opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		basePP: defaultBasePP,
		modMultipliers: map[model.Mods]float64{
			model.ModHidden:     1.06,
			model.ModHardRock:   1.10,
			model.ModDoubleTime: 1.20,
			model.ModEasy:       0.50,
			model.ModNoFail:     0.90,
		},
		rng: rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // jitter only
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputePP implements Calculator. Failed plays and plays without hits
// have no result.
func (e *Estimator) ComputePP(ctx context.Context, score model.ScoreRecord, beatmap model.Beatmap) (float64, bool, error) {
	if e.maxLatency > 0 {
		e.mu.Lock()
		latency := e.minLatency + time.Duration(e.rng.Int63n(int64(e.maxLatency-e.minLatency)))
		e.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, false, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(latency):
		}
	}
	if !score.Passed() || score.TotalHits() == 0 || beatmap.TotalLength <= 0 {
		return 0, false, nil
	}

	acc := SanitizeAccuracy(score.Accuracy) / 100
	pp := e.basePP * math.Sqrt(float64(beatmap.TotalLength)) * math.Pow(acc, 4)
	missPenalty := math.Pow(0.97, float64(score.NMiss))
	pp *= missPenalty
	for mod, m := range e.modMultipliers {
		if score.Mods.Has(mod) {
			pp *= m
		}
	}
	return Sanitize(pp), true, nil
}
