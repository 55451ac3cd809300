package scoring_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/okian/rankd/internal/domain/model"
	scoring "github.com/okian/rankd/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWeightedPP(t *testing.T) {
	Convey("Given three best scores of 500, 400 and 300 pp", t, func() {
		pps := []float64{500, 400, 300}

		Convey("Then the weighted sum decays by 0.95 per position", func() {
			So(scoring.WeightedPP(pps), ShouldAlmostEqual, 1150.75, 1e-9)
		})

		Convey("Then the bonus matches the play-count curve", func() {
			So(scoring.BonusPP(3), ShouldAlmostEqual, 0.7495, 1e-3)
		})

		Convey("Then the total is the sum of both", func() {
			So(scoring.TotalPP(pps), ShouldAlmostEqual, 1151.4995, 1e-3)
		})
	})

	Convey("Given no scores", t, func() {
		So(scoring.WeightedPP(nil), ShouldEqual, 0)
		So(scoring.BonusPP(0), ShouldEqual, 0)
		So(scoring.TotalPP(nil), ShouldEqual, 0)
	})

	Convey("Given malformed pp values", t, func() {
		pps := []float64{math.NaN(), 100, math.Inf(1), -50}

		Convey("Then they contribute nothing but still take a position", func() {
			So(scoring.WeightedPP(pps), ShouldAlmostEqual, 95, 1e-9)
		})
	})

	Convey("Given a very large number of scores", t, func() {
		Convey("Then the bonus approaches its ceiling", func() {
			So(scoring.BonusPP(100000), ShouldAlmostEqual, scoring.BonusCeiling, 1e-3)
		})
	})
}

func TestWeightedAccuracy(t *testing.T) {
	Convey("Given accuracies of 100, 98 and 95", t, func() {
		acc := scoring.WeightedAccuracy([]float64{100, 98, 95})

		Convey("Then the weighted average follows the decay weights", func() {
			// (100 + 98*0.95 + 95*0.9025) / (1 + 0.95 + 0.9025)
			So(acc, ShouldAlmostEqual, 278.8375/2.8525, 1e-9)
			So(acc, ShouldAlmostEqual, 97.752, 1e-3)
		})
	})

	Convey("Given no scores", t, func() {
		So(scoring.WeightedAccuracy(nil), ShouldEqual, 0)
	})

	Convey("Given out-of-range accuracies", t, func() {
		So(scoring.WeightedAccuracy([]float64{150}), ShouldEqual, 100)
		So(scoring.WeightedAccuracy([]float64{math.NaN()}), ShouldEqual, 0)
		So(scoring.SanitizeAccuracy(-4), ShouldEqual, 0)
	})
}

func TestEstimator(t *testing.T) {
	Convey("Given an estimator", t, func() {
		est := scoring.NewEstimator()
		beatmap := model.Beatmap{ID: 1, TotalLength: 144, Status: model.BeatmapRanked}
		score := model.ScoreRecord{Accuracy: 100, N300: 500, Mode: model.Standard}

		Convey("When scoring a full combo", func() {
			pp, ok, err := est.ComputePP(context.Background(), score, beatmap)

			Convey("Then it returns a positive result", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(pp, ShouldAlmostEqual, 12*12, 1e-9)
			})
		})

		Convey("When the play has misses and mods", func() {
			plain, _, _ := est.ComputePP(context.Background(), score, beatmap)
			score.NMiss = 3
			missed, _, _ := est.ComputePP(context.Background(), score, beatmap)
			score.NMiss = 0
			score.Mods = model.ModHardRock
			hr, _, _ := est.ComputePP(context.Background(), score, beatmap)

			Convey("Then misses lower and mods raise the result", func() {
				So(missed, ShouldBeLessThan, plain)
				So(hr, ShouldBeGreaterThan, plain)
			})
		})

		Convey("When the play failed", func() {
			ft := int64(1000)
			score.Failtime = &ft
			_, ok, err := est.ComputePP(context.Background(), score, beatmap)

			Convey("Then there is no result", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When latency is simulated and the context is cancelled", func() {
			slow := scoring.NewEstimator(scoring.WithLatencyRange(50*time.Millisecond, 60*time.Millisecond))
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, _, err := slow.ComputePP(ctx, score, beatmap)

			Convey("Then it returns the context error", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When options override defaults", func() {
			custom := scoring.NewEstimator(
				scoring.WithBasePP(1),
				scoring.WithModMultipliers(map[model.Mods]float64{model.ModHidden: 2}),
			)
			score.Mods = model.ModHidden
			pp, ok, _ := custom.ComputePP(context.Background(), score, beatmap)

			Convey("Then they are applied", func() {
				So(ok, ShouldBeTrue)
				So(pp, ShouldAlmostEqual, 24, 1e-9)
			})
		})
	})

	Convey("Given a calculator func", t, func() {
		var calc scoring.Calculator = scoring.CalculatorFunc(func(context.Context, model.ScoreRecord, model.Beatmap) (float64, bool, error) {
			return 7, true, nil
		})
		pp, ok, err := calc.ComputePP(context.Background(), model.ScoreRecord{}, model.Beatmap{})
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(pp, ShouldEqual, 7)
	})
}
