package status_test

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/okian/rankd/internal/adapters/memory"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/scoring"
	"github.com/okian/rankd/internal/domain/status"
	. "github.com/smartystreets/goconvey/convey"
)

func hidden(id, beatmap int64, mods model.Mods, pp float64, total int64) model.ScoreRecord {
	return model.ScoreRecord{
		ID: id, PlayerID: 1, BeatmapID: beatmap, Mode: model.Standard,
		Mods: mods, PP: pp, TotalScore: total, Status: model.StatusHidden,
		Accuracy: 95, N300: 100,
	}
}

func failed(id, beatmap int64) model.ScoreRecord {
	ft := int64(3000)
	s := hidden(id, beatmap, 0, 0, 1000)
	s.Failtime = &ft
	return s
}

func apply(scores []model.ScoreRecord, changes []model.StatusChange) map[int64]model.ScoreStatus {
	out := make(map[int64]model.ScoreStatus, len(scores))
	for _, s := range scores {
		out[s.ID] = s.Status
	}
	for _, c := range changes {
		out[c.ScoreID] = c.To
	}
	return out
}

func TestResolve(t *testing.T) {
	Convey("Given five hidden passes on one beatmap across two mods values and two hidden fails", t, func() {
		hd := model.ModHidden
		hr := model.ModHardRock
		scores := []model.ScoreRecord{
			hidden(1, 100, hd, 300, 900_000),
			hidden(2, 100, hd, 280, 950_000),
			hidden(3, 100, hr, 250, 980_000),
			hidden(4, 100, hr, 260, 970_000),
			hidden(5, 100, hr, 100, 500_000),
			failed(6, 100),
			failed(7, 200),
		}
		got := apply(scores, status.Resolve(scores))

		Convey("Then the highest pp becomes Best", func() {
			So(got[1], ShouldEqual, model.StatusBest)
		})

		Convey("Then the other scores with the Best mods are Submitted", func() {
			So(got[2], ShouldEqual, model.StatusSubmitted)
		})

		Convey("Then the highest total score of the other mods is BestWithMods", func() {
			So(got[3], ShouldEqual, model.StatusBestWithMods)
			So(got[4], ShouldEqual, model.StatusSubmitted)
			So(got[5], ShouldEqual, model.StatusSubmitted)
		})

		Convey("Then hidden fails are recorded as Failed", func() {
			So(got[6], ShouldEqual, model.StatusFailed)
			So(got[7], ShouldEqual, model.StatusFailed)
		})
	})

	Convey("Given ties", t, func() {
		scores := []model.ScoreRecord{
			hidden(2, 1, 0, 200, 100),
			hidden(1, 1, 0, 200, 100),
			hidden(3, 1, 0, 200, 300),
			hidden(5, 1, model.ModEasy, 10, 50),
			hidden(4, 1, model.ModEasy, 10, 50),
		}
		got := apply(scores, status.Resolve(scores))

		Convey("Then pp ties go to total score, then the lower id", func() {
			So(got[3], ShouldEqual, model.StatusBest)
			So(got[1], ShouldEqual, model.StatusSubmitted)
			So(got[4], ShouldEqual, model.StatusBestWithMods)
			So(got[5], ShouldEqual, model.StatusSubmitted)
		})
	})

	Convey("Given a visible Best on the same beatmap", t, func() {
		visible := hidden(1, 1, 0, 150, 800_000)
		visible.Status = model.StatusBest

		Convey("When a restored score beats it", func() {
			scores := []model.ScoreRecord{visible, hidden(2, 1, 0, 200, 700_000)}
			got := apply(scores, status.Resolve(scores))

			Convey("Then the visible one is demoted", func() {
				So(got[2], ShouldEqual, model.StatusBest)
				So(got[1], ShouldEqual, model.StatusSubmitted)
			})
		})

		Convey("When the restored score is worse with other mods", func() {
			scores := []model.ScoreRecord{visible, hidden(2, 1, model.ModHidden, 100, 700_000)}
			changes := status.Resolve(scores)

			Convey("Then only the restored score changes", func() {
				So(changes, ShouldHaveLength, 1)
				So(changes[0].ScoreID, ShouldEqual, int64(2))
				So(changes[0].From, ShouldEqual, model.StatusHidden)
				So(changes[0].To, ShouldEqual, model.StatusBestWithMods)
			})
		})

		Convey("When the restored score is on another mode", func() {
			other := hidden(2, 1, 0, 900, 900_000)
			other.Mode = model.Taiko
			got := apply([]model.ScoreRecord{visible, other}, status.Resolve([]model.ScoreRecord{visible, other}))

			Convey("Then both keep Best", func() {
				So(got[1], ShouldEqual, model.StatusBest)
				So(got[2], ShouldEqual, model.StatusBest)
			})
		})
	})

	Convey("Given no hidden scores", t, func() {
		visible := hidden(1, 1, 0, 150, 800_000)
		visible.Status = model.StatusBest
		So(status.Resolve([]model.ScoreRecord{visible}), ShouldBeEmpty)
		So(status.Resolve(nil), ShouldBeEmpty)
	})
}

// TestResolveInvariants checks that after resolution every (beatmap, mode)
// with restored scores has exactly one Best and at most one BestWithMods per
// other mods value, and that no hidden score is left behind.
func TestResolveInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		scores := make([]model.ScoreRecord, 0, n)
		for i := 0; i < n; i++ {
			s := hidden(int64(i+1),
				int64(rapid.IntRange(1, 3).Draw(rt, "beatmap")),
				rapid.SampledFrom([]model.Mods{0, model.ModHidden, model.ModHardRock, model.ModHidden | model.ModHardRock}).Draw(rt, "mods"),
				float64(rapid.IntRange(0, 50).Draw(rt, "pp")),
				int64(rapid.IntRange(0, 50).Draw(rt, "total")))
			s.Mode = model.Mode(rapid.IntRange(0, 1).Draw(rt, "mode"))
			if rapid.IntRange(0, 5).Draw(rt, "fail") == 0 {
				ft := int64(1000)
				s.Failtime = &ft
			}
			scores = append(scores, s)
		}

		got := apply(scores, status.Resolve(scores))

		type key struct {
			beatmap int64
			mode    model.Mode
		}
		bests := map[key]int{}
		bestMods := map[key]model.Mods{}
		withMods := map[key]map[model.Mods]int{}
		for _, s := range scores {
			st := got[s.ID]
			if st == model.StatusHidden {
				rt.Fatalf("score %d still hidden", s.ID)
			}
			if !s.Passed() {
				if st != model.StatusFailed {
					rt.Fatalf("failed score %d became %v", s.ID, st)
				}
				continue
			}
			k := key{s.BeatmapID, s.Mode}
			switch st {
			case model.StatusBest:
				bests[k]++
				bestMods[k] = s.Mods
			case model.StatusBestWithMods:
				if withMods[k] == nil {
					withMods[k] = map[model.Mods]int{}
				}
				withMods[k][s.Mods]++
			}
		}
		for k, c := range bests {
			if c != 1 {
				rt.Fatalf("group %v has %d Best scores", k, c)
			}
		}
		for k, byMods := range withMods {
			if bests[k] != 1 {
				rt.Fatalf("group %v has BestWithMods but no Best", k)
			}
			for mods, c := range byMods {
				if c != 1 || mods == bestMods[k] {
					rt.Fatalf("group %v mods %v has %d BestWithMods", k, mods, c)
				}
			}
		}
	})
}

type stubRestorer struct {
	calls int
	err   error
}

func (s *stubRestorer) Restore(_ context.Context, playerID int64) ([]model.PlayerStats, error) {
	s.calls++
	return []model.PlayerStats{{PlayerID: playerID}}, s.err
}

func TestRestoreHidden(t *testing.T) {
	ctx := context.Background()

	Convey("Given a player with hidden scores", t, func() {
		db := memory.New()
		db.PutBeatmap(model.Beatmap{ID: 1, TotalLength: 100, Status: model.BeatmapRanked})
		db.PutScore(hidden(1, 1, 0, 120, 1000))
		db.PutScore(hidden(2, 1, 0, 0, 5000))
		db.PutScore(failed(3, 1))
		restorer := &stubRestorer{}

		Convey("When restored with a calculator", func() {
			calc := scoring.CalculatorFunc(func(_ context.Context, s model.ScoreRecord, b model.Beatmap) (float64, bool, error) {
				return float64(b.TotalLength) * 2, true, nil
			})
			r := status.New(db, db, restorer, status.WithCalculator(calc))
			res, err := r.RestoreHidden(ctx, 1)
			So(err, ShouldBeNil)

			Convey("Then missing pp is computed before resolution", func() {
				s2, _ := db.Score(2)
				So(s2.PP, ShouldEqual, 200)
				So(s2.Status, ShouldEqual, model.StatusBest)
				s1, _ := db.Score(1)
				So(s1.Status, ShouldEqual, model.StatusSubmitted)
			})

			Convey("Then stats are rebuilt once", func() {
				So(restorer.calls, ShouldEqual, 1)
				So(res.Changes, ShouldHaveLength, 3)
				So(res.Stats, ShouldHaveLength, 1)
			})
		})

		Convey("When restored without a calculator", func() {
			r := status.New(db, db, restorer)
			_, err := r.RestoreHidden(ctx, 1)
			So(err, ShouldBeNil)

			Convey("Then missing pp counts as zero", func() {
				s1, _ := db.Score(1)
				So(s1.Status, ShouldEqual, model.StatusBest)
				s3, _ := db.Score(3)
				So(s3.Status, ShouldEqual, model.StatusFailed)
			})
		})

		Convey("When the calculator fails", func() {
			calc := scoring.CalculatorFunc(func(context.Context, model.ScoreRecord, model.Beatmap) (float64, bool, error) {
				return 0, false, errors.New("calculator crashed")
			})
			r := status.New(db, db, restorer, status.WithCalculator(calc))
			_, err := r.RestoreHidden(ctx, 1)

			Convey("Then nothing is changed", func() {
				So(err, ShouldNotBeNil)
				So(restorer.calls, ShouldEqual, 0)
				s1, _ := db.Score(1)
				So(s1.Status, ShouldEqual, model.StatusHidden)
			})
		})

		Convey("When the stats rebuild fails", func() {
			restorer.err = errors.New("leaderboard down")
			r := status.New(db, db, restorer)
			res, err := r.RestoreHidden(ctx, 1)

			Convey("Then the status changes stay committed", func() {
				So(err, ShouldNotBeNil)
				So(res.Changes, ShouldHaveLength, 3)
				s3, _ := db.Score(3)
				So(s3.Status, ShouldEqual, model.StatusFailed)
			})
		})
	})
}
