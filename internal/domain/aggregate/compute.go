package aggregate

import (
	"sort"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/scoring"
)

// Input is everything Compute needs for one (player, mode).
type Input struct {
	PlayerID int64
	Mode     model.Mode
	Scores   []model.ScoreRecord
	Beatmaps map[int64]model.Beatmap
	// AwardLoved lets best scores on loved beatmaps count towards pp.
	AwardLoved bool
	// AllStatuses counts best scores regardless of beatmap status.
	AllStatuses bool
}

// Compute derives PlayerStats from a full score history. It is pure and
// deterministic; Rank is left at zero.
func Compute(in Input) model.PlayerStats {
	st := model.PlayerStats{PlayerID: in.PlayerID, Mode: in.Mode}

	var best []model.ScoreRecord
	for _, s := range in.Scores {
		st.Playcount++
		st.TotalScore += max(s.TotalScore, 0)
		st.MaxCombo = max(st.MaxCombo, s.MaxCombo)
		st.Playtime += playtime(s, in.Beatmaps)
		if s.Status == model.StatusBest {
			best = append(best, s)
		}
	}

	for _, s := range best {
		st.RankedScore += max(s.TotalScore, 0)
		st.TotalHits += s.TotalHits()
		if s.Grade.Valid() {
			st.GradeCounts[s.Grade]++
		}
	}

	top := make([]model.ScoreRecord, 0, len(best))
	for _, s := range best {
		if in.AllStatuses || in.Beatmaps[s.BeatmapID].Status.Rewards(in.AwardLoved) {
			top = append(top, s)
		}
	}
	sort.SliceStable(top, func(i, j int) bool {
		a, b := scoring.Sanitize(top[i].PP), scoring.Sanitize(top[j].PP)
		if a != b {
			return a > b
		}
		return top[i].ID < top[j].ID
	})

	pps := make([]float64, len(top))
	accs := make([]float64, len(top))
	var plain, assisted []float64
	for i, s := range top {
		pps[i] = s.PP
		accs[i] = s.Accuracy
		if s.Mods.Assisted() {
			assisted = append(assisted, s.PP)
		} else {
			plain = append(plain, s.PP)
		}
	}

	st.PP = scoring.TotalPP(pps)
	st.Accuracy = scoring.WeightedAccuracy(accs)
	st.PPVariants = [model.PPVariantCount]float64{
		scoring.WeightedPP(pps),
		scoring.WeightedPP(plain),
		scoring.WeightedPP(assisted),
	}
	return st
}

// playtime is failtime/1000 for failed plays, the beatmap length otherwise.
func playtime(s model.ScoreRecord, beatmaps map[int64]model.Beatmap) int64 {
	if s.Failtime != nil {
		return max(*s.Failtime/1000, 0)
	}
	return int64(max(beatmaps[s.BeatmapID].TotalLength, 0))
}

// beatmapIDs returns the distinct beatmaps of scores in first-seen order.
func beatmapIDs(scores []model.ScoreRecord) []int64 {
	seen := make(map[int64]struct{}, len(scores))
	ids := make([]int64, 0, len(scores))
	for _, s := range scores {
		if _, ok := seen[s.BeatmapID]; ok {
			continue
		}
		seen[s.BeatmapID] = struct{}{}
		ids = append(ids, s.BeatmapID)
	}
	return ids
}
