// Package status decides which scores count as a player's best when
// hidden scores are restored after a moderation action.
package status

import (
	"sort"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/scoring"
)

type groupKey struct {
	beatmap int64
	mode    model.Mode
}

// Resolve returns the status changes that restore every hidden score of a
// single player:
//
//   - hidden failed plays become Failed;
//   - hidden passed plays are grouped by (beatmap, mode) together with the
//     visible Best and BestWithMods scores already in that group. The
//     highest pp becomes Best, the highest total score of every other mods
//     value becomes BestWithMods, everything else Submitted.
//
// Groups without hidden scores are left untouched. Resolve does not mutate
// scores and its output is ordered by score id.
func Resolve(scores []model.ScoreRecord) []model.StatusChange {
	var changes []model.StatusChange
	groups := make(map[groupKey][]model.ScoreRecord)
	restoring := make(map[groupKey]bool)

	for _, s := range scores {
		k := groupKey{beatmap: s.BeatmapID, mode: s.Mode}
		switch {
		case s.Status == model.StatusHidden && !s.Passed():
			changes = append(changes, change(s, model.StatusFailed))
		case s.Status == model.StatusHidden:
			groups[k] = append(groups[k], s)
			restoring[k] = true
		case s.Status == model.StatusBest || s.Status == model.StatusBestWithMods:
			groups[k] = append(groups[k], s)
		}
	}

	for k, group := range groups {
		if !restoring[k] {
			continue
		}
		assigned := targets(group)
		for _, s := range group {
			if target := assigned[s.ID]; target != s.Status {
				changes = append(changes, change(s, target))
			}
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].ScoreID < changes[j].ScoreID })
	return changes
}

// targets assigns a status to every score of one (beatmap, mode) group.
func targets(group []model.ScoreRecord) map[int64]model.ScoreStatus {
	out := make(map[int64]model.ScoreStatus, len(group))

	best := group[0]
	for _, s := range group[1:] {
		if beatsOnPP(s, best) {
			best = s
		}
	}
	out[best.ID] = model.StatusBest

	buckets := make(map[model.Mods]model.ScoreRecord)
	for _, s := range group {
		if s.ID == best.ID {
			continue
		}
		out[s.ID] = model.StatusSubmitted
		if s.Mods == best.Mods {
			continue
		}
		if cur, ok := buckets[s.Mods]; !ok || beatsOnScore(s, cur) {
			buckets[s.Mods] = s
		}
	}
	for _, s := range buckets {
		out[s.ID] = model.StatusBestWithMods
	}
	return out
}

// beatsOnPP orders by pp desc, then total score desc, then id asc.
func beatsOnPP(a, b model.ScoreRecord) bool {
	pa, pb := scoring.Sanitize(a.PP), scoring.Sanitize(b.PP)
	if pa != pb {
		return pa > pb
	}
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	return a.ID < b.ID
}

// beatsOnScore orders by total score desc, then id asc.
func beatsOnScore(a, b model.ScoreRecord) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	return a.ID < b.ID
}

func change(s model.ScoreRecord, to model.ScoreStatus) model.StatusChange {
	return model.StatusChange{ScoreID: s.ID, BeatmapID: s.BeatmapID, From: s.Status, To: to}
}
