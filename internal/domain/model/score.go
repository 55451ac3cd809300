package model

import "time"

// ScoreStatus tracks whether a score counts towards a player's best totals.
type ScoreStatus int

// Score statuses. Values match the persisted representation.
const (
	StatusHidden       ScoreStatus = -1
	StatusFailed       ScoreStatus = 1
	StatusSubmitted    ScoreStatus = 2
	StatusBest         ScoreStatus = 3
	StatusBestWithMods ScoreStatus = 4
)

func (s ScoreStatus) String() string {
	switch s {
	case StatusHidden:
		return "hidden"
	case StatusFailed:
		return "failed"
	case StatusSubmitted:
		return "submitted"
	case StatusBest:
		return "best"
	case StatusBestWithMods:
		return "best_with_mods"
	default:
		return "unknown"
	}
}

// Mods is the bitflag set of gameplay modifiers.
type Mods uint32

// Mod flags referenced by the aggregation code.
const (
	ModNoFail     Mods = 1 << 0
	ModEasy       Mods = 1 << 1
	ModHidden     Mods = 1 << 3
	ModHardRock   Mods = 1 << 4
	ModDoubleTime Mods = 1 << 6
	ModRelax      Mods = 1 << 7
	ModAutopilot  Mods = 1 << 13
)

// Has reports whether every flag in f is set.
func (m Mods) Has(f Mods) bool { return m&f == f }

// Assisted reports whether the score was played with relax or autopilot.
func (m Mods) Assisted() bool { return m&(ModRelax|ModAutopilot) != 0 }

// ScoreRecord is a single submitted play.
type ScoreRecord struct {
	ID          int64
	PlayerID    int64
	BeatmapID   int64
	Mode        Mode
	Mods        Mods
	TotalScore  int64
	PP          float64
	Accuracy    float64
	MaxCombo    int
	Grade       Grade
	Status      ScoreStatus
	SubmittedAt time.Time
	// Failtime is the millisecond offset at which the play failed; nil for passed plays.
	Failtime *int64

	N300  int
	N100  int
	N50   int
	NGeki int
	NKatu int
	NMiss int
}

// Passed reports whether the play was completed.
func (s ScoreRecord) Passed() bool { return s.Failtime == nil }

// TotalHits applies the mode-specific hit-count formula.
func (s ScoreRecord) TotalHits() int64 {
	hits := int64(s.N300 + s.N100 + s.N50 + s.NMiss)
	switch s.Mode {
	case Catch:
		hits += int64(s.NKatu)
	case Mania:
		hits += int64(s.NGeki + s.NKatu)
	}
	return hits
}

// BeatmapStatus is the ranked state of a beatmap.
type BeatmapStatus int

// Beatmap statuses.
const (
	BeatmapPending   BeatmapStatus = 0
	BeatmapRanked    BeatmapStatus = 2
	BeatmapApproved  BeatmapStatus = 3
	BeatmapQualified BeatmapStatus = 4
	BeatmapLoved     BeatmapStatus = 5
)

// Rewards reports whether best scores on a beatmap with this status count
// towards pp. Loved maps only count when awardLoved is set.
func (s BeatmapStatus) Rewards(awardLoved bool) bool {
	switch s {
	case BeatmapRanked, BeatmapApproved:
		return true
	case BeatmapLoved:
		return awardLoved
	default:
		return false
	}
}

// Beatmap holds the beatmap attributes the ranking core reads.
type Beatmap struct {
	ID int64
	// TotalLength is the playable duration in seconds.
	TotalLength int
	Status      BeatmapStatus
}

// StatusChange moves one score from one status to another.
type StatusChange struct {
	ScoreID   int64       `json:"score_id"`
	BeatmapID int64       `json:"beatmap_id"`
	From      ScoreStatus `json:"from"`
	To        ScoreStatus `json:"to"`
}
