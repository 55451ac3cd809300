package model

// PPVariantCount is the number of alternate pp schemes tracked per player.
const PPVariantCount = 3

// PlayerStats is the aggregate for one (player, mode) pair.
type PlayerStats struct {
	PlayerID    int64                   `json:"player_id"`
	Mode        Mode                    `json:"mode"`
	Rank        int                     `json:"rank"`
	TotalScore  int64                   `json:"total_score"`
	RankedScore int64                   `json:"ranked_score"`
	PP          float64                 `json:"pp"`
	PPVariants  [PPVariantCount]float64 `json:"pp_variants"`
	Accuracy    float64                 `json:"accuracy"`
	Playcount   int64                   `json:"playcount"`
	Playtime    int64                   `json:"playtime"`
	MaxCombo    int                     `json:"max_combo"`
	TotalHits   int64                   `json:"total_hits"`
	GradeCounts [GradeCount]int         `json:"grade_counts"`
}

// Clears is the number of best scores across all grade tiers.
func (s PlayerStats) Clears() int {
	n := 0
	for _, c := range s.GradeCounts {
		n += c
	}
	return n
}

// CountrySummary aggregates the ranked players of one country.
type CountrySummary struct {
	Country       string  `json:"country"`
	Players       int     `json:"players"`
	Performance   float64 `json:"performance"`
	RankedScore   float64 `json:"ranked_score"`
	TotalScore    float64 `json:"total_score"`
	AverageRating float64 `json:"average_rating"`
}
