// Package types contains common types used across the application
package types

import "strconv"

// Entry represents a leaderboard entry
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID int64   `json:"player_id"`
	Value    float64 `json:"value"`
}

// Member is a raw ranking member as held by a ranking store.
type Member struct {
	ID    string
	Value float64
}

// MemberID formats a player id as a ranking member.
func MemberID(playerID int64) string {
	return strconv.FormatInt(playerID, 10)
}

// Entries converts a page of members into ranked entries. The first member
// gets rank offset+1. Members that are not player ids are skipped without
// consuming a rank.
func Entries(members []Member, offset int) []Entry {
	out := make([]Entry, 0, len(members))
	rank := offset
	for _, m := range members {
		id, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil {
			continue
		}
		rank++
		out = append(out, Entry{Rank: rank, PlayerID: id, Value: m.Value})
	}
	return out
}
