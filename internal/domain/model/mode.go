// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is a game mode. Every player has one PlayerStats row per mode.
type Mode int

// Game modes.
const (
	Standard Mode = 0
	Taiko    Mode = 1
	Catch    Mode = 2
	Mania    Mode = 3
)

// Modes returns every game mode in ascending order.
func Modes() []Mode {
	return []Mode{Standard, Taiko, Catch, Mania}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m >= Standard && m <= Mania
}

func (m Mode) String() string {
	switch m {
	case Standard:
		return "std"
	case Taiko:
		return "taiko"
	case Catch:
		return "catch"
	case Mania:
		return "mania"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseMode accepts either the numeric id or the short name.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range Modes() {
		if s == m.String() || s == strconv.Itoa(int(m)) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Grade is the ordinal tier assigned to a completed score.
type Grade int

// Grade tiers, best first.
const (
	GradeXH Grade = iota
	GradeX
	GradeSH
	GradeS
	GradeA
	GradeB
	GradeC
	GradeD
)

// GradeCount is the number of grade tiers tracked per player.
const GradeCount = 8

var gradeNames = [GradeCount]string{"XH", "X", "SH", "S", "A", "B", "C", "D"}

func (g Grade) String() string {
	if g < 0 || int(g) >= GradeCount {
		return "F"
	}
	return gradeNames[g]
}

// Valid reports whether g is one of the eight counted tiers.
func (g Grade) Valid() bool {
	return g >= 0 && int(g) < GradeCount
}

// ParseGrade parses a grade letter. Unknown letters, including "F", return false.
func ParseGrade(s string) (Grade, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range gradeNames {
		if name == s {
			return Grade(i), true
		}
	}
	return -1, false
}
