package leaderboard

import (
	"fmt"
	"strings"

	"github.com/okian/rankd/internal/domain/model"
)

// Metric names one ranked quantity.
type Metric string

// Ranked metrics. Kudosu is the only metric not partitioned by mode.
const (
	Performance Metric = "performance"
	RankedScore Metric = "ranked_score"
	TotalScore  Metric = "total_score"
	PPVariantA  Metric = "pp_variant_a"
	Accuracy    Metric = "accuracy"
	Clears      Metric = "clears"
	PPVariantB  Metric = "pp_variant_b"
	PPVariantC  Metric = "pp_variant_c"
	LeaderCount Metric = "leader_count"
	Kudosu      Metric = "kudosu"
)

// StatsMetrics are the metrics derived directly from PlayerStats.
func StatsMetrics() []Metric {
	return []Metric{Performance, RankedScore, TotalScore, PPVariantA, Accuracy, Clears, PPVariantB, PPVariantC}
}

// Metrics returns every ranked metric.
func Metrics() []Metric {
	return append(StatsMetrics(), LeaderCount, Kudosu)
}

// PerMode reports whether the metric has one ranking per mode.
func (m Metric) PerMode() bool { return m != Kudosu }

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	for _, known := range Metrics() {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// statValue extracts a stats-derived metric.
func statValue(m Metric, s model.PlayerStats) float64 {
	switch m {
	case Performance:
		return s.PP
	case RankedScore:
		return float64(s.RankedScore)
	case TotalScore:
		return float64(s.TotalScore)
	case PPVariantA:
		return s.PPVariants[0]
	case Accuracy:
		return s.Accuracy
	case Clears:
		return float64(s.Clears())
	case PPVariantB:
		return s.PPVariants[1]
	case PPVariantC:
		return s.PPVariants[2]
	default:
		return 0
	}
}

// NormalizeCountry lower-cases and trims a country code.
func NormalizeCountry(country string) string {
	return strings.ToLower(strings.TrimSpace(country))
}

// Key returns the ranking key for a metric. Mode is ignored for cross-mode
// metrics; an empty country selects the global ranking.
func Key(m Metric, mode model.Mode, country string) string {
	var b strings.Builder
	b.WriteString("rank:")
	b.WriteString(string(m))
	if m.PerMode() {
		fmt.Fprintf(&b, ":%d", int(mode))
	}
	if c := NormalizeCountry(country); c != "" {
		b.WriteByte(':')
		b.WriteString(c)
	}
	return b.String()
}

// CountriesKey is the registry of countries with ranked players in mode.
func CountriesKey(mode model.Mode) string {
	return fmt.Sprintf("rank:countries:%d", int(mode))
}
