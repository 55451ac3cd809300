package aggregate

import (
	"context"

	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
)

// Repository reads score history and persists aggregates. Implementations
// use the transaction carried by ctx when called inside Transactor.InTx.
type Repository interface {
	FetchScoresForPlayerMode(ctx context.Context, playerID int64, mode model.Mode) ([]model.ScoreRecord, error)
	// Beatmaps returns the known beatmaps among ids. Unknown ids are omitted.
	Beatmaps(ctx context.Context, ids []int64) (map[int64]model.Beatmap, error)
	// SaveStats upserts every aggregate field except Rank.
	SaveStats(ctx context.Context, stats model.PlayerStats) error
	UpdateRank(ctx context.Context, playerID int64, mode model.Mode, rank int) error
}

// Transactor runs fn inside one transaction, committing when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PlayerDirectory answers account-level questions about a player.
type PlayerDirectory interface {
	Country(ctx context.Context, playerID int64) (string, error)
	Restricted(ctx context.Context, playerID int64) (bool, error)
}

// Leaderboard receives recomputed stats.
type Leaderboard interface {
	Update(ctx context.Context, stats model.PlayerStats, country string) error
	Remove(ctx context.Context, playerID int64, country string) error
	Rank(ctx context.Context, playerID int64, mode model.Mode, m leaderboard.Metric, country string) (int, error)
}

// StatsCache is refreshed after every restore.
type StatsCache interface {
	Put(ctx context.Context, stats model.PlayerStats) error
}
