// Package aggregate recomputes per-mode player statistics from score
// history and pushes them to the leaderboard.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithAwardLovedPP lets best scores on loved beatmaps count towards pp.
func WithAwardLovedPP(award bool) Option {
	return func(a *Aggregator) { a.awardLoved = award }
}

// WithAllBeatmapStatuses disables the beatmap status filter for pp.
func WithAllBeatmapStatuses(all bool) Option {
	return func(a *Aggregator) { a.allStatuses = all }
}

// WithStatsCache refreshes cache after every restore.
func WithStatsCache(cache StatsCache) Option {
	return func(a *Aggregator) { a.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

// Aggregator is the only writer of aggregate PlayerStats fields.
type Aggregator struct {
	repo        Repository
	tx          Transactor
	players     PlayerDirectory
	board       Leaderboard
	cache       StatsCache
	awardLoved  bool
	allStatuses bool
	log         logger.Logger
}

// New creates an aggregator.
func New(repo Repository, tx Transactor, players PlayerDirectory, board Leaderboard, opts ...Option) *Aggregator {
	a := &Aggregator{
		repo:    repo,
		tx:      tx,
		players: players,
		board:   board,
		log:     logger.Get().Named("aggregate"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Restore recomputes the player's stats for every mode, persists them and
// pushes them to the leaderboard. Restricted players are removed from the
// leaderboard instead. Callers must not run Restore concurrently for the
// same player.
func (a *Aggregator) Restore(ctx context.Context, playerID int64) ([]model.PlayerStats, error) {
	start := time.Now()
	out, err := a.restore(ctx, playerID)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecordRestore(result, float64(time.Since(start).Microseconds())/1000)
	return out, err
}

func (a *Aggregator) restore(ctx context.Context, playerID int64) ([]model.PlayerStats, error) {
	country, err := a.players.Country(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("country of %d: %w", playerID, err)
	}
	restricted, err := a.players.Restricted(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("restriction of %d: %w", playerID, err)
	}

	if restricted {
		if err := a.board.Remove(ctx, playerID, country); err != nil {
			return nil, fmt.Errorf("remove restricted %d: %w", playerID, err)
		}
	}

	out := make([]model.PlayerStats, 0, len(model.Modes()))
	for _, mode := range model.Modes() {
		st, err := a.recompute(ctx, playerID, mode)
		if err != nil {
			return nil, err
		}
		if restricted {
			st, err = a.withdraw(ctx, st)
		} else {
			st, err = a.publish(ctx, st, country)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	a.log.Debug(ctx, "stats restored",
		logger.Int64("player_id", playerID),
		logger.Bool("restricted", restricted),
		logger.Float64("pp", out[0].PP))
	return out, nil
}

// recompute reads and writes one (player, mode) inside a transaction.
func (a *Aggregator) recompute(ctx context.Context, playerID int64, mode model.Mode) (model.PlayerStats, error) {
	var st model.PlayerStats
	err := a.tx.InTx(ctx, func(ctx context.Context) error {
		scores, err := a.repo.FetchScoresForPlayerMode(ctx, playerID, mode)
		if err != nil {
			return fmt.Errorf("fetch scores: %w", err)
		}
		beatmaps, err := a.repo.Beatmaps(ctx, beatmapIDs(scores))
		if err != nil {
			return fmt.Errorf("fetch beatmaps: %w", err)
		}
		st = Compute(Input{
			PlayerID:    playerID,
			Mode:        mode,
			Scores:      scores,
			Beatmaps:    beatmaps,
			AwardLoved:  a.awardLoved,
			AllStatuses: a.allStatuses,
		})
		if err := a.repo.SaveStats(ctx, st); err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.PlayerStats{}, fmt.Errorf("restore %d mode %s: %w", playerID, mode, err)
	}
	return st, nil
}

// publish pushes st and refreshes the cached rank and stats cache.
func (a *Aggregator) publish(ctx context.Context, st model.PlayerStats, country string) (model.PlayerStats, error) {
	if err := a.board.Update(ctx, st, country); err != nil {
		return st, err
	}
	rank, err := a.board.Rank(ctx, st.PlayerID, st.Mode, leaderboard.Performance, "")
	if err != nil {
		return st, fmt.Errorf("read rank: %w", err)
	}
	return a.settle(ctx, st, rank)
}

// withdraw clears the persisted rank of a restricted player so the cached
// profile stops showing the old position.
func (a *Aggregator) withdraw(ctx context.Context, st model.PlayerStats) (model.PlayerStats, error) {
	return a.settle(ctx, st, 0)
}

func (a *Aggregator) settle(ctx context.Context, st model.PlayerStats, rank int) (model.PlayerStats, error) {
	st.Rank = rank
	if err := a.repo.UpdateRank(ctx, st.PlayerID, st.Mode, rank); err != nil {
		return st, fmt.Errorf("save rank: %w", err)
	}
	if a.cache != nil {
		if err := a.cache.Put(ctx, st); err != nil {
			a.log.Warn(ctx, "stats cache refresh failed",
				logger.Int64("player_id", st.PlayerID),
				logger.String("mode", st.Mode.String()),
				logger.Error(err))
		}
	}
	return st, nil
}
