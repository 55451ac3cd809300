package status

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/scoring"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// Repository reads and rewrites a player's scores. Implementations use the
// transaction carried by ctx when called inside Transactor.InTx.
type Repository interface {
	// FetchScoresForPlayer returns every score of the player in all modes.
	FetchScoresForPlayer(ctx context.Context, playerID int64) ([]model.ScoreRecord, error)
	// UpdateScoreStatus applies all changes as one batch.
	UpdateScoreStatus(ctx context.Context, changes []model.StatusChange) error
	UpdateScorePP(ctx context.Context, scoreID int64, pp float64) error
	Beatmaps(ctx context.Context, ids []int64) (map[int64]model.Beatmap, error)
}

// Transactor runs fn inside one transaction, committing when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StatsRestorer rebuilds a player's aggregate stats.
type StatsRestorer interface {
	Restore(ctx context.Context, playerID int64) ([]model.PlayerStats, error)
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithCalculator re-scores hidden passed plays that have no pp.
func WithCalculator(calc scoring.Calculator) Option {
	return func(r *Resolver) { r.calc = calc }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// Resolver restores hidden scores and rebuilds stats afterwards.
type Resolver struct {
	repo  Repository
	tx    Transactor
	stats StatsRestorer
	calc  scoring.Calculator
	log   logger.Logger
}

// New creates a resolver.
func New(repo Repository, tx Transactor, stats StatsRestorer, opts ...Option) *Resolver {
	r := &Resolver{
		repo:  repo,
		tx:    tx,
		stats: stats,
		log:   logger.Get().Named("status"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result reports what RestoreHidden changed.
type Result struct {
	Changes []model.StatusChange `json:"changes"`
	Stats   []model.PlayerStats  `json:"stats"`
}

// RestoreHidden resolves every hidden score of the player in one
// transaction, so no reader sees two Best scores for a beatmap, and then
// rebuilds the player's stats.
func (r *Resolver) RestoreHidden(ctx context.Context, playerID int64) (Result, error) {
	var changes []model.StatusChange
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		scores, err := r.repo.FetchScoresForPlayer(ctx, playerID)
		if err != nil {
			return fmt.Errorf("fetch scores: %w", err)
		}
		if err := r.rescore(ctx, scores); err != nil {
			return err
		}
		changes = Resolve(scores)
		if len(changes) == 0 {
			return nil
		}
		if err := r.repo.UpdateScoreStatus(ctx, changes); err != nil {
			return fmt.Errorf("update statuses: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("restore hidden scores of %d: %w", playerID, err)
	}
	recordTransitions(changes)

	stats, err := r.stats.Restore(ctx, playerID)
	if err != nil {
		return Result{Changes: changes}, err
	}
	r.log.Info(ctx, "hidden scores restored",
		logger.Int64("player_id", playerID),
		logger.Int("changes", len(changes)))
	return Result{Changes: changes, Stats: stats}, nil
}

// rescore fills in pp for hidden passed plays that lack it. scores is
// updated in place.
func (r *Resolver) rescore(ctx context.Context, scores []model.ScoreRecord) error {
	if r.calc == nil {
		return nil
	}
	var pending []int
	var ids []int64
	for i, s := range scores {
		if s.Status == model.StatusHidden && s.Passed() && missingPP(s.PP) {
			pending = append(pending, i)
			ids = append(ids, s.BeatmapID)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	beatmaps, err := r.repo.Beatmaps(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch beatmaps: %w", err)
	}
	for _, i := range pending {
		pp, ok, err := r.calc.ComputePP(ctx, scores[i], beatmaps[scores[i].BeatmapID])
		if err != nil {
			return fmt.Errorf("compute pp of score %d: %w", scores[i].ID, err)
		}
		if !ok {
			pp = 0
		}
		scores[i].PP = scoring.Sanitize(pp)
		if err := r.repo.UpdateScorePP(ctx, scores[i].ID, scores[i].PP); err != nil {
			return fmt.Errorf("save pp of score %d: %w", scores[i].ID, err)
		}
	}
	return nil
}

func missingPP(pp float64) bool {
	return pp <= 0 || math.IsNaN(pp) || math.IsInf(pp, 0)
}

func recordTransitions(changes []model.StatusChange) {
	counts := make(map[model.ScoreStatus]int)
	for _, c := range changes {
		counts[c.To]++
	}
	for st, n := range counts {
		metrics.RecordStatusTransitions(st.String(), n)
	}
}
