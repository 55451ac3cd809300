// Package leaderboard maintains the per-metric rankings derived from
// player statistics, globally and per country.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rankd/internal/adapters/repository"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/types"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// Default index configuration constants.
const (
	defaultScanConcurrency = 8
	defaultScanPageSize    = 1000
)

// ScoreSource counts the beatmaps on which a player holds the top score.
type ScoreSource interface {
	FetchLeaderCount(ctx context.Context, playerID int64, mode model.Mode) (int, error)
}

// KudosuSource totals the moderation reward points of a player.
type KudosuSource interface {
	TotalKudosuForPlayer(ctx context.Context, playerID int64) (int, error)
}

// UserSource resolves display names.
type UserSource interface {
	Username(ctx context.Context, playerID int64) (string, error)
}

// Option applies a configuration option to the Index.
type Option func(*Index)

// WithScoreSource sets the leader count source.
func WithScoreSource(src ScoreSource) Option {
	return func(i *Index) { i.scores = src }
}

// WithKudosuSource sets the kudosu source.
func WithKudosuSource(src KudosuSource) Option {
	return func(i *Index) { i.kudosu = src }
}

// WithUserSource sets the username source.
func WithUserSource(src UserSource) Option {
	return func(i *Index) { i.users = src }
}

// WithCountryScanConcurrency bounds the parallel country reads of TopCountries.
func WithCountryScanConcurrency(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.scanConcurrency = n
		}
	}
}

// WithScanPageSize sets the page size used when reading whole rankings.
func WithScanPageSize(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.scanPageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.log = l
		}
	}
}

// Index composes one ranking per (metric, mode[, country]) over a Store.
type Index struct {
	store           repository.Store
	scores          ScoreSource
	kudosu          KudosuSource
	users           UserSource
	scanConcurrency int
	scanPageSize    int
	log             logger.Logger
}

// New creates an index over store.
func New(store repository.Store, opts ...Option) *Index {
	i := &Index{
		store:           store,
		scanConcurrency: defaultScanConcurrency,
		scanPageSize:    defaultScanPageSize,
		log:             logger.Get().Named("leaderboard"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Metric returns a single ranking view.
func (i *Index) Metric(m Metric, mode model.Mode, country string) *repository.MetricStore {
	return repository.NewMetricStore(i.store, Key(m, mode, country))
}

// Update pushes every stats-derived metric of stats into the global and
// country rankings in one batch. A failed batch may be partially applied;
// callers retry the whole update.
func (i *Index) Update(ctx context.Context, stats model.PlayerStats, country string) error {
	member := types.MemberID(stats.PlayerID)
	country = NormalizeCountry(country)

	b := i.store.Batch()
	for _, m := range StatsMetrics() {
		v := statValue(m, stats)
		b.Upsert(Key(m, stats.Mode, ""), member, v)
		if country != "" {
			b.Upsert(Key(m, stats.Mode, country), member, v)
		}
	}
	if country != "" {
		b.Upsert(CountriesKey(stats.Mode), country, 1)
	}
	if err := b.Exec(ctx); err != nil {
		return fmt.Errorf("update player %d mode %s: %w", stats.PlayerID, stats.Mode, err)
	}
	metrics.RecordLeaderboardUpdate()
	return nil
}

// UpdateLeaderCount recomputes the number of #1 scores for player in mode.
func (i *Index) UpdateLeaderCount(ctx context.Context, playerID int64, mode model.Mode, country string) error {
	if i.scores == nil {
		return fmt.Errorf("leader count: %w", ErrNoSource)
	}
	n, err := i.scores.FetchLeaderCount(ctx, playerID, mode)
	if err != nil {
		return fmt.Errorf("fetch leader count for %d: %w", playerID, err)
	}
	return i.push(ctx, LeaderCount, mode, playerID, country, float64(n))
}

// UpdateKudosu recomputes the player's total kudosu.
func (i *Index) UpdateKudosu(ctx context.Context, playerID int64, country string) error {
	if i.kudosu == nil {
		return fmt.Errorf("kudosu: %w", ErrNoSource)
	}
	n, err := i.kudosu.TotalKudosuForPlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("fetch kudosu for %d: %w", playerID, err)
	}
	return i.push(ctx, Kudosu, model.Standard, playerID, country, float64(n))
}

func (i *Index) push(ctx context.Context, m Metric, mode model.Mode, playerID int64, country string, v float64) error {
	member := types.MemberID(playerID)
	b := i.store.Batch()
	b.Upsert(Key(m, mode, ""), member, v)
	if c := NormalizeCountry(country); c != "" {
		b.Upsert(Key(m, mode, c), member, v)
	}
	if err := b.Exec(ctx); err != nil {
		return fmt.Errorf("push %s for %d: %w", m, playerID, err)
	}
	return nil
}

// Remove deletes the player from every ranking, global and country.
func (i *Index) Remove(ctx context.Context, playerID int64, country string) error {
	b := i.store.Batch()
	i.queueRemovals(b, types.MemberID(playerID), "")
	if c := NormalizeCountry(country); c != "" {
		i.queueRemovals(b, types.MemberID(playerID), c)
	}
	if err := b.Exec(ctx); err != nil {
		return fmt.Errorf("remove player %d: %w", playerID, err)
	}
	metrics.RecordLeaderboardRemove()
	return nil
}

// RemoveCountry deletes the player from the rankings of one country only.
func (i *Index) RemoveCountry(ctx context.Context, playerID int64, country string) error {
	c := NormalizeCountry(country)
	if c == "" {
		return nil
	}
	b := i.store.Batch()
	i.queueRemovals(b, types.MemberID(playerID), c)
	if err := b.Exec(ctx); err != nil {
		return fmt.Errorf("remove player %d from %s: %w", playerID, c, err)
	}
	return nil
}

func (i *Index) queueRemovals(b repository.Batch, member, country string) {
	for _, m := range Metrics() {
		if !m.PerMode() {
			b.Remove(Key(m, model.Standard, country), member)
			continue
		}
		for _, mode := range model.Modes() {
			b.Remove(Key(m, mode, country), member)
		}
	}
}

// Rank returns the player's 1-based rank, 0 when unranked.
func (i *Index) Rank(ctx context.Context, playerID int64, mode model.Mode, m Metric, country string) (int, error) {
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	return i.store.Rank(ctx, Key(m, mode, country), types.MemberID(playerID))
}

// Value returns the player's value in a ranking, 0 when absent.
func (i *Index) Value(ctx context.Context, playerID int64, mode model.Mode, m Metric, country string) (float64, error) {
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	return i.store.Value(ctx, Key(m, mode, country), types.MemberID(playerID))
}

// TopPlayers lists ranked players in descending order.
func (i *Index) TopPlayers(ctx context.Context, mode model.Mode, m Metric, country string, offset, limit int) ([]types.Entry, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	if offset < 0 || limit < 1 {
		return nil, fmt.Errorf("%w: offset %d limit %d", ErrInvalidRange, offset, limit)
	}
	return i.Metric(m, mode, country).Range(ctx, offset, limit)
}

// Count returns the number of ranked players.
func (i *Index) Count(ctx context.Context, mode model.Mode, m Metric, country string) (int, error) {
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	return i.store.Count(ctx, Key(m, mode, country))
}

// Countries lists the countries registered for mode.
func (i *Index) Countries(ctx context.Context, mode model.Mode) ([]string, error) {
	members, err := i.scan(ctx, CountriesKey(mode))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.ID)
	}
	return out, nil
}

// scan reads a whole ranking page by page.
func (i *Index) scan(ctx context.Context, key string) ([]types.Member, error) {
	var out []types.Member
	for offset := 0; ; offset += i.scanPageSize {
		page, err := i.store.Range(ctx, key, offset, i.scanPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < i.scanPageSize {
			return out, nil
		}
	}
}

func (i *Index) sum(ctx context.Context, key string) (float64, int, error) {
	members, err := i.scan(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	total := 0.0
	for _, m := range members {
		total += m.Value
	}
	return total, len(members), nil
}

// TopCountries aggregates every registered country. Each country is read
// with independent range queries, so the result is not a consistent
// snapshot under concurrent writes.
func (i *Index) TopCountries(ctx context.Context, mode model.Mode) ([]model.CountrySummary, error) {
	start := time.Now()
	countries, err := i.Countries(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}

	summaries := make([]model.CountrySummary, len(countries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.scanConcurrency)
	for idx, country := range countries {
		g.Go(func() error {
			s := model.CountrySummary{Country: country}
			var err error
			if s.Performance, s.Players, err = i.sum(gctx, Key(Performance, mode, country)); err != nil {
				return fmt.Errorf("country %s: %w", country, err)
			}
			if s.RankedScore, _, err = i.sum(gctx, Key(RankedScore, mode, country)); err != nil {
				return fmt.Errorf("country %s: %w", country, err)
			}
			if s.TotalScore, _, err = i.sum(gctx, Key(TotalScore, mode, country)); err != nil {
				return fmt.Errorf("country %s: %w", country, err)
			}
			if s.Players > 0 {
				s.AverageRating = s.Performance / float64(s.Players)
			}
			summaries[idx] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := summaries[:0]
	for _, s := range summaries {
		if s.Players > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Performance != out[b].Performance {
			return out[a].Performance > out[b].Performance
		}
		return out[a].Country < out[b].Country
	})
	i.log.Debug(ctx, "top countries computed",
		logger.String("mode", mode.String()),
		logger.Int("countries", len(out)),
		logger.Duration("took", time.Since(start)))
	return out, nil
}

// Above describes the next player up in a ranking.
type Above struct {
	PlayerID int64   `json:"player_id"`
	Username string  `json:"username"`
	Gap      float64 `json:"gap"`
}

// PlayerAbove returns the value gap to the player ranked immediately above
// and that player's username. It is zero when the player is unranked or #1.
func (i *Index) PlayerAbove(ctx context.Context, playerID int64, mode model.Mode, m Metric) (Above, error) {
	if !m.Valid() {
		return Above{}, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	key := Key(m, mode, "")
	rank, err := i.store.Rank(ctx, key, types.MemberID(playerID))
	if err != nil || rank <= 1 {
		return Above{}, err
	}
	own, err := i.store.Value(ctx, key, types.MemberID(playerID))
	if err != nil {
		return Above{}, err
	}
	page, err := i.store.Range(ctx, key, rank-2, 1)
	if err != nil || len(page) == 0 {
		return Above{}, err
	}
	above := types.Entries(page, rank-2)
	if len(above) == 0 {
		return Above{}, nil
	}
	out := Above{PlayerID: above[0].PlayerID, Gap: above[0].Value - own}
	if i.users != nil {
		name, err := i.users.Username(ctx, out.PlayerID)
		if err != nil {
			if ctx.Err() != nil {
				return Above{}, ctx.Err()
			}
			i.log.Warn(ctx, "username lookup failed", logger.Int64("player_id", out.PlayerID), logger.Error(err))
		}
		out.Username = name
	}
	return out, nil
}
