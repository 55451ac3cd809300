// Package cache keeps the latest PlayerStats per (player, mode) for fast
// profile reads. Entries carry a schema version; an entry written under
// another version reads as a miss and is rebuilt on the next restore.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// Version is the current schema version of cached entries.
const Version = 1

// StatsCache reads and writes cached stats.
type StatsCache interface {
	Put(ctx context.Context, stats model.PlayerStats) error
	Get(ctx context.Context, playerID int64, mode model.Mode) (model.PlayerStats, bool, error)
	Delete(ctx context.Context, playerID int64) error
}

// Key returns the hash key of one cached entry.
func Key(playerID int64, mode model.Mode) string {
	return fmt.Sprintf("stats:%d:%d", playerID, mode)
}

// Option configures a RedisCache.
type Option func(*RedisCache)

// WithTTL expires entries after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for corrupt entries.
func WithLogger(l logger.Logger) Option {
	return func(c *RedisCache) {
		if l != nil {
			c.log = l
		}
	}
}

// RedisCache stores each entry as a Redis hash with one field per stat.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    logger.Logger
}

// NewRedisCache wraps an existing client. The caller owns the client.
func NewRedisCache(client redis.UniversalClient, opts ...Option) *RedisCache {
	c := &RedisCache{client: client, log: logger.Get().Named("cache")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put replaces the entry atomically.
func (c *RedisCache) Put(ctx context.Context, stats model.PlayerStats) error {
	key := Key(stats.PlayerID, stats.Mode)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, encode(stats))
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrBackend, key, err)
	}
	return nil
}

// Get returns the cached entry. Missing, stale and corrupt entries are misses.
func (c *RedisCache) Get(ctx context.Context, playerID int64, mode model.Mode) (model.PlayerStats, bool, error) {
	key := Key(playerID, mode)
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		metrics.RecordCacheLookup("error")
		return model.PlayerStats{}, false, fmt.Errorf("%w: get %s: %v", ErrBackend, key, err)
	}
	stats, err := decode(fields)
	if err != nil {
		c.log.Warn(ctx, "dropping unreadable stats entry", logger.String("key", key), logger.Error(err))
		metrics.RecordCacheLookup("miss")
		return model.PlayerStats{}, false, nil
	}
	if stats == nil {
		metrics.RecordCacheLookup("miss")
		return model.PlayerStats{}, false, nil
	}
	metrics.RecordCacheLookup("hit")
	return *stats, true, nil
}

// Delete drops the player's entries in every mode.
func (c *RedisCache) Delete(ctx context.Context, playerID int64) error {
	keys := make([]string, 0, len(model.Modes()))
	for _, m := range model.Modes() {
		keys = append(keys, Key(playerID, m))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: delete player %d: %v", ErrBackend, playerID, err)
	}
	return nil
}

func encode(s model.PlayerStats) map[string]any {
	grades := make([]string, len(s.GradeCounts))
	for i, g := range s.GradeCounts {
		grades[i] = strconv.Itoa(g)
	}
	variants := make([]string, len(s.PPVariants))
	for i, v := range s.PPVariants {
		variants[i] = formatFloat(v)
	}
	return map[string]any{
		"v":            Version,
		"player_id":    s.PlayerID,
		"mode":         int(s.Mode),
		"rank":         s.Rank,
		"total_score":  s.TotalScore,
		"ranked_score": s.RankedScore,
		"pp":           formatFloat(s.PP),
		"pp_variants":  strings.Join(variants, ","),
		"accuracy":     formatFloat(s.Accuracy),
		"playcount":    s.Playcount,
		"playtime":     s.Playtime,
		"max_combo":    s.MaxCombo,
		"total_hits":   s.TotalHits,
		"grades":       strings.Join(grades, ","),
	}
}

// decode returns nil for an absent or stale entry.
func decode(f map[string]string) (*model.PlayerStats, error) {
	if len(f) == 0 || f["v"] != strconv.Itoa(Version) {
		return nil, nil
	}
	d := fieldDecoder{fields: f}
	s := model.PlayerStats{
		PlayerID:    d.int64("player_id"),
		Mode:        model.Mode(d.int("mode")),
		Rank:        d.int("rank"),
		TotalScore:  d.int64("total_score"),
		RankedScore: d.int64("ranked_score"),
		PP:          d.float("pp"),
		Accuracy:    d.float("accuracy"),
		Playcount:   d.int64("playcount"),
		Playtime:    d.int64("playtime"),
		MaxCombo:    d.int("max_combo"),
		TotalHits:   d.int64("total_hits"),
	}
	for i, raw := range d.list("pp_variants", model.PPVariantCount) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			d.fail("pp_variants", err)
		}
		s.PPVariants[i] = v
	}
	for i, raw := range d.list("grades", model.GradeCount) {
		n, err := strconv.Atoi(raw)
		if err != nil {
			d.fail("grades", err)
		}
		s.GradeCounts[i] = n
	}
	if d.err != nil {
		return nil, d.err
	}
	return &s, nil
}

// fieldDecoder parses hash fields, keeping the first error.
type fieldDecoder struct {
	fields map[string]string
	err    error
}

func (d *fieldDecoder) fail(name string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: field %q: %v", ErrCorrupt, name, err)
	}
}

func (d *fieldDecoder) raw(name string) (string, bool) {
	v, ok := d.fields[name]
	if !ok {
		d.fail(name, errors.New("missing"))
	}
	return v, ok
}

func (d *fieldDecoder) int64(name string) int64 {
	v, ok := d.raw(name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		d.fail(name, err)
	}
	return n
}

func (d *fieldDecoder) int(name string) int {
	return int(d.int64(name))
}

func (d *fieldDecoder) float(name string) float64 {
	v, ok := d.raw(name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		d.fail(name, err)
	}
	return f
}

func (d *fieldDecoder) list(name string, n int) []string {
	v, ok := d.raw(name)
	if !ok {
		return nil
	}
	parts := strings.Split(v, ",")
	if len(parts) != n {
		d.fail(name, fmt.Errorf("want %d values, got %d", n, len(parts)))
		return nil
	}
	return parts
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// MemoryCache is an in-process StatsCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]model.PlayerStats
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]model.PlayerStats)}
}

// Put stores stats.
func (c *MemoryCache) Put(_ context.Context, stats model.PlayerStats) error {
	c.mu.Lock()
	c.entries[Key(stats.PlayerID, stats.Mode)] = stats
	c.mu.Unlock()
	return nil
}

// Get returns the stored stats.
func (c *MemoryCache) Get(_ context.Context, playerID int64, mode model.Mode) (model.PlayerStats, bool, error) {
	c.mu.RLock()
	s, ok := c.entries[Key(playerID, mode)]
	c.mu.RUnlock()
	if ok {
		metrics.RecordCacheLookup("hit")
	} else {
		metrics.RecordCacheLookup("miss")
	}
	return s, ok, nil
}

// Delete drops the player's entries.
func (c *MemoryCache) Delete(_ context.Context, playerID int64) error {
	c.mu.Lock()
	for _, m := range model.Modes() {
		delete(c.entries, Key(playerID, m))
	}
	c.mu.Unlock()
	return nil
}
