package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rankd/internal/domain/types"
	"github.com/okian/rankd/pkg/metrics"
)

const redisBackend = "redis"

// positiveMin excludes zero and negative values from range and count queries.
const positiveMin = "(0"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient dials Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrBackend, cfg.Addr, err)
	}
	return client, nil
}

// RedisStore keeps each ranking in a Redis sorted set. Ties are ordered by
// member descending, which is Redis' reverse lexicographic order.
type RedisStore struct {
	client     redis.UniversalClient
	ownsClient bool
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) done(op string, start time.Time, err error) error {
	metrics.RecordStoreLatency(redisBackend, op, float64(time.Since(start).Microseconds())/1000)
	if err == nil {
		return nil
	}
	metrics.RecordStoreError(redisBackend, op)
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %s", ErrStoreClosed, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrBackend, op, err)
}

// Upsert implements Store.Upsert with ZADD.
func (s *RedisStore) Upsert(ctx context.Context, key, member string, value float64) error {
	start := time.Now()
	err := s.client.ZAdd(ctx, key, redis.Z{Score: normalize(value), Member: member}).Err()
	return s.done("upsert", start, err)
}

// Remove implements Store.Remove with ZREM.
func (s *RedisStore) Remove(ctx context.Context, key, member string) error {
	start := time.Now()
	err := s.client.ZRem(ctx, key, member).Err()
	return s.done("remove", start, err)
}

// Rank implements Store.Rank. ZSCORE and ZREVRANK go out in one pipeline.
func (s *RedisStore) Rank(ctx context.Context, key, member string) (int, error) {
	start := time.Now()
	pipe := s.client.Pipeline()
	scoreCmd := pipe.ZScore(ctx, key, member)
	rankCmd := pipe.ZRevRank(ctx, key, member)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, s.done("rank", start, err)
	}
	_ = s.done("rank", start, nil)

	score, err := scoreCmd.Result()
	if errors.Is(err, redis.Nil) || score <= 0 {
		return 0, nil
	}
	if err != nil {
		return 0, s.done("rank", start, err)
	}
	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, s.done("rank", start, err)
	}
	return int(rank) + 1, nil
}

// Value implements Store.Value with ZSCORE.
func (s *RedisStore) Value(ctx context.Context, key, member string) (float64, error) {
	start := time.Now()
	v, err := s.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, s.done("value", start, nil)
	}
	if err != nil {
		return 0, s.done("value", start, err)
	}
	return v, s.done("value", start, nil)
}

// Range implements Store.Range with ZREVRANGEBYSCORE over (0, +inf].
func (s *RedisStore) Range(ctx context.Context, key string, offset, limit int) ([]types.Member, error) {
	if offset < 0 || limit < 1 {
		return nil, ErrInvalidRange
	}
	start := time.Now()
	zs, err := s.client.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:    positiveMin,
		Max:    "+inf",
		Offset: int64(offset),
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, s.done("range", start, err)
	}
	out := make([]types.Member, 0, len(zs))
	for _, z := range zs {
		out = append(out, types.Member{ID: memberString(z.Member), Value: z.Score})
	}
	return out, s.done("range", start, nil)
}

// Count implements Store.Count with ZCOUNT over (0, +inf].
func (s *RedisStore) Count(ctx context.Context, key string) (int, error) {
	start := time.Now()
	n, err := s.client.ZCount(ctx, key, positiveMin, "+inf").Result()
	if err != nil {
		return 0, s.done("count", start, err)
	}
	return int(n), s.done("count", start, nil)
}

// Batch implements Store.Batch on a non-transactional pipeline.
func (s *RedisStore) Batch() Batch {
	return &redisBatch{store: s, pipe: s.client.Pipeline()}
}

// Close closes the client when the store owns it.
func (s *RedisStore) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

func memberString(m any) string {
	switch v := m.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

type redisBatch struct {
	store *RedisStore
	pipe  redis.Pipeliner
	n     int
}

func (b *redisBatch) Upsert(key, member string, value float64) {
	// The pipeline only queues here; ctx is bound on Exec.
	b.pipe.ZAdd(context.Background(), key, redis.Z{Score: normalize(value), Member: member})
	b.n++
}

func (b *redisBatch) Remove(key, member string) {
	b.pipe.ZRem(context.Background(), key, member)
	b.n++
}

func (b *redisBatch) Len() int { return b.n }

func (b *redisBatch) Exec(ctx context.Context) error {
	if b.n == 0 {
		return nil
	}
	start := time.Now()
	_, err := b.pipe.Exec(ctx)
	metrics.RecordStoreBatch(redisBackend, b.n)
	b.n = 0
	return b.store.done("batch", start, err)
}
