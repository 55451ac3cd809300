package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/rankd/internal/domain/model"
)

func sample() model.PlayerStats {
	return model.PlayerStats{
		PlayerID:    42,
		Mode:        model.Mania,
		Rank:        3,
		TotalScore:  9_000_000_000,
		RankedScore: 1_234_567,
		PP:          4321.125,
		PPVariants:  [model.PPVariantCount]float64{1.5, 0, 3.25},
		Accuracy:    98.765,
		Playcount:   77,
		Playtime:    36000,
		MaxCombo:    1500,
		TotalHits:   800_000,
		GradeCounts: [model.GradeCount]int{1, 2, 3, 4, 5, 6, 7, 8},
	}
}

func newRedisCache(t *testing.T, opts ...Option) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, opts...), mr
}

func TestRedisCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	_, ok, err := c.Get(ctx, 42, model.Mania)
	require.NoError(t, err)
	assert.False(t, ok)

	want := sample()
	require.NoError(t, c.Put(ctx, want))
	assert.Equal(t, "1", mr.HGet("stats:42:3", "v"))

	got, ok, err := c.Get(ctx, 42, model.Mania)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRedisCache_VersionMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	require.NoError(t, c.Put(ctx, sample()))

	mr.HSet("stats:42:3", "v", "0")
	_, ok, err := c.Get(ctx, 42, model.Mania)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.HDel("stats:42:3", "v")
	_, ok, err = c.Get(ctx, 42, model.Mania)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	require.NoError(t, c.Put(ctx, sample()))

	mr.HSet("stats:42:3", "grades", "1,2,3")
	_, ok, err := c.Get(ctx, 42, model.Mania)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_TTLAndDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, WithTTL(time.Minute))
	require.NoError(t, c.Put(ctx, sample()))
	assert.Equal(t, time.Minute, mr.TTL("stats:42:3"))

	require.NoError(t, c.Delete(ctx, 42))
	assert.False(t, mr.Exists("stats:42:3"))
}

func TestRedisCache_BackendDown(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	mr.Close()

	_, _, err := c.Get(ctx, 1, model.Standard)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, c.Put(ctx, sample()), ErrBackend)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	want := sample()

	require.NoError(t, c.Put(ctx, want))
	got, ok, err := c.Get(ctx, 42, model.Mania)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, c.Delete(ctx, 42))
	_, ok, _ = c.Get(ctx, 42, model.Mania)
	assert.False(t, ok)
}
