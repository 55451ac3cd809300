package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, WithOwnedClient())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_RankAndValue(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	rank, err := store.Rank(ctx, testKey, "1")
	require.NoError(t, err)
	assert.Equal(t, 0, rank)
	value, err := store.Value(ctx, testKey, "1")
	require.NoError(t, err)
	assert.Zero(t, value)

	require.NoError(t, store.Upsert(ctx, testKey, "1", 120.5))
	require.NoError(t, store.Upsert(ctx, testKey, "2", 300))
	require.NoError(t, store.Upsert(ctx, testKey, "3", 0))

	rank, err = store.Rank(ctx, testKey, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	rank, err = store.Rank(ctx, testKey, "3")
	require.NoError(t, err)
	assert.Equal(t, 0, rank, "zero values are not ranked")

	value, err = store.Value(ctx, testKey, "1")
	require.NoError(t, err)
	assert.Equal(t, 120.5, value)
}

func TestRedisStore_RangeAndCount(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	for id, v := range map[string]float64{"a": 5, "b": 9, "c": 7, "d": 0, "e": -1} {
		require.NoError(t, store.Upsert(ctx, testKey, id, v))
	}

	count, err := store.Count(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	members, err := store.Range(ctx, testKey, 0, 10)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{members[0].ID, members[1].ID, members[2].ID})

	members, err = store.Range(ctx, testKey, 1, 1)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "c", members[0].ID)
	assert.Equal(t, 7.0, members[0].Value)

	_, err = store.Range(ctx, testKey, -1, 1)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRedisStore_RemoveAndBatch(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Upsert(ctx, testKey, "1", 10))

	b := store.Batch()
	b.Upsert(testKey, "2", 20)
	b.Upsert("rank:performance:0:jp", "2", 20)
	b.Remove(testKey, "1")
	assert.Equal(t, 3, b.Len())
	require.NoError(t, b.Exec(ctx))
	assert.Zero(t, b.Len())

	rank, err := store.Rank(ctx, testKey, "1")
	require.NoError(t, err)
	assert.Zero(t, rank)

	score, err := mr.ZScore("rank:performance:0:jp", "2")
	require.NoError(t, err)
	assert.Equal(t, 20.0, score)

	require.NoError(t, store.Remove(ctx, testKey, "missing"))
	require.NoError(t, store.Batch().Exec(ctx), "empty batch is a no-op")
}

func TestRedisStore_BackendFailure(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	mr.Close()

	err := store.Upsert(ctx, testKey, "1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackend))

	_, err = store.Rank(ctx, testKey, "1")
	assert.ErrorIs(t, err, ErrBackend)

	_, err = store.Count(ctx, testKey)
	assert.ErrorIs(t, err, ErrBackend)
}

func TestRedisStore_ClosedClient(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	require.NoError(t, store.Close())

	err := store.Upsert(ctx, testKey, "1", 1)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.False(t, errors.Is(err, ErrBackend))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	mr.Close()
	_, err = NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	assert.ErrorIs(t, err, ErrBackend)
}
