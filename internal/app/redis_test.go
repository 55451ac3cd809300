package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/rankd/internal/adapters/cache"
	"github.com/okian/rankd/internal/adapters/mq/queue"
	"github.com/okian/rankd/internal/adapters/repository"
	service "github.com/okian/rankd/internal/app"
	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
)

// Runs the whole job path against Redis: queue, ranking store and cache.
func TestService_RedisStack(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := queue.NewRedisQueue(client, queue.WithPollInterval(20*time.Millisecond))
	svc := service.New(repository.NewRedisStore(client), seed(),
		service.WithQueue(q),
		service.WithWorkerCount(2),
		service.WithStatsCache(cache.NewRedisCache(client)),
		service.WithRateLimit(100, 10))
	t.Cleanup(func() { _ = svc.Stop(ctx) })
	require.NoError(t, svc.Start(ctx))

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, svc.Enqueue(ctx, model.NewJob(model.JobRestoreStats, id)))
	}

	require.Eventually(t, func() bool {
		page, err := svc.Leaderboard(ctx, model.Standard, leaderboard.Performance, "", 0, 10)
		return err == nil && page.Total == 3
	}, 5*time.Second, 20*time.Millisecond)

	entry, err := svc.Rank(ctx, 1, model.Standard, leaderboard.Performance, "de")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Rank)

	st, ok, err := svc.PlayerStats(ctx, 3, model.Standard)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, st.Rank)
	assert.True(t, mr.Exists(cache.Key(3, model.Standard)))

	require.NoError(t, svc.Enqueue(ctx, model.NewJob(model.JobRemovePlayer, 3)))
	require.Eventually(t, func() bool {
		return !mr.Exists(cache.Key(3, model.Standard))
	}, 5*time.Second, 20*time.Millisecond)
}
