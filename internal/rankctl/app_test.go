package rankctl_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/rankd/internal/adapters/http/api"
	"github.com/okian/rankd/internal/adapters/memory"
	"github.com/okian/rankd/internal/adapters/repository"
	service "github.com/okian/rankd/internal/app"
	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/permission"
	"github.com/okian/rankd/internal/rankctl"
	"github.com/okian/rankd/pkg/logger"
)

func newServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	ctx := context.Background()
	db := memory.New()
	db.PutPlayer(memory.Player{ID: 1, Username: "alpha", Country: "fi"})
	db.PutPlayer(memory.Player{ID: 2, Username: "beta", Country: "se"})
	db.PutBeatmap(model.Beatmap{ID: 10, TotalLength: 60, Status: model.BeatmapRanked})
	for i, pp := range []float64{400, 250} {
		db.PutScore(model.ScoreRecord{
			ID: int64(i + 1), PlayerID: int64(i + 1), BeatmapID: 10, Mode: model.Standard,
			PP: pp, Accuracy: 99, TotalScore: 500_000, Grade: model.GradeS, Status: model.StatusBest, N300: 200,
		})
	}

	svc := service.New(repository.NewTreapStore(ctx), db,
		service.WithWorkerCount(1), service.WithLogger(logger.Nop()))
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() { _ = svc.Stop(ctx) })

	keyring, err := permission.NewKeyring(map[string][]string{"ops": {"jobs.enqueue.*"}})
	require.NoError(t, err)
	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.WithKeyring(keyring), api.WithLogger(logger.Nop())).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, svc
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"rankctl", "--url", srv.URL, "--api-key", "ops"}, args...)
	err := rankctl.NewApp(&out).RunContext(context.Background(), full)
	return out.String(), err
}

func TestRankctl(t *testing.T) {
	srv, svc := newServer(t)

	out, err := run(t, srv, "restore", "1", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "1: queued")
	assert.Contains(t, out, "2: ")

	require.Eventually(t, func() bool {
		page, err := svc.Leaderboard(context.Background(), model.Standard, leaderboard.Performance, "", 0, 5)
		return err == nil && page.Total == 2
	}, 3*time.Second, 10*time.Millisecond)

	t.Run("rank", func(t *testing.T) {
		out, err := run(t, srv, "rank", "--mode", "std", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "#2 player 2")
	})

	t.Run("unranked", func(t *testing.T) {
		out, err := run(t, srv, "rank", "99")
		require.NoError(t, err)
		assert.Contains(t, out, "player 99 is unranked")
	})

	t.Run("top", func(t *testing.T) {
		out, err := run(t, srv, "top", "-n", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "RANK")
		assert.Contains(t, out, "2 ranked")
		assert.NotContains(t, out, "\n2 ")
	})

	t.Run("countries", func(t *testing.T) {
		out, err := run(t, srv, "countries")
		require.NoError(t, err)
		assert.Contains(t, out, "fi")
		assert.Contains(t, out, "se")
	})

	t.Run("restore-hidden", func(t *testing.T) {
		out, err := run(t, srv, "restore-hidden", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "1: ")
	})

	t.Run("bad mode", func(t *testing.T) {
		_, err := run(t, srv, "rank", "--mode", "osu", "2")
		require.Error(t, err)
		assert.True(t, errors.Is(err, rankctl.ErrResponse))
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("usage errors", func(t *testing.T) {
		_, err := run(t, srv, "rank")
		assert.True(t, errors.Is(err, rankctl.ErrUsage))
		_, err = run(t, srv, "restore", "x")
		assert.True(t, errors.Is(err, rankctl.ErrUsage))
	})
}

func TestRankctlForbidden(t *testing.T) {
	srv, _ := newServer(t)
	var out bytes.Buffer
	err := rankctl.NewApp(&out).RunContext(context.Background(),
		[]string{"rankctl", "--url", srv.URL, "--api-key", "wrong", "restore", "1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rankctl.ErrResponse))
	assert.Contains(t, err.Error(), "401")
}
