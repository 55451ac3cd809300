package api

import (
	"context"
	"fmt"
	"net/http"

	service "github.com/okian/rankd/internal/app"
	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, mode model.Mode, m leaderboard.Metric, country string, offset, limit int) (service.Page, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
	log      logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int, log logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, maxLimit: maxLimit, log: log}
}

// HandleGetLeaderboard handles
// GET /leaderboard?mode=&metric=&country=&offset=&limit= requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	mode, err := modeParam(r)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	metric, err := metricParam(r)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	if offset < 0 || limit < 1 {
		fail(r.Context(), w, h.log, op, fmt.Errorf("%w: offset %d limit %d", ErrBadRequest, offset, limit))
		return
	}
	if limit > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			fmt.Errorf("%w: limit exceeds %d", ErrBadRequest, h.maxLimit))
		return
	}

	page, err := h.deps.Leaderboard(r.Context(), mode, metric, r.URL.Query().Get("country"), offset, limit)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	if page.Entries == nil {
		page.Entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, page)
}
