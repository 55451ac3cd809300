package api

import (
	"context"
	"net/http"

	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, playerID int64, mode model.Mode, m leaderboard.Metric, country string) (Entry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
	log  logger.Logger
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies, log logger.Logger) *RankHandler {
	return &RankHandler{deps: deps, log: log}
}

// HandleGetRank handles GET /rank/{player_id} requests. Unranked players
// are reported as 404.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	id, err := playerIDParam(r)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
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
	entry, err := h.deps.Rank(r.Context(), id, mode, metric, r.URL.Query().Get("country"))
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
