package api

import (
	"context"
	"net/http"

	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
)

// PlayerDependencies defines the interface for per-player reads.
type PlayerDependencies interface {
	PlayerAbove(ctx context.Context, playerID int64, mode model.Mode, m leaderboard.Metric) (leaderboard.Above, error)
	PlayerStats(ctx context.Context, playerID int64, mode model.Mode) (model.PlayerStats, bool, error)
}

// PlayersHandler handles per-player requests.
type PlayersHandler struct {
	deps PlayerDependencies
	log  logger.Logger
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayerDependencies, log logger.Logger) *PlayersHandler {
	return &PlayersHandler{deps: deps, log: log}
}

// HandleGetAbove handles GET /players/{player_id}/above requests. A zero
// player_id in the response means nobody is ranked above.
func (h *PlayersHandler) HandleGetAbove(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_above"
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
	above, err := h.deps.PlayerAbove(r.Context(), id, mode, metric)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, above)
}

// HandleGetStats handles GET /players/{player_id}/stats requests.
func (h *PlayersHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player_stats"
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
	st, ok, err := h.deps.PlayerStats(r.Context(), id, mode)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
