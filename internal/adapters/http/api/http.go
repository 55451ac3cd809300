// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/rankd/internal/adapters/mq/queue"
	"github.com/okian/rankd/internal/adapters/repository"
	service "github.com/okian/rankd/internal/app"
	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/permission"
	"github.com/okian/rankd/internal/domain/types"
	"github.com/okian/rankd/pkg/logger"
)

// Dependencies required by HTTP handlers. The service implements all of
// them; handlers depend on the narrow interfaces below.
type Dependencies interface {
	JobDependencies
	LeaderboardDependencies
	RankDependencies
	CountryDependencies
	PlayerDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

const defaultMaxLimit = 100

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	jobsHandler        *JobsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	countriesHandler   *CountriesHandler
	playersHandler     *PlayersHandler
}

// Option configures the Server.
type Option func(*options)

type options struct {
	maxLimit int
	keyring  *permission.Keyring
	logger   logger.Logger
}

// WithMaxLimit caps the page size of leaderboard queries.
func WithMaxLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// WithKeyring requires an API key with a matching scope on job submission.
// Without a keyring job submission is open.
func WithKeyring(k *permission.Keyring) Option {
	return func(o *options) {
		o.keyring = k
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := options{maxLimit: defaultMaxLimit, logger: logger.Get().Named("api")}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		jobsHandler:        NewJobsHandler(deps, o.keyring, o.logger),
		leaderboardHandler: NewLeaderboardHandler(deps, o.maxLimit, o.logger),
		rankHandler:        NewRankHandler(deps, o.logger),
		countriesHandler:   NewCountriesHandler(deps, o.logger),
		playersHandler:     NewPlayersHandler(deps, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /jobs", MetricsMiddleware(s.jobsHandler.HandlePostJob, "jobs"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{player_id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("GET /countries", MetricsMiddleware(s.countriesHandler.HandleGetCountries, "countries"))
	mux.HandleFunc("GET /players/{player_id}/above", MetricsMiddleware(s.playersHandler.HandleGetAbove, "players_above"))
	mux.HandleFunc("GET /players/{player_id}/stats", MetricsMiddleware(s.playersHandler.HandleGetStats, "players_stats"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps domain errors to a status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidJob),
		errors.Is(err, leaderboard.ErrUnknownMetric),
		errors.Is(err, leaderboard.ErrInvalidRange),
		errors.Is(err, repository.ErrInvalidRange),
		errors.Is(err, model.ErrUnknownMode):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, permission.ErrUnknownKey):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, permission.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, queue.ErrClosed), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with the status classify picks and logs server faults.
func fail(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, code, err)
}

func playerIDParam(r *http.Request) (int64, error) {
	raw := r.PathValue("player_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid player id %q", ErrBadRequest, raw)
	}
	return id, nil
}

// modeParam reads the mode query parameter; absent means standard.
func modeParam(r *http.Request) (model.Mode, error) {
	raw := r.URL.Query().Get("mode")
	if strings.TrimSpace(raw) == "" {
		return model.Standard, nil
	}
	return model.ParseMode(raw)
}

// metricParam reads the metric query parameter; absent means performance.
func metricParam(r *http.Request) (leaderboard.Metric, error) {
	raw := r.URL.Query().Get("metric")
	if strings.TrimSpace(raw) == "" {
		return leaderboard.Performance, nil
	}
	return leaderboard.ParseMetric(raw)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return n, nil
}
