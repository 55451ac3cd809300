package api

import (
	"context"
	"net/http"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
)

// CountryDependencies defines the interface for country rankings.
type CountryDependencies interface {
	Countries(ctx context.Context, mode model.Mode) ([]model.CountrySummary, error)
}

// CountriesHandler handles country ranking requests.
type CountriesHandler struct {
	deps CountryDependencies
	log  logger.Logger
}

// NewCountriesHandler creates a new countries handler.
func NewCountriesHandler(deps CountryDependencies, log logger.Logger) *CountriesHandler {
	return &CountriesHandler{deps: deps, log: log}
}

// HandleGetCountries handles GET /countries?mode= requests.
func (h *CountriesHandler) HandleGetCountries(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_countries"
	mode, err := modeParam(r)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	out, err := h.deps.Countries(r.Context(), mode)
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}
	if out == nil {
		out = []model.CountrySummary{}
	}
	writeJSON(w, http.StatusOK, out)
}
