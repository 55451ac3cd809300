package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/rankd/internal/adapters/mq/queue"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/permission"
	"github.com/okian/rankd/pkg/logger"
)

// APIKeyHeader carries the caller's key on job submission.
const APIKeyHeader = "X-API-Key"

// JobDependencies defines the interface for job submission.
type JobDependencies interface {
	Enqueue(ctx context.Context, job model.Job) error
}

// JobsHandler handles job submission.
type JobsHandler struct {
	deps    JobDependencies
	keyring *permission.Keyring
	log     logger.Logger
}

// NewJobsHandler creates a new jobs handler. A nil keyring disables
// authorization.
func NewJobsHandler(deps JobDependencies, keyring *permission.Keyring, log logger.Logger) *JobsHandler {
	return &JobsHandler{deps: deps, keyring: keyring, log: log}
}

type jobRequest struct {
	Kind     string `json:"kind"`
	PlayerID int64  `json:"player_id"`
	Mode     string `json:"mode"`
	Country  string `json:"country"`
}

func (j jobRequest) job() (model.Job, error) {
	kind := model.JobKind(strings.TrimSpace(j.Kind))
	if !kind.Valid() {
		return model.Job{}, fmt.Errorf("%w: unknown job kind %q", ErrBadRequest, j.Kind)
	}
	if j.PlayerID <= 0 {
		return model.Job{}, fmt.Errorf("%w: missing player_id", ErrBadRequest)
	}
	job := model.NewJob(kind, j.PlayerID)
	if strings.TrimSpace(j.Mode) != "" {
		mode, err := model.ParseMode(j.Mode)
		if err != nil {
			return model.Job{}, err
		}
		job.Mode = mode
	}
	job.Country = strings.ToLower(strings.TrimSpace(j.Country))
	return job, nil
}

type jobResponse struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id,omitempty"`
	Coalesced bool   `json:"coalesced"`
}

// Scope is the permission scope needed to submit a job of kind.
func Scope(kind model.JobKind) string {
	return "jobs.enqueue." + string(kind)
}

// HandlePostJob handles POST /jobs requests.
func (h *JobsHandler) HandlePostJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_job"
	var req jobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		fail(r.Context(), w, h.log, op, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	job, err := req.job()
	if err != nil {
		fail(r.Context(), w, h.log, op, err)
		return
	}

	if h.keyring != nil {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			fail(r.Context(), w, h.log, op, ErrUnauthorized)
			return
		}
		if err := h.keyring.Check(key, Scope(job.Kind)); err != nil {
			fail(r.Context(), w, h.log, op, err)
			return
		}
	}

	if err := h.deps.Enqueue(r.Context(), job); err != nil {
		if errors.Is(err, queue.ErrCoalesced) {
			writeJSON(w, http.StatusAccepted, jobResponse{Status: "coalesced", Coalesced: true})
			return
		}
		fail(r.Context(), w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{Status: "accepted", JobID: job.ID})
}
