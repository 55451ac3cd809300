package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind names a unit of per-player work.
type JobKind string

// Job kinds accepted by the worker pool.
const (
	JobRestoreStats      JobKind = "restore_stats"
	JobRestoreHidden     JobKind = "restore_hidden"
	JobUpdateLeaderCount JobKind = "update_leader_count"
	JobUpdateKudosu      JobKind = "update_kudosu"
	JobRemovePlayer      JobKind = "remove_player"
	JobRemoveCountry     JobKind = "remove_country"
)

// JobKinds returns every known job kind.
func JobKinds() []JobKind {
	return []JobKind{JobRestoreStats, JobRestoreHidden, JobUpdateLeaderCount, JobUpdateKudosu, JobRemovePlayer, JobRemoveCountry}
}

// Valid reports whether k is a known kind.
func (k JobKind) Valid() bool {
	for _, known := range JobKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Job is a queued request to recompute or remove a player's ranking data.
type Job struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	PlayerID   int64     `json:"player_id"`
	Mode       Mode      `json:"mode"`
	Country    string    `json:"country,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob builds a job with a fresh id.
func NewJob(kind JobKind, playerID int64) Job {
	return Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		PlayerID:   playerID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Key identifies jobs that do the same work, used for in-flight coalescing.
func (j Job) Key() string {
	switch j.Kind {
	case JobUpdateLeaderCount:
		return fmt.Sprintf("%s:%d:%d", j.Kind, j.PlayerID, j.Mode)
	case JobUpdateKudosu, JobRemovePlayer, JobRemoveCountry:
		return fmt.Sprintf("%s:%d:%s", j.Kind, j.PlayerID, j.Country)
	default:
		return fmt.Sprintf("%s:%d", j.Kind, j.PlayerID)
	}
}

// EnvelopeVersion is the only envelope version this build reads and writes.
const EnvelopeVersion = 1

// Envelope is the wire shape of a job. Name selects the payload schema.
type Envelope struct {
	Version int             `json:"version"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

type jobPayload struct {
	ID         string    `json:"id"`
	PlayerID   int64     `json:"player_id"`
	Mode       Mode      `json:"mode"`
	Country    string    `json:"country,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// EncodeJob wraps a job in a versioned envelope.
func EncodeJob(j Job) ([]byte, error) {
	if !j.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, j.Kind)
	}
	payload, err := json.Marshal(jobPayload{
		ID:         j.ID,
		PlayerID:   j.PlayerID,
		Mode:       j.Mode,
		Country:    j.Country,
		EnqueuedAt: j.EnqueuedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return json.Marshal(Envelope{Version: EnvelopeVersion, Name: string(j.Kind), Payload: payload})
}

// DecodeJob parses an envelope strictly: unknown versions, names and fields are rejected.
func DecodeJob(data []byte) (Job, error) {
	var env Envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Version != EnvelopeVersion {
		return Job{}, fmt.Errorf("%w: version %d", ErrInvalidEnvelope, env.Version)
	}
	kind := JobKind(env.Name)
	if !kind.Valid() {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownJob, env.Name)
	}
	if len(env.Payload) == 0 {
		return Job{}, fmt.Errorf("%w: empty payload", ErrInvalidEnvelope)
	}
	var p jobPayload
	if err := strictUnmarshal(env.Payload, &p); err != nil {
		return Job{}, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}
	if p.PlayerID <= 0 {
		return Job{}, fmt.Errorf("%w: player id must be positive", ErrInvalidEnvelope)
	}
	if !p.Mode.Valid() {
		return Job{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, ErrUnknownMode)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.EnqueuedAt.IsZero() {
		p.EnqueuedAt = time.Now().UTC()
	}
	return Job{
		ID:         p.ID,
		Kind:       kind,
		PlayerID:   p.PlayerID,
		Mode:       p.Mode,
		Country:    p.Country,
		EnqueuedAt: p.EnqueuedAt,
	}, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data")
	}
	return nil
}
