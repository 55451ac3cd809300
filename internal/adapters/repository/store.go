// Package repository implements the ranking stores behind the leaderboard.
package repository

import (
	"context"

	"github.com/okian/rankd/internal/domain/types"
)

// Store is a keyed collection of rankings. Each key names one ordered set
// of members. Members are ordered by value descending, then by a
// backend-specific stable member order.
//
// Values <= 0 may be stored but are never ranked, counted or listed.
// Absent members are not errors: Rank and Value return zero.
type Store interface {
	// Upsert sets member's value in key, replacing any previous value.
	Upsert(ctx context.Context, key, member string, value float64) error
	// Remove deletes member from key. Removing an absent member is a no-op.
	Remove(ctx context.Context, key, member string) error
	// Rank returns the 1-based descending rank of member, or 0 when unranked.
	Rank(ctx context.Context, key, member string) (int, error)
	// Value returns the stored value of member, or 0 when absent.
	Value(ctx context.Context, key, member string) (float64, error)
	// Range returns up to limit positive members starting at offset.
	Range(ctx context.Context, key string, offset, limit int) ([]types.Member, error)
	// Count returns the number of members with a positive value.
	Count(ctx context.Context, key string) (int, error)
	// Batch starts a write batch sent in a single round trip.
	Batch() Batch
	// Close releases background resources.
	Close() error
}

// Batch collects writes and applies them together on Exec. A failed Exec
// may leave a prefix of the writes applied.
type Batch interface {
	Upsert(key, member string, value float64)
	Remove(key, member string)
	// Len returns the number of queued writes.
	Len() int
	Exec(ctx context.Context) error
}

// MetricStore is a single named ranking bound to one Store key.
type MetricStore struct {
	store Store
	key   string
}

// NewMetricStore binds key on store.
func NewMetricStore(store Store, key string) *MetricStore {
	return &MetricStore{store: store, key: key}
}

// Key returns the bound ranking key.
func (m *MetricStore) Key() string { return m.key }

// Upsert sets the player's value.
func (m *MetricStore) Upsert(ctx context.Context, playerID int64, value float64) error {
	return m.store.Upsert(ctx, m.key, types.MemberID(playerID), value)
}

// Remove deletes the player from the ranking.
func (m *MetricStore) Remove(ctx context.Context, playerID int64) error {
	return m.store.Remove(ctx, m.key, types.MemberID(playerID))
}

// Rank returns the player's 1-based rank, 0 when unranked.
func (m *MetricStore) Rank(ctx context.Context, playerID int64) (int, error) {
	return m.store.Rank(ctx, m.key, types.MemberID(playerID))
}

// Value returns the player's value, 0 when absent.
func (m *MetricStore) Value(ctx context.Context, playerID int64) (float64, error) {
	return m.store.Value(ctx, m.key, types.MemberID(playerID))
}

// Range returns ranked entries starting at offset.
func (m *MetricStore) Range(ctx context.Context, offset, limit int) ([]types.Entry, error) {
	if offset < 0 || limit < 1 {
		return nil, ErrInvalidRange
	}
	members, err := m.store.Range(ctx, m.key, offset, limit)
	if err != nil {
		return nil, err
	}
	return types.Entries(members, offset), nil
}

// Count returns the number of ranked players.
func (m *MetricStore) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx, m.key)
}
