package repository

import (
	"context"
	"hash/maphash"
	"math"
	"sync"
	"time"

	"github.com/okian/rankd/internal/domain/types"
	"github.com/okian/rankd/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: value DESC, then member ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the ranking
// from best to worst. Every node carries its subtree size so rank, range
// and count are O(log n).

const memoryBackend = "memory"

type node struct {
	id    string
	value float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aValue, aID) should appear before (bValue, bID).
func less(aValue float64, aID string, bValue float64, bID string) bool {
	if aValue != bValue {
		return aValue > bValue
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, nn *node) *node {
	if n == nil {
		return nn
	}
	if less(nn.value, nn.id, n.value, n.id) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, value float64) *node {
	if n == nil {
		return nil
	}
	if value == n.value && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, value)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, value)
		}
	} else if less(value, id, n.value, n.id) {
		n.left = deleteNode(n.left, id, value)
	} else {
		n.right = deleteNode(n.right, id, value)
	}
	fix(n)
	return n
}

// countBefore returns how many nodes order strictly before (value, id).
func countBefore(n *node, value float64, id string) int {
	count := 0
	for n != nil {
		if less(n.value, n.id, value, id) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collect appends nodes at in-order positions [from, to) to out.
func collect(n *node, from, to int, out *[]types.Member) {
	if n == nil || from >= to {
		return
	}
	leftSize := nsize(n.left)
	if from < leftSize {
		collect(n.left, from, min(to, leftSize), out)
	}
	if from <= leftSize && leftSize < to {
		*out = append(*out, types.Member{ID: n.id, Value: n.value})
	}
	if to > leftSize+1 {
		collect(n.right, max(from-leftSize-1, 0), to-leftSize-1, out)
	}
}

// treap is one ranking.
type treap struct {
	root *node
	byID map[string]float64
}

// positive returns the number of members with a value > 0. They form a
// prefix of the in-order sequence.
func (t *treap) positive() int {
	return countBefore(t.root, 0, "")
}

// normalize maps NaN and negative zero to zero so ordering stays total.
func normalize(v float64) float64 {
	if math.IsNaN(v) || v == 0 {
		return 0
	}
	return v
}

// TreapStore keeps every ranking in process memory.
type TreapStore struct {
	mu     sync.RWMutex
	sets   map[string]*treap
	seed   maphash.Seed
	total  int
	closed bool

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		sets:                  make(map[string]*treap),
		seed:                  maphash.MakeSeed(),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *TreapStore) priority(id string) uint64 {
	return maphash.String(s.seed, id)
}

// upsertLocked assumes the write lock is held.
func (s *TreapStore) upsertLocked(key, member string, value float64) {
	value = normalize(value)
	t, ok := s.sets[key]
	if !ok {
		t = &treap{byID: make(map[string]float64)}
		s.sets[key] = t
	}
	if old, ok := t.byID[member]; ok {
		if old == value {
			return
		}
		t.root = deleteNode(t.root, member, old)
	} else {
		s.total++
	}
	t.byID[member] = value
	t.root = insert(t.root, &node{id: member, value: value, prio: s.priority(member), size: 1})
}

// removeLocked assumes the write lock is held.
func (s *TreapStore) removeLocked(key, member string) {
	t, ok := s.sets[key]
	if !ok {
		return
	}
	old, ok := t.byID[member]
	if !ok {
		return
	}
	t.root = deleteNode(t.root, member, old)
	delete(t.byID, member)
	s.total--
	if len(t.byID) == 0 {
		delete(s.sets, key)
	}
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(memoryBackend, op, float64(time.Since(start).Microseconds())/1000)
}

// Upsert implements Store.Upsert in O(log n) expected time.
func (s *TreapStore) Upsert(ctx context.Context, key, member string, value float64) error {
	defer observe("upsert", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.upsertLocked(key, member, value)
	return nil
}

// Remove implements Store.Remove.
func (s *TreapStore) Remove(ctx context.Context, key, member string) error {
	defer observe("remove", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.removeLocked(key, member)
	return nil
}

// Rank implements Store.Rank.
func (s *TreapStore) Rank(ctx context.Context, key, member string) (int, error) {
	defer observe("rank", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.sets[key]
	if !ok {
		return 0, nil
	}
	value, ok := t.byID[member]
	if !ok || value <= 0 {
		return 0, nil
	}
	return countBefore(t.root, value, member) + 1, nil
}

// Value implements Store.Value.
func (s *TreapStore) Value(ctx context.Context, key, member string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.sets[key]; ok {
		return t.byID[member], nil
	}
	return 0, nil
}

// Range implements Store.Range.
func (s *TreapStore) Range(ctx context.Context, key string, offset, limit int) ([]types.Member, error) {
	defer observe("range", time.Now())
	if offset < 0 || limit < 1 {
		return nil, ErrInvalidRange
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.sets[key]
	if !ok {
		return []types.Member{}, nil
	}
	end := min(offset+limit, t.positive())
	out := make([]types.Member, 0, max(end-offset, 0))
	collect(t.root, offset, end, &out)
	return out, nil
}

// Count implements Store.Count.
func (s *TreapStore) Count(ctx context.Context, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.sets[key]; ok {
		return t.positive(), nil
	}
	return 0, nil
}

// Batch implements Store.Batch. Writes are applied under one lock.
func (s *TreapStore) Batch() Batch {
	return &treapBatch{store: s}
}

// Close stops the background metrics updater. Later writes fail with
// ErrStoreClosed; reads keep answering from the last state.
func (s *TreapStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater periodically publishes the member count.
func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.mu.RLock()
				total := s.total
				s.mu.RUnlock()
				metrics.UpdateStoreMembers(memoryBackend, total)
			}
		}
	}()
}

type batchOp struct {
	key    string
	member string
	value  float64
	remove bool
}

type treapBatch struct {
	store *TreapStore
	ops   []batchOp
}

func (b *treapBatch) Upsert(key, member string, value float64) {
	b.ops = append(b.ops, batchOp{key: key, member: member, value: value})
}

func (b *treapBatch) Remove(key, member string) {
	b.ops = append(b.ops, batchOp{key: key, member: member, remove: true})
}

func (b *treapBatch) Len() int { return len(b.ops) }

func (b *treapBatch) Exec(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defer observe("batch", time.Now())
	b.store.mu.Lock()
	if b.store.closed {
		b.store.mu.Unlock()
		return ErrStoreClosed
	}
	for _, op := range b.ops {
		if op.remove {
			b.store.removeLocked(op.key, op.member)
		} else {
			b.store.upsertLocked(op.key, op.member, op.value)
		}
	}
	b.store.mu.Unlock()
	metrics.RecordStoreBatch(memoryBackend, len(b.ops))
	b.ops = b.ops[:0]
	return nil
}
