// Package dedupe coalesces identical pending jobs. A job key is recorded
// when the job is queued and released when a worker picks it up, so a
// second request for the same work while the first is still waiting is
// dropped instead of queued.
package dedupe

import (
	"container/list"
	"context"
	"sync"

	"github.com/okian/rankd/pkg/metrics"
)

const defaultMaxSize = 50000

// Deduper tracks keys of pending jobs.
type Deduper interface {
	// SeenAndRecord reports whether key is already pending and records it
	// if not.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases key. It is called when the job leaves the queue,
	// or when it could not be queued after all.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper keeps keys in insertion order. In bounded mode the
// oldest key is forgotten when full, which at worst lets one duplicate
// job through.
type inMemoryDeduper struct {
	mu      sync.Mutex
	order   *list.List
	keys    map[string]*list.Element
	maxSize int
}

// NewInMemoryDeduper creates a deduper. The default bound is 50000 keys.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.order = list.New()
	d.keys = make(map[string]*list.Element)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.keys[key]; ok {
		metrics.RecordJobCoalesced()
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.keys, oldest.Value.(string))
	}
	d.keys[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.keys[key]; ok {
		d.order.Remove(e)
		delete(d.keys, key)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
