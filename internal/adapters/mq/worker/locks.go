package worker

import "sync"

// playerLocks serializes work per player. Entries are dropped when no
// goroutine holds or waits for them.
type playerLocks struct {
	mu    sync.Mutex
	locks map[int64]*playerLock
}

type playerLock struct {
	mu   sync.Mutex
	refs int
}

func newPlayerLocks() *playerLocks {
	return &playerLocks{locks: make(map[int64]*playerLock)}
}

func (p *playerLocks) lock(id int64) {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &playerLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
}

func (p *playerLocks) unlock(id int64) {
	p.mu.Lock()
	l := p.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(p.locks, id)
	}
	p.mu.Unlock()

	l.mu.Unlock()
}

func (p *playerLocks) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
