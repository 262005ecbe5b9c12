package negotiation

import "sync"

// locker serializes transitions per negotiation id. Each negotiation is a
// single-writer resource: concurrent inbound messages for the same id queue
// here while different negotiations proceed fully in parallel. Entries are
// refcounted and dropped once the last holder releases, so the map only
// holds ids with work in flight.
type locker struct {
	mu    sync.Mutex
	locks map[uint]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLocker() *locker {
	return &locker{locks: make(map[uint]*lockEntry)}
}

// acquire locks the per-id mutex and returns the release func.
func (l *locker) acquire(id uint) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
