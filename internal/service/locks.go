package service

import "sync"

// orderLocks serializes state transitions per order code. Webhook delivery
// can race a user-initiated cancel, and duplicate deliveries can race each
// other; the transition table rejects what slips through, but the lock keeps
// read-modify-write sequences on one order from interleaving at all.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*orderLock)}
}

// Lock acquires the mutex for code and returns its unlock function.
func (l *orderLocks) Lock(code string) func() {
	l.mu.Lock()
	entry, ok := l.locks[code]
	if !ok {
		entry = &orderLock{}
		l.locks[code] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, code)
		}
		l.mu.Unlock()
	}
}
