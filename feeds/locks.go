package feeds

import "sync"

// ownerLocks hands out one mutex per owner. Entries are dropped once the
// last holder releases them so the map does not grow with every owner seen.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	sync.Mutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*ownerLock)}
}

// Lock blocks until the owner's mutex is held and returns its release func
func (l *ownerLocks) Lock(owner string) func() {
	l.mu.Lock()
	lock, ok := l.locks[owner]
	if !ok {
		lock = &ownerLock{}
		l.locks[owner] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, owner)
		}
		l.mu.Unlock()
	}
}

// held returns the number of owners with an outstanding lock
func (l *ownerLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
