package ledger

import "sync"

// userLocks hands out one mutex per user id. Entries are dropped when the
// last holder releases them, so the map only holds users with calls in
// flight. The locks are process-local: one server process must own all
// writes to a store.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

// lock blocks until the caller owns userID's lock and returns the release
// function.
func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	if u.locks == nil {
		u.locks = make(map[string]*userLock)
	}
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}

func (u *userLocks) held() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
