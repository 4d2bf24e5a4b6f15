package session

import (
	"context"
	"sync"
)

// Locker serialises turns within a session. Two requests for the same session
// run one after the other; requests for different sessions are unaffected.
//
// Lock entries are reference counted and removed once the last holder
// releases, so abandoned sessions do not leak map entries.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// NewLocker creates an empty [Locker].
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sessionLock)}
}

// Acquire blocks until the session lock is held or ctx is done. On success
// it returns a release function, which must be called exactly once.
func (l *Locker) Acquire(ctx context.Context, id string) (release func(), err error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{ch: make(chan struct{}, 1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(id, sl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-sl.ch
			l.unref(id, sl)
		})
	}, nil
}

func (l *Locker) unref(id string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}
