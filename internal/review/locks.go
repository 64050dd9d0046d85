package review

import (
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when the per-card lock cannot be acquired within the
// configured timeout. The review was not recorded and the caller may retry.
var ErrBusy = errors.New("card busy: concurrent review in progress")

// keyedMutex serializes review events per (learner, sense) key with a
// bounded acquire wait. Entries are reference counted so the map does not
// grow with every key ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock acquires the key's mutex, waiting at most timeout. On success the
// returned function releases the lock.
func (k *keyedMutex) Lock(key string, timeout time.Duration) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			k.unref(key, e)
		}, nil
	case <-timer.C:
		k.unref(key, e)
		return nil, ErrBusy
	}
}

func (k *keyedMutex) unref(key string, e *lockEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}
