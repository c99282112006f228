package repository

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedLocker serializes work per integration id within this process. The
// service runs as a single instance, so an in-process mutex map is enough;
// the version column on the integration row is the cross-process backstop.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{
		locks: make(map[uuid.UUID]*entry),
	}
}

// WithLock runs fn while holding the lock for id. Entries are dropped once
// the last holder releases, so the map never grows past the number of
// in-flight operations.
func (l *KeyedLocker) WithLock(id uuid.UUID, fn func() error) error {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &entry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}()

	return fn()
}
