// Package syncutil holds small locking helpers.
package syncutil

import (
	"context"
	"sync"
)

// KeyedMutex is a set of mutexes, one per key, whose Lock can be abandoned
// when a context ends. Per-key state is never released, so keys should come
// from a small fixed set. The zero value is ready to use.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]chan struct{}
}

func (m *KeyedMutex[K]) slot(key K) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[K]chan struct{})
	}
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	return ch
}

// LockContext acquires key's mutex. It returns an unlock function, safe to
// call more than once, or ctx's error if ctx ends first.
func (m *KeyedMutex[K]) LockContext(ctx context.Context, key K) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := m.slot(key)
	select {
	case ch <- struct{}{}:
		return releaser(ch), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires key's mutex only if it is free.
func (m *KeyedMutex[K]) TryLock(key K) (func(), bool) {
	ch := m.slot(key)
	select {
	case ch <- struct{}{}:
		return releaser(ch), true
	default:
		return nil, false
	}
}

func releaser(ch chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }
}
