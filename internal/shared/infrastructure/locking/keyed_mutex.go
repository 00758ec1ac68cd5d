// Package locking provides the serialization primitives the fulfillment
// saga uses to keep concurrent webhook deliveries from racing: an
// in-process keyed mutex and a Redis-backed cross-instance claim.
package locking

import "sync"

// KeyedMutex serializes work per string key within a single process.
// Locks are created lazily and never evicted; the key space here is
// payment intent IDs, which are low cardinality per process lifetime.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, blocking until it is free. It returns
// the unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
