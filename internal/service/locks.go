package service

import (
	"context"
	"sync"
)

// keyedMutex serialises work per key while letting distinct keys proceed
// concurrently. A slot lives only while someone holds or waits for its key.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*keySlot
}

type keySlot struct {
	ch chan struct{}
	// refs counts the holder and every waiter
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*keySlot)}
}

func (m *keyedMutex) acquire(key string) *keySlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &keySlot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *keyedMutex) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(m.slots, key)
	}
}

// Lock blocks until key is free or ctx is done
func (m *keyedMutex) Lock(ctx context.Context, key string) error {
	s := m.acquire(key)
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key)
		return ctx.Err()
	}
}

// TryLock acquires key only if nobody holds it
func (m *keyedMutex) TryLock(key string) bool {
	s := m.acquire(key)
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		m.release(key)
		return false
	}
}

func (m *keyedMutex) Unlock(key string) {
	m.mu.Lock()
	s, ok := m.slots[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	<-s.ch
	m.release(key)
}

