package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (m *keyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func TestKeyedMutex_PrunesReleasedKeys(t *testing.T) {
	m := newKeyedMutex()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("subs_%d", i%5)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Lock(ctx, key); err != nil {
				t.Error(err)
				return
			}
			m.Unlock(key)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.size())

	require.True(t, m.TryLock("subs_a"))
	assert.False(t, m.TryLock("subs_a"))
	assert.Equal(t, 1, m.size())
	m.Unlock("subs_a")
	assert.Equal(t, 0, m.size())
}

func TestKeyedMutex_WaiterKeepsSlot(t *testing.T) {
	m := newKeyedMutex()
	require.NoError(t, m.Lock(context.Background(), "acct_1"))

	acquired := make(chan struct{})
	go func() {
		if err := m.Lock(context.Background(), "acct_1"); err == nil {
			close(acquired)
		}
	}()

	// the waiter is blocked on the held key
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		s, ok := m.slots["acct_1"]
		return ok && s.refs == 2
	}, time.Second, 5*time.Millisecond)

	m.Unlock("acct_1")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the key")
	}
	assert.Equal(t, 1, m.size())
	m.Unlock("acct_1")
	assert.Equal(t, 0, m.size())
}

func TestKeyedMutex_CancelledWaiterReleasesSlot(t *testing.T) {
	m := newKeyedMutex()
	require.True(t, m.TryLock("subs_1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Lock(ctx, "subs_1"), context.DeadlineExceeded)
	assert.Equal(t, 1, m.size())

	m.Unlock("subs_1")
	assert.Equal(t, 0, m.size())
}
