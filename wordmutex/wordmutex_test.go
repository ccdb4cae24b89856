package wordmutex

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMutex_TryLock(t *testing.T) {
	var m Mutex
	require.True(t, m.TryLock())
	require.False(t, m.TryLock())
	require.True(t, m.IsLocked())
	m.Unlock()
	require.False(t, m.IsLocked())
}

func TestMutex_LockUnlockIsNoOpOnIdle(t *testing.T) {
	var m Mutex
	m.Lock()
	m.Unlock()
	require.False(t, m.IsLocked())
}

func TestMutex_ContentionCounter(t *testing.T) {
	var m Mutex
	var counter int
	var wg sync.WaitGroup
	const goroutines = 16
	const iterations = 2000
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, goroutines*iterations, counter)
}

func TestMutex_SerializesExclusiveAccess(t *testing.T) {
	var m Mutex
	var inside atomic.Int32
	var violations atomic.Int32
	var wg sync.WaitGroup
	const goroutines = 24
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				m.Lock()
				if inside.Add(1) != 1 {
					violations.Add(1)
				}
				inside.Add(-1)
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Zero(t, violations.Load())
}
