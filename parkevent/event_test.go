package parkevent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvent_NotifyBeforeWait(t *testing.T) {
	e := New()
	e.Notify()
	require.True(t, e.Poll())
	e.Wait() // must return immediately
}

func TestEvent_WaitThenNotify(t *testing.T) {
	e := New()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Wait()
	}()
	time.Sleep(10 * time.Millisecond)
	e.Notify()
	wg.Wait()
}

func TestEvent_ResetClearsSignal(t *testing.T) {
	e := New()
	e.Notify()
	e.Reset()
	require.False(t, e.Poll())
}

func TestEvent_WaitForTimesOut(t *testing.T) {
	e := New()
	ok := e.WaitFor(20 * time.Millisecond)
	require.False(t, ok)
}

func TestEvent_WaitForExpiredOnEntry(t *testing.T) {
	e := New()
	e.Notify()
	require.True(t, e.WaitFor(0))
}

func TestEvent_WaitUntilZeroDeadlineIsInfinite(t *testing.T) {
	e := New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Notify()
	}()
	require.True(t, e.WaitUntil(time.Time{}))
}

func TestEvent_BroadcastWakesAllWaiters(t *testing.T) {
	e := New()
	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			e.Wait()
		}()
	}
	time.Sleep(10 * time.Millisecond)
	e.Notify()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all waiters were woken")
	}
}
