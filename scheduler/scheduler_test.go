package scheduler

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"

	"github.com/olocore/concore/colog"
	"github.com/olocore/concore/task"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_FireAndForgetWithoutWorkers(t *testing.T) {
	s := New()

	var ran atomic.Bool
	tk := task.New("fire-and-forget", task.PriorityNormal, nil, func(notCanceled bool) *task.Task {
		ran.Store(notCanceled)
		return nil
	})

	require.True(t, s.TryLaunch(tk, QueueAuto, true))
	// No workers were ever started, so the task sits in the global overflow
	// queue until StopWorkers(true) drains it inline.
	require.False(t, ran.Load())

	s.StopWorkers(true)
	require.True(t, ran.Load())
}

func TestScheduler_TryLaunchRunsOnWorkerPool(t *testing.T) {
	s := New()
	require.NoError(t, s.StartWorkers(2, 1))
	defer s.StopWorkers(false)

	var wg sync.WaitGroup
	wg.Add(1)
	var sum atomic.Int64
	tk := task.New("add", task.PriorityNormal, nil, func(notCanceled bool) *task.Task {
		if notCanceled {
			sum.Add(42)
		}
		wg.Done()
		return nil
	})

	require.True(t, s.TryLaunch(tk, QueueAuto, true))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	require.EqualValues(t, 42, sum.Load())
}

func TestScheduler_ProducerConsumerPriorityOrdering(t *testing.T) {
	s := New()
	// A single background worker polls every priority span (foreground
	// workers never touch background priorities at all, so a foreground
	// worker could never pick up the low-priority task here).
	require.NoError(t, s.StartWorkers(0, 1))
	defer s.StopWorkers(false)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	record := func(name string) task.Runnable {
		return func(notCanceled bool) *task.Task {
			if notCanceled {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			}
			wg.Done()
			return nil
		}
	}

	// Launch a background-priority task first, then a high-priority one;
	// the worker's per-priority polling order means high runs first even
	// though it was enqueued second, as long as both are still queued when
	// the worker looks.
	wg.Add(2)
	low := task.New("low", task.PriorityBackgroundNormal, nil, record("low"))
	high := task.New("high", task.PriorityHigh, nil, record("high"))

	require.True(t, s.TryLaunch(low, QueueGlobal, false))
	require.True(t, s.TryLaunch(high, QueueGlobal, true))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"high", "low"}, order)
}

func TestScheduler_StartStopRestartLifecycle(t *testing.T) {
	s := New()
	require.NoError(t, s.StartWorkers(1, 1))
	require.Error(t, s.StartWorkers(1, 1), "starting twice without stopping should fail")
	require.Equal(t, 2, s.NumWorkers())

	s.StopWorkers(false)
	require.Equal(t, 0, s.NumWorkers())

	require.NoError(t, s.RestartWorkers(2, 0))
	defer s.StopWorkers(false)
	waitUntil(t, time.Second, func() bool { return s.NumWorkers() == 2 })
}

func TestScheduler_OversubscriptionScopeRaisesCeiling(t *testing.T) {
	s := New()
	require.NoError(t, s.StartWorkers(2, 0))
	defer s.StopWorkers(false)

	base := s.MaxNumWorkers()
	require.True(t, s.IsOversubscriptionLimitReached())

	scope := s.EnterOversubscription()
	defer scope.Close()

	if s.settings.cfg.OversubscriptionRatio > 0 {
		require.Greater(t, s.MaxNumWorkers(), base)
	}
}

func TestScheduler_GameThreadAlwaysUsesGlobalQueue(t *testing.T) {
	s := New()
	require.NoError(t, s.StartWorkers(1, 0))
	defer s.StopWorkers(false)

	record := s.RegisterGameThread()
	defer record.Close()

	var ran atomic.Bool
	tk := task.New("from-game-thread", task.PriorityNormal, nil, func(notCanceled bool) *task.Task {
		ran.Store(notCanceled)
		return nil
	})
	require.True(t, s.TryLaunchFrom(tk, QueueLocal, record, true))

	waitUntil(t, time.Second, ran.Load)
}

func TestScheduler_LoggerObservesWorkerStartAndStop(t *testing.T) {
	var buf bytes.Buffer
	s := New(WithLogger(colog.NewDefault(&buf, logiface.LevelTrace)))
	require.NoError(t, s.StartWorkers(1, 0))
	s.StopWorkers(false)

	logged := buf.String()
	require.Contains(t, logged, "worker started")
	require.Contains(t, logged, "worker stopped")
}

func TestScheduler_LoggerObservesOversubscriptionCeiling(t *testing.T) {
	var buf bytes.Buffer
	s := New(WithLogger(colog.NewDefault(&buf, logiface.LevelTrace)))
	require.NoError(t, s.StartWorkers(1, 0))
	defer s.StopWorkers(false)

	require.True(t, s.IsOversubscriptionLimitReached())
	require.Contains(t, buf.String(), "oversubscription ceiling reached")
}
