package waitqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommitWait_WakesOnNotify(t *testing.T) {
	q := New()
	done := make(chan struct{})
	go func() {
		q.PrepareWait()
		q.CommitWait()
		close(done)
	}()

	require.Eventually(t, func() bool {
		return q.Notify(1) == 1
	}, time.Second, time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CommitWait never returned")
	}
}

func TestPrepareWaitThenCancelWait_NeverParks(t *testing.T) {
	q := New()
	q.PrepareWait()
	q.CancelWait()
	require.Equal(t, 0, q.Notify(1))
}

func TestNotify_RaceBeforeCommitDepositsSignal(t *testing.T) {
	// Exercises the race the PrepareWait/CommitWait split exists to close:
	// a Notify landing strictly between PrepareWait and CommitWait must
	// still be observed by CommitWait, via a deposited pending signal,
	// rather than being lost.
	q := New()
	q.PrepareWait()
	woken := q.Notify(1)
	require.Equal(t, 0, woken) // nobody was parked yet

	done := make(chan struct{})
	go func() {
		q.CommitWait() // must return promptly via the pending signal
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CommitWait blocked despite a pending signal from an earlier Notify")
	}
}

func TestNotifyAll_WakesEveryWaiter(t *testing.T) {
	q := New()
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.PrepareWait()
			q.CommitWait()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Repeatedly sweep with NotifyAll until every goroutine has both parked
	// and been woken — goroutines may still be between PrepareWait and
	// actually parking on any given sweep.
	deadline := time.Now().Add(time.Second)
	for {
		select {
		case <-done:
			return
		default:
		}
		q.NotifyAll()
		if time.Now().After(deadline) {
			t.Fatal("not every waiter woke")
		}
		time.Sleep(time.Millisecond)
	}
}
