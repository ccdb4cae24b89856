// Package waitqueue implements the scheduler's worker parking mechanism: an
// eventcount-style queue following the PrepareWait -> (scan) -> CommitWait
// -> Park protocol, so a worker that finds no work can block without ever
// missing a wakeup that races with its own "is there really no work"
// check.
//
// The original packs pre-wait count, pending-signal count, and an
// ABA-guarding epoch into a single atomic word, alongside a pointer to the
// head of an intrusive wait stack. This implementation keeps the counts in
// their own atomic fields and the wait stack in a separate atomic pointer:
// Go's garbage collector already rules out the use-after-free that the
// epoch exists to guard against in the original's manually-managed memory,
// so splitting the word costs nothing but a little struct size.
package waitqueue

import (
	"sync/atomic"

	"github.com/olocore/concore/parkevent"
)

type waiterNode struct {
	next *waiterNode
	ev   *parkevent.Event
}

// WaitQueue is one scheduler-wide (or, for foreground/background, one
// per class) parking point for idle workers.
type WaitQueue struct {
	preWait        atomic.Int32
	pendingSignals atomic.Int32
	stack          atomic.Pointer[waiterNode]
}

// New constructs an empty wait queue.
func New() *WaitQueue {
	return &WaitQueue{}
}

// PrepareWait announces intent to possibly park, before the caller
// rescans its work sources. It must always be paired with exactly one of
// CancelWait (work was found) or CommitWait (no work was found).
func (q *WaitQueue) PrepareWait() {
	q.preWait.Add(1)
}

// CancelWait withdraws a PrepareWait when the caller found work during its
// rescan and will not call CommitWait.
func (q *WaitQueue) CancelWait() {
	q.preWait.Add(-1)
}

// CommitWait blocks the calling goroutine until a matching Notify wakes it.
// If a Notify landed in the window between PrepareWait and CommitWait, it
// will have deposited a pending signal that CommitWait consumes here
// without ever parking.
func (q *WaitQueue) CommitWait() {
	for {
		signals := q.pendingSignals.Load()
		if signals <= 0 {
			break
		}
		if q.pendingSignals.CompareAndSwap(signals, signals-1) {
			q.preWait.Add(-1)
			return
		}
	}

	node := &waiterNode{ev: parkevent.New()}
	for {
		old := q.stack.Load()
		node.next = old
		if q.stack.CompareAndSwap(old, node) {
			break
		}
	}
	q.preWait.Add(-1)

	// A Notify may have observed preWait > 0 and an empty stack in the
	// narrow window between our push above and this point, depositing a
	// pending signal for us instead of finding us to pop. Claim it directly
	// rather than parking: we're still reachable on the stack for a normal
	// pop too, so losing the race for the CAS below just means some other
	// committer claimed the signal and we fall through to a normal park.
	for {
		signals := q.pendingSignals.Load()
		if signals <= 0 {
			break
		}
		if q.pendingSignals.CompareAndSwap(signals, signals-1) {
			q.stack.CompareAndSwap(node, node.next) // best-effort self-pop
			node.ev.Notify()
			break
		}
	}

	node.ev.Wait()
}

// Notify wakes up to n parked waiters, returning how many were actually
// woken. If fewer than n were found on the wait stack but threads are
// known to be in the PrepareWait/CommitWait gap (preWait > 0), the
// shortfall is deposited as pending signals for them to consume instead of
// parking — this is what keeps the protocol race-free.
func (q *WaitQueue) Notify(n int) int {
	woken := 0
	for woken < n {
		old := q.stack.Load()
		if old == nil {
			break
		}
		if q.stack.CompareAndSwap(old, old.next) {
			old.ev.Notify()
			woken++
		}
	}
	if remaining := n - woken; remaining > 0 && q.preWait.Load() > 0 {
		q.pendingSignals.Add(int32(remaining))
	}
	return woken
}

// NotifyAll wakes every currently parked waiter, returning how many were
// woken.
func (q *WaitQueue) NotifyAll() int {
	woken := 0
	for {
		old := q.stack.Load()
		if old == nil {
			return woken
		}
		if q.stack.CompareAndSwap(old, nil) {
			for n := old; n != nil; n = n.next {
				n.ev.Notify()
				woken++
			}
			return woken
		}
	}
}
