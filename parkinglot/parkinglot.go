// Package parkinglot implements a global, address-keyed wait/wake table —
// a "parking lot" in the sense popularized by WebKit and Rust's
// parking_lot crate, and used here as the blocking primitive underneath
// the slow paths of the olomutex mutex family.
//
// Callers never allocate or name a wait queue: any `unsafe.Pointer` address
// (typically the address of a state word the caller already owns) can be
// used to park on, and the parking lot hashes it to one of a growable set
// of buckets, each guarded by its own lock.
package parkinglot

import (
	"math"
	"sync/atomic"
	"time"
	"unsafe"
)

// WaitState is returned by Wait/WaitFor/WaitUntil.
type WaitState struct {
	// DidWait reports whether the caller actually enqueued and blocked (it
	// is false if CanWait returned false, meaning the caller never needed
	// to wait at all).
	DidWait bool
	// DidWake reports whether the wait ended because of a Wake call, as
	// opposed to a timeout.
	DidWake bool
	// WakeToken carries whatever value the waker's callback produced.
	WakeToken uint64
}

// WakeCallbackInfo is passed to a WakeOne callback so it can decide what
// wake token to hand back to the woken waiter.
type WakeCallbackInfo struct {
	DidWake             bool
	HasRemainingWaiters bool
}

// WakeState is returned by WakeOne.
type WakeState struct {
	DidWake           bool
	HasWaitingThreads bool
}

var totalWaiting atomic.Int64

// Wait enqueues the calling goroutine to park on addr, if canWait() returns
// true, then blocks until woken. canWait and beforeWait both run under the
// target bucket's lock, so a caller can use canWait to atomically recheck
// whatever condition it's about to block on (the usual "did the value
// change between my check and my enqueue" race).
func Wait(addr unsafe.Pointer, canWait func() bool, beforeWait func()) WaitState {
	return waitImpl(addr, canWait, beforeWait, 0, false)
}

// WaitFor is Wait with a relative timeout.
func WaitFor(addr unsafe.Pointer, canWait func() bool, beforeWait func(), d time.Duration) WaitState {
	return waitImpl(addr, canWait, beforeWait, d, true)
}

// WaitUntil is Wait with an absolute deadline.
func WaitUntil(addr unsafe.Pointer, canWait func() bool, beforeWait func(), deadline time.Time) WaitState {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = -1 // treat as already expired, see waitImpl
	}
	return waitImpl(addr, canWait, beforeWait, remaining, true)
}

func waitImpl(addr unsafe.Pointer, canWait func() bool, beforeWait func(), timeout time.Duration, timed bool) WaitState {
	if addr == nil {
		panic("parkinglot: nil address")
	}

	var node *waitNode
	var observedWaiting int64
	var observedTable *table

	for {
		t := loadTable()
		b := t.bucketFor(addr)
		b.mu.Lock()
		if globalTable.Load() != t {
			b.mu.Unlock()
			continue
		}
		if canWait != nil && !canWait() {
			b.mu.Unlock()
			return WaitState{}
		}
		if beforeWait != nil {
			beforeWait()
		}
		node = newWaitNode(addr)
		b.pushBack(node)
		observedTable = t
		b.mu.Unlock()
		observedWaiting = totalWaiting.Add(1)
		break
	}

	maybeGrow(observedTable, int(observedWaiting))

	if !timed {
		node.ev.Wait()
		return WaitState{DidWait: true, DidWake: true, WakeToken: node.wakeToken}
	}

	if timeout < 0 {
		// already-expired deadline: still need to attempt the self-dequeue
		// dance below, since the node was already enqueued above.
		return finishTimedWait(addr, node, false)
	}

	woke := node.ev.WaitFor(timeout)
	if woke {
		return WaitState{DidWait: true, DidWake: true, WakeToken: node.wakeToken}
	}
	return finishTimedWait(addr, node, false)
}

// finishTimedWait handles the timeout race: if the
// node has already been claimed by a waker (unlinked from its bucket) by
// the time we get the bucket lock, we must not rip it out of the waker's
// hands — we complete the block and consume the event like a normal wake.
// Otherwise we self-dequeue and report a timeout.
func finishTimedWait(addr unsafe.Pointer, node *waitNode, _ bool) WaitState {
	for {
		t := loadTable()
		b := t.bucketFor(addr)
		b.mu.Lock()
		if globalTable.Load() != t {
			b.mu.Unlock()
			continue
		}
		linked := false
		for n := b.head; n != nil; n = n.next {
			if n == node {
				linked = true
				break
			}
		}
		if !linked {
			b.mu.Unlock()
			node.ev.Wait()
			return WaitState{DidWait: true, DidWake: true, WakeToken: node.wakeToken}
		}
		b.unlink(node)
		node.waitAddr.Store(nil)
		b.mu.Unlock()
		totalWaiting.Add(-1)
		return WaitState{DidWait: true, DidWake: false}
	}
}

// WakeOne wakes the first waiter parked on addr, if any. onWake is invoked
// under the bucket lock (so it can atomically decide e.g. whether to clear
// a "may have waiters" flag) with whether a waiter was found and whether
// others remain on the same address; its return value becomes the woken
// waiter's WakeToken.
func WakeOne(addr unsafe.Pointer, onWake func(WakeCallbackInfo) uint64) WakeState {
	var woken *waitNode
	var hasRemaining bool
	var token uint64

	withBucketLocked(addr, func(b *bucket) {
		for n := b.head; n != nil; n = n.next {
			if n.addr() == addr {
				woken = n
				b.unlink(n)
				break
			}
		}
		hasRemaining = b.hasWaiterFor(addr)
		if onWake != nil {
			token = onWake(WakeCallbackInfo{DidWake: woken != nil, HasRemainingWaiters: hasRemaining})
		}
	})

	if woken == nil {
		return WakeState{}
	}
	totalWaiting.Add(-1)
	woken.markDequeued(token)
	woken.ev.Notify()
	return WakeState{DidWake: true, HasWaitingThreads: hasRemaining}
}

// WakeMultiple wakes up to count waiters parked on addr, returning how many
// were actually woken.
func WakeMultiple(addr unsafe.Pointer, count int) int {
	if count <= 0 {
		return 0
	}
	var woken []*waitNode
	withBucketLocked(addr, func(b *bucket) {
		for n := b.head; n != nil && len(woken) < count; {
			next := n.next
			if n.addr() == addr {
				woken = append(woken, n)
				b.unlink(n)
			}
			n = next
		}
	})
	for _, n := range woken {
		n.markDequeued(0)
		n.ev.Notify()
	}
	if len(woken) > 0 {
		totalWaiting.Add(-int64(len(woken)))
	}
	return len(woken)
}

// WakeAll wakes every waiter parked on addr, returning how many were woken.
func WakeAll(addr unsafe.Pointer) int {
	return WakeMultiple(addr, math.MaxInt32)
}

// withBucketLocked runs fn with addr's bucket locked, retrying if the
// bucket table was grown out from under the caller between load and lock.
func withBucketLocked(addr unsafe.Pointer, fn func(b *bucket)) {
	for {
		t := loadTable()
		b := t.bucketFor(addr)
		b.mu.Lock()
		if globalTable.Load() != t {
			b.mu.Unlock()
			continue
		}
		fn(b)
		b.mu.Unlock()
		return
	}
}
