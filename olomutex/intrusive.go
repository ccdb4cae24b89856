package olomutex

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/olocore/concore/parkinglot"
)

// intrusiveParams configures the generic intrusive-mutex slow path: the
// algorithm most of this package's mutex types instantiate over their own
// (or, for External, a caller-owned) atomic state word.
type intrusiveParams struct {
	mayHaveWaitFlag uint32
	spinLimit       int
}

// tryAcquireFunc attempts to compute the next state word from the current
// one, returning ok=false if the lock can't be acquired right now. It must
// be side-effect free: intrusiveLock may call it speculatively, more than
// once, before the CAS that commits to it actually succeeds.
type tryAcquireFunc func(old uint32) (next uint32, ok bool)

// clearFunc computes the unlocked state word from the current one.
type clearFunc func(old uint32) uint32

// intrusiveLock implements the generic slow path: spin briefly,
// then mark "may have waiters" and park on addr, retrying tryAcquire after
// every wake. It is also used directly on the fast path's retry loop, so
// callers don't need a separate CAS-then-fallback dance.
func intrusiveLock(state *atomic.Uint32, p intrusiveParams, addr unsafe.Pointer, tryAcquire tryAcquireFunc) {
	spins := 0
	for {
		old := state.Load()
		if next, ok := tryAcquire(old); ok {
			if state.CompareAndSwap(old, next) {
				return
			}
			continue
		}
		if spins < p.spinLimit {
			spins++
			runtime.Gosched()
			continue
		}

		for {
			old := state.Load()
			if old&p.mayHaveWaitFlag != 0 {
				break
			}
			if state.CompareAndSwap(old, old|p.mayHaveWaitFlag) {
				break
			}
		}

		parkinglot.Wait(addr, func() bool {
			old := state.Load()
			if _, ok := tryAcquire(old); ok {
				return false
			}
			return old&p.mayHaveWaitFlag != 0
		}, nil)

		spins = 0
	}
}

// intrusiveUnlock implements the generic release path: clear the lock bits,
// then — if some thread may be waiting — wake at most one, clearing the
// waiters flag if no other waiter remains parked on addr.
func intrusiveUnlock(state *atomic.Uint32, p intrusiveParams, addr unsafe.Pointer, clear clearFunc) {
	var old uint32
	for {
		old = state.Load()
		if state.CompareAndSwap(old, clear(old)) {
			break
		}
	}
	if old&p.mayHaveWaitFlag == 0 {
		return
	}
	parkinglot.WakeOne(addr, func(info parkinglot.WakeCallbackInfo) uint64 {
		if !info.HasRemainingWaiters {
			for {
				cur := state.Load()
				if cur&p.mayHaveWaitFlag == 0 {
					break
				}
				if state.CompareAndSwap(cur, cur&^p.mayHaveWaitFlag) {
					break
				}
			}
		}
		return 0
	})
}
