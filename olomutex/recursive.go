package olomutex

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	recursiveMayHaveWaitFlag uint32 = 1 << 0
	recursiveCountShift             = 1
	recursiveMaxCount               = (1 << 31) - 1 // leaves bit 0 for the wait flag
)

// Recursive is a mutex that the same owner may lock more than once, per
// Go has no built-in notion of "the current thread" to key
// recursion on, so the owner is an explicit token the caller supplies —
// typically the address of the calling worker's task or goroutine-local
// marker — matching this runtime's general answer to thread-local state
// (explicit threading rather than hidden lookup).
type Recursive struct {
	state atomic.Uint32 // [count << 1 | MayHaveWaiters]
	owner atomic.Uintptr
}

func (m *Recursive) addr() unsafe.Pointer { return unsafe.Pointer(&m.state) }

func countOf(state uint32) uint32 { return state >> recursiveCountShift }

// Lock acquires the mutex for owner, incrementing the recursion count if
// owner already holds it.
func (m *Recursive) Lock(owner unsafe.Pointer) {
	self := uintptr(owner)
	if self != 0 && m.owner.Load() == self {
		if countOf(m.state.Load()) >= recursiveMaxCount {
			panic("olomutex: Recursive lock-count overflow")
		}
		m.state.Add(1 << recursiveCountShift)
		return
	}

	intrusiveLock(&m.state, intrusiveParams{mayHaveWaitFlag: recursiveMayHaveWaitFlag, spinLimit: 40}, m.addr(),
		func(old uint32) (uint32, bool) {
			if countOf(old) != 0 {
				return 0, false
			}
			return (1 << recursiveCountShift) | (old & recursiveMayHaveWaitFlag), true
		})
	m.owner.Store(self)
}

// Unlock releases one level of recursion for owner; the mutex is only
// actually released, and a waiter (if any) woken, once the count hits zero.
// Calling Unlock for an owner that does not hold the lock is a programming
// error.
func (m *Recursive) Unlock(owner unsafe.Pointer) {
	self := uintptr(owner)
	if m.owner.Load() != self {
		panic(fmt.Sprintf("olomutex: Unlock called by non-owner %#x", self))
	}
	for {
		old := m.state.Load()
		c := countOf(old)
		if c == 0 {
			panic("olomutex: Unlock called on unlocked Recursive mutex")
		}
		if c > 1 {
			if m.state.CompareAndSwap(old, old-(1<<recursiveCountShift)) {
				return
			}
			continue
		}
		break
	}
	m.owner.Store(0)
	intrusiveUnlock(&m.state, intrusiveParams{mayHaveWaitFlag: recursiveMayHaveWaitFlag}, m.addr(),
		func(old uint32) uint32 { return old &^ (^uint32(0) << recursiveCountShift) })
}

// IsLocked is a racy snapshot of whether the mutex is currently held.
func (m *Recursive) IsLocked() bool {
	return countOf(m.state.Load()) != 0
}
