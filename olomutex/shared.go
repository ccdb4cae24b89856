package olomutex

import (
	"sync/atomic"
	"unsafe"

	"github.com/olocore/concore/parkinglot"
)

const (
	sharedIsLockedFlag     uint32 = 1 << 0
	sharedMayHaveExclFlag  uint32 = 1 << 1
	sharedMayHaveSharedFlag uint32 = 1 << 2
	sharedCountShift               = 3
)

// Shared is a writer-preference reader-writer mutex: state is a
// single word packing the exclusive-lock bit, two "may have waiters" bits
// (one per wait class), and a shared-lock count. Exclusive and shared
// waiters park on two different addresses — state itself, and a second,
// otherwise-unused field — so WakeOne on the exclusive class never
// accidentally dequeues a shared waiter or vice versa.
type Shared struct {
	state      atomic.Uint32
	sharedAddr uint32 // never read or written; exists only as a distinct parking address
}

func (m *Shared) exclAddr() unsafe.Pointer   { return unsafe.Pointer(&m.state) }
func (m *Shared) sharedAddrP() unsafe.Pointer { return unsafe.Pointer(&m.sharedAddr) }

func sharedCountOf(state uint32) uint32 { return state >> sharedCountShift }

// Lock acquires exclusive access, blocking while the mutex is held
// exclusively or by any reader.
func (m *Shared) Lock() {
	intrusiveLock(&m.state, intrusiveParams{mayHaveWaitFlag: sharedMayHaveExclFlag, spinLimit: 40}, m.exclAddr(),
		func(old uint32) (uint32, bool) {
			if old&sharedIsLockedFlag != 0 || sharedCountOf(old) != 0 {
				return 0, false
			}
			return old | sharedIsLockedFlag, true
		})
}

// TryLock attempts to acquire exclusive access without blocking.
func (m *Shared) TryLock() bool {
	old := m.state.Load()
	if old&sharedIsLockedFlag != 0 || sharedCountOf(old) != 0 {
		return false
	}
	return m.state.CompareAndSwap(old, old|sharedIsLockedFlag)
}

// Unlock releases exclusive access.
func (m *Shared) Unlock() {
	var old uint32
	for {
		old = m.state.Load()
		if m.state.CompareAndSwap(old, old&^sharedIsLockedFlag) {
			break
		}
	}
	m.wakeWaitingThreads(old)
}

// LockShared acquires shared (read) access. Writer preference means a
// pending exclusive waiter blocks new readers from jumping the queue.
func (m *Shared) LockShared() {
	intrusiveLock(&m.state, intrusiveParams{mayHaveWaitFlag: sharedMayHaveSharedFlag, spinLimit: 40}, m.sharedAddrP(),
		func(old uint32) (uint32, bool) {
			if old&sharedIsLockedFlag != 0 || old&sharedMayHaveExclFlag != 0 {
				return 0, false
			}
			return old + (1 << sharedCountShift), true
		})
}

// TryLockShared attempts to acquire shared access without blocking.
func (m *Shared) TryLockShared() bool {
	old := m.state.Load()
	if old&sharedIsLockedFlag != 0 || old&sharedMayHaveExclFlag != 0 {
		return false
	}
	return m.state.CompareAndSwap(old, old+(1<<sharedCountShift))
}

// UnlockShared releases one shared hold.
func (m *Shared) UnlockShared() {
	for {
		old := m.state.Load()
		next := old - (1 << sharedCountShift)
		if m.state.CompareAndSwap(old, next) {
			if sharedCountOf(next) == 0 && next&sharedMayHaveExclFlag != 0 {
				m.wakeExclusive()
			}
			return
		}
	}
}

// wakeWaitingThreads implements the wake priority order: wake one
// exclusive waiter first (clearing the flag if none was actually parked),
// then wake every shared waiter.
func (m *Shared) wakeWaitingThreads(old uint32) {
	if old&sharedMayHaveExclFlag != 0 {
		m.wakeExclusive()
	}
	if old&sharedMayHaveSharedFlag != 0 {
		m.wakeShared()
	}
}

func (m *Shared) wakeExclusive() {
	woken := parkinglot.WakeOne(m.exclAddr(), nil).DidWake
	if !woken {
		for {
			old := m.state.Load()
			if old&sharedMayHaveExclFlag == 0 {
				return
			}
			if m.state.CompareAndSwap(old, old&^sharedMayHaveExclFlag) {
				return
			}
		}
	}
}

func (m *Shared) wakeShared() {
	parkinglot.WakeAll(m.sharedAddrP())
	for {
		old := m.state.Load()
		if old&sharedMayHaveSharedFlag == 0 {
			return
		}
		if m.state.CompareAndSwap(old, old&^sharedMayHaveSharedFlag) {
			return
		}
	}
}

// IsLocked is a racy snapshot of whether the mutex is held exclusively.
func (m *Shared) IsLocked() bool {
	return m.state.Load()&sharedIsLockedFlag != 0
}

// SharedCount is a racy snapshot of the current number of shared holders.
func (m *Shared) SharedCount() int {
	return int(sharedCountOf(m.state.Load()))
}
