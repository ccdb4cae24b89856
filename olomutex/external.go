package olomutex

import (
	"sync/atomic"
	"unsafe"
)

// External adapts the intrusive-mutex template onto two bits of a
// caller-owned atomic word, for embedding lock state inside an
// existing structure instead of allocating a separate mutex.
type External struct {
	state           *atomic.Uint32
	isLockedFlag    uint32
	mayHaveWaitFlag uint32
	spinLimit       int
}

// NewExternal builds an External mutex over state, using isLockedFlag and
// mayHaveWaitFlag as the two bits it owns within that word. The caller
// retains ownership of state and may use its other bits for anything else.
func NewExternal(state *atomic.Uint32, isLockedFlag, mayHaveWaitFlag uint32) *External {
	return &External{state: state, isLockedFlag: isLockedFlag, mayHaveWaitFlag: mayHaveWaitFlag, spinLimit: 40}
}

func (m *External) addr() unsafe.Pointer { return unsafe.Pointer(m.state) }

// Lock acquires the mutex, blocking the caller if necessary.
func (m *External) Lock() {
	intrusiveLock(m.state, intrusiveParams{mayHaveWaitFlag: m.mayHaveWaitFlag, spinLimit: m.spinLimit}, m.addr(),
		func(old uint32) (uint32, bool) {
			if old&m.isLockedFlag != 0 {
				return 0, false
			}
			return old | m.isLockedFlag, true
		})
}

// TryLock attempts to acquire the mutex without blocking.
func (m *External) TryLock() bool {
	old := m.state.Load()
	if old&m.isLockedFlag != 0 {
		return false
	}
	return m.state.CompareAndSwap(old, old|m.isLockedFlag)
}

// Unlock releases the mutex.
func (m *External) Unlock() {
	intrusiveUnlock(m.state, intrusiveParams{mayHaveWaitFlag: m.mayHaveWaitFlag}, m.addr(),
		func(old uint32) uint32 { return old &^ m.isLockedFlag })
}

// IsLocked is a racy snapshot of whether the mutex is currently held.
func (m *External) IsLocked() bool {
	return m.state.Load()&m.isLockedFlag != 0
}
