package olomutex

import (
	"sync/atomic"
	"unsafe"
)

const (
	plainIsLockedFlag    uint32 = 1 << 0
	plainMayHaveWaitFlag uint32 = 1 << 1
)

// Plain is a non-recursive, non-fair mutex: an instantiation of the
// intrusive-mutex template with a private state word.
type Plain struct {
	state atomic.Uint32
}

// NewPlainLocked constructs a Plain mutex that starts out locked, for
// callers that would otherwise immediately follow construction with a
// redundant Lock call.
func NewPlainLocked() *Plain {
	var m Plain
	m.state.Store(plainIsLockedFlag)
	return &m
}

func (m *Plain) addr() unsafe.Pointer { return unsafe.Pointer(&m.state) }

// Lock acquires the mutex, blocking the caller if necessary.
func (m *Plain) Lock() {
	if m.state.CompareAndSwap(0, plainIsLockedFlag) {
		return
	}
	intrusiveLock(&m.state, intrusiveParams{mayHaveWaitFlag: plainMayHaveWaitFlag, spinLimit: 40}, m.addr(),
		func(old uint32) (uint32, bool) {
			if old&plainIsLockedFlag != 0 {
				return 0, false
			}
			return old | plainIsLockedFlag, true
		})
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Plain) TryLock() bool {
	old := m.state.Load()
	if old&plainIsLockedFlag != 0 {
		return false
	}
	return m.state.CompareAndSwap(old, old|plainIsLockedFlag)
}

// Unlock releases the mutex.
func (m *Plain) Unlock() {
	intrusiveUnlock(&m.state, intrusiveParams{mayHaveWaitFlag: plainMayHaveWaitFlag}, m.addr(),
		func(old uint32) uint32 { return old &^ plainIsLockedFlag })
}

// IsLocked is a racy snapshot of whether the mutex is currently held.
func (m *Plain) IsLocked() bool {
	return m.state.Load()&plainIsLockedFlag != 0
}
