package olomutex

import "sync/atomic"

// SharedRecursive adds recursion on top of Shared: exclusive
// locking follows the same owner-token recursion pattern as Recursive, and
// shared locking can bypass writer preference when the calling scope
// already holds the mutex shared — otherwise a thread that takes a shared
// lock twice could deadlock behind its own pending-exclusive-waiter check.
//
// The original tracks held shared-recursive mutexes on a thread-local
// stack. This runtime threads that bookkeeping explicitly instead: a
// RecursionScope is the caller's stand-in for "the current thread", created
// once per logical worker and passed to every shared (not exclusive) call.
type SharedRecursive struct {
	Shared
	exclOwner atomic.Uintptr
	exclCount atomic.Uint32
}

// RecursionScope tracks, for one logical worker, which SharedRecursive
// mutexes it currently holds shared and at what depth.
type RecursionScope struct {
	held map[*SharedRecursive]int
}

// NewRecursionScope creates an empty recursion scope.
func NewRecursionScope() *RecursionScope {
	return &RecursionScope{held: make(map[*SharedRecursive]int)}
}

// LockShared acquires shared access to m, recursing if this scope already
// holds it — bypassing the writer-preference check in that case, since
// otherwise a pending exclusive waiter would deadlock a thread that takes
// the same shared lock twice.
func (s *RecursionScope) LockShared(m *SharedRecursive) {
	if s.held[m] > 0 {
		m.state.Add(1 << sharedCountShift)
		s.held[m]++
		return
	}
	m.LockShared()
	s.held[m] = 1
}

// UnlockShared releases one level of shared recursion for m.
func (s *RecursionScope) UnlockShared(m *SharedRecursive) {
	depth, ok := s.held[m]
	if !ok {
		panic("olomutex: UnlockShared called without a matching LockShared in this scope")
	}
	if depth > 1 {
		s.held[m] = depth - 1
		m.UnlockShared()
		return
	}
	delete(s.held, m)
	m.UnlockShared()
}

// Lock acquires exclusive access for owner, recursing if owner already
// holds it, per the recursive-mutex pattern.
func (m *SharedRecursive) Lock(owner uintptr) {
	if owner != 0 && m.exclOwner.Load() == owner {
		m.exclCount.Add(1)
		return
	}
	m.Shared.Lock()
	m.exclOwner.Store(owner)
	m.exclCount.Store(1)
}

// Unlock releases one level of exclusive recursion for owner.
func (m *SharedRecursive) Unlock(owner uintptr) {
	if m.exclOwner.Load() != owner {
		panic("olomutex: SharedRecursive.Unlock called by non-owner")
	}
	if m.exclCount.Add(^uint32(0)) > 0 {
		return
	}
	m.exclOwner.Store(0)
	m.Shared.Unlock()
}
