// Package wordmutex implements a small, non-recursive, non-fair mutex whose
// wait queue is intrusive — nodes live in the caller's stack frame (as far
// as Go's escape analysis allows; they may be heap-promoted, but there is
// still no separate queue allocation beyond the node itself), spliced into
// a tail-to-head linked list anchored on the mutex. It has no dependency on
// a parking lot or any other global data structure, which is exactly why
// the parking lot's own bucket locks are built on it.
//
// This is conceptually a single pointer-sized atomic packing a tail
// pointer and two flag bits. This implementation keeps the tail pointer in
// its own atomic.Pointer field instead of packing it into an integer
// alongside the flags: packing a live pointer into a plain integer would
// hide it from the garbage collector, which is unacceptable in Go. The
// flags live in a separate atomic.Uint32. This costs one extra word per
// mutex and nothing else — the algorithm (fast-path CAS, spin,
// splice-as-tail, tail-to-head unlock walk) is unchanged.
package wordmutex

import (
	"runtime"
	"sync/atomic"

	"github.com/olocore/concore/parkevent"
)

const (
	isLockedFlag      uint32 = 1 << 0
	isQueueLockedFlag uint32 = 1 << 1
)

// queueNode is spliced onto the mutex's wait queue as the new tail when a
// waiter can't acquire the lock on the fast path.
type queueNode struct {
	prev *queueNode
	next *queueNode // filled in lazily, tail-to-head, by Unlock
	ev   *parkevent.Event
}

// Mutex is a small, non-recursive lock. The zero value is unlocked.
type Mutex struct {
	flags atomic.Uint32
	tail  atomic.Pointer[queueNode]
}

// Lock acquires the mutex, blocking the caller if necessary.
func (m *Mutex) Lock() {
	if m.flags.CompareAndSwap(0, isLockedFlag) {
		return
	}
	m.lockSlow()
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool {
	return m.flags.CompareAndSwap(0, isLockedFlag)
}

// IsLocked reports whether the mutex is currently held. It's a snapshot,
// racy by construction against concurrent Lock/Unlock.
func (m *Mutex) IsLocked() bool {
	return m.flags.Load()&isLockedFlag != 0
}

func (m *Mutex) lockSlow() {
	// Spin a short while before paying for a queue node: most critical
	// sections are short, and the CAS above may still win in the meantime.
	for i := 0; i < 40 && m.tail.Load() == nil; i++ {
		f := m.flags.Load()
		if f&isLockedFlag == 0 && m.flags.CompareAndSwap(f, f|isLockedFlag) {
			return
		}
		runtime.Gosched()
	}

	node := &queueNode{ev: parkevent.New()}
	for {
		f := m.flags.Load()
		if f&isLockedFlag == 0 && m.flags.CompareAndSwap(f, f|isLockedFlag) {
			return
		}
		old := m.tail.Load()
		node.prev = old // nil if this node becomes the head
		if !m.tail.CompareAndSwap(old, node) {
			continue
		}
		node.ev.Wait()
		// Unlock cleared the lock flag before waking us; retry the
		// acquire, re-queueing with a fresh node if another Lock won.
		node = &queueNode{ev: parkevent.New()}
	}
}

// Unlock releases the mutex, waking the head of the wait queue if any.
func (m *Mutex) Unlock() {
	for {
		f := m.flags.Load()
		if m.flags.CompareAndSwap(f, f&^isLockedFlag) {
			break
		}
	}
	if m.tail.Load() == nil {
		return
	}
	for {
		f := m.flags.Load()
		if f&isQueueLockedFlag != 0 {
			return // someone else is already draining the queue
		}
		if m.tail.Load() == nil {
			return
		}
		if m.flags.CompareAndSwap(f, f|isQueueLockedFlag) {
			break
		}
	}
	defer func() {
		for {
			f := m.flags.Load()
			if m.flags.CompareAndSwap(f, f&^isQueueLockedFlag) {
				return
			}
		}
	}()

	tail := m.tail.Load()
	if tail == nil {
		return
	}
	node := tail
	for node.prev != nil {
		node.prev.next = node
		node = node.prev
	}
	head := node
	if head.next == nil {
		// head is also the tail: pop it only if nothing was appended since
		// we loaded it.
		if !m.tail.CompareAndSwap(tail, nil) {
			// a new tail was appended concurrently; fill in the next links
			// from the new tail down to the old one, so head.next is set.
			newTail := m.tail.Load()
			n := newTail
			for n != nil && n != tail {
				n.prev.next = n
				n = n.prev
			}
		}
	}
	if head.next != nil {
		head.next.prev = nil
	}
	head.ev.Notify()
}
