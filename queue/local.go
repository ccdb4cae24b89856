// Package queue implements the scheduler's per-worker local queues and the
// registry used to steal work across them, plus a per-priority global
// overflow queue for tasks that don't fit (or don't belong) in any local
// queue.
package queue

import (
	"sync/atomic"

	"github.com/olocore/concore/task"
)

// Capacity is the fixed size of a Local queue. A push that would overflow
// it falls back to the global overflow queue for that priority.
const Capacity = 256

// takenMarker is a sentinel pointer identifying a slot that a thief has
// claimed but not yet cleared. It is never itself a schedulable task, only
// ever compared by identity.
var takenMarker = &task.Task{}

// Local is a single-owner, multi-thief work-stealing deque. The owner
// pushes and pops at head (LIFO, for cache locality on the common
// produce-then-immediately-consume pattern); any other goroutine may steal
// from tail (FIFO, so stolen work executes in roughly submission order).
//
// Only the owning goroutine may call Put or Get. Steal may be called by
// any goroutine, concurrently with the owner and with other thieves.
type Local struct {
	slots [Capacity]atomic.Pointer[task.Task]
	head  uint64 // owner-only, no synchronization needed: index of the next free slot a Put will write
	tail  atomic.Uint64
}

// Put pushes t into the next free slot, returning false if the queue is
// full (the caller should fall back to the global overflow queue). head is
// the zero-value-safe index of the slot Put writes next, so the very first
// Put on a zero-value Local lands at slot 0, aligned with tail's zero-value
// starting point for Steal.
func (q *Local) Put(t *task.Task) bool {
	if !q.slots[q.head].CompareAndSwap(nil, t) {
		return false
	}
	q.head = (q.head + 1) % Capacity
	return true
}

// Get pops the most recently pushed task, returning false if the queue is
// empty or a concurrent Steal won the race for that slot.
func (q *Local) Get() (*task.Task, bool) {
	prev := (q.head - 1 + Capacity) % Capacity
	cur := q.slots[prev].Load()
	if cur == nil || cur == takenMarker {
		return nil, false
	}
	if !q.slots[prev].CompareAndSwap(cur, nil) {
		return nil, false
	}
	q.head = prev
	return cur, true
}

// Steal removes and returns the task at tail, if any. It's safe to call
// concurrently from any number of goroutines and concurrently with the
// owner's Put/Get.
func (q *Local) Steal() (*task.Task, bool) {
	for {
		tail := q.tail.Load()
		v := q.slots[tail].Load()
		if v == nil {
			// Either genuinely empty, or the owner's Put hasn't published
			// yet; re-read tail to protect against missing an enqueue that
			// lands concurrently, per the local-queue steal protocol.
			if q.tail.Load() == tail {
				return nil, false
			}
			continue
		}
		if v == takenMarker {
			return nil, false
		}
		if !q.slots[tail].CompareAndSwap(v, takenMarker) {
			continue
		}
		q.tail.CompareAndSwap(tail, (tail+1)%Capacity)
		q.slots[tail].Store(nil)
		return v, true
	}
}

// Empty is a cheap, racy heuristic for "probably nothing to Get right now"
// — it only inspects the slot Get would read, so a queue with older items
// still pending but a concurrently-stolen head slot can read as empty.
// Callers that need a precise answer should just call Get and check its
// bool.
func (q *Local) Empty() bool {
	prev := (q.head - 1 + Capacity) % Capacity
	return q.slots[prev].Load() == nil
}
