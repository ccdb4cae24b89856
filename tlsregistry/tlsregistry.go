// Package tlsregistry replaces the scheduler's thread-local bookkeeping
// with an explicit, struct-threaded equivalent: Go has no
// supported way to attach arbitrary mutable state to "the current
// goroutine" the way native thread-local storage does, so each worker
// creates its own Record once and passes it explicitly through every call
// that needs it (launching a task, running a task body, deciding whether
// to park), rather than looking it up implicitly.
//
// What survives from the original almost unchanged is the global registry
// of live records: a single mutex-protected intrusive list, existing
// solely so the scheduler can answer "does any worker currently have a
// pending wake-up it hasn't observed yet" during shutdown — the crash-safe
// allocator and lock-free MPMC insert/delete queue fallback the original
// uses to keep that list updatable even when the mutex can't be acquired
// has no analogue here, since a goroutine can always just take the mutex.
package tlsregistry

import (
	"github.com/olocore/concore/olomutex"
	"github.com/olocore/concore/task"
	"sync/atomic"
)

// Kind identifies what role a worker plays, for policy decisions that
// depend on it (e.g. foreground workers never steal background work).
type Kind int

const (
	KindNone Kind = iota
	KindForeground
	KindBackground
	KindGameThread
)

// Record is one worker's thread-local bookkeeping, created once per worker
// (or, for the game thread, once for the whole process) and threaded
// explicitly through calls that need it.
type Record struct {
	prev, next *Record

	Kind Kind

	// Queues is an opaque handle to the worker's local queue set, stashed
	// here by the scheduler so launch-time routing decisions (which need
	// to know "does the calling worker have its own local queue, and for
	// which priorities") can recover it from just a Record. The scheduler
	// package is the only reader; its concrete type is *queue.WorkerQueues.
	Queues any

	activeTask  atomic.Pointer[task.Task]
	pendingWake atomic.Bool
}

var (
	registryMu olomutex.Plain
	head       *Record
)

// NewRecord creates a Record for a worker of the given kind and links it
// into the global registry.
func NewRecord(kind Kind) *Record {
	r := &Record{Kind: kind}
	registryMu.Lock()
	r.next = head
	if head != nil {
		head.prev = r
	}
	head = r
	registryMu.Unlock()
	return r
}

// Close unlinks r from the global registry. Workers call this on exit.
func (r *Record) Close() {
	registryMu.Lock()
	if r.prev != nil {
		r.prev.next = r.next
	} else {
		head = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	}
	r.prev, r.next = nil, nil
	registryMu.Unlock()
}

// SetActiveTask records t as the task currently executing on this worker
// (or nil, when none is), so a task constructed from within a running
// task's body can pass r.ActiveTask() as its parent and inherit its
// priority. It returns the previously active task, for callers that want
// to restore it afterwards.
func (r *Record) SetActiveTask(t *task.Task) *task.Task {
	return r.activeTask.Swap(t)
}

// ActiveTask returns the task this worker is currently executing, the
// replacement for the original's thread-local get_active_task().
func (r *Record) ActiveTask() *task.Task {
	return r.activeTask.Load()
}

// SetPendingWake marks (or clears) that this worker is in the middle of a
// launch that still needs to wake a worker — read by HasPendingWakeUp
// during scheduler shutdown to detect an in-flight launch on an external
// thread.
func (r *Record) SetPendingWake(v bool) {
	r.pendingWake.Store(v)
}

// HasPendingWakeUp reports whether any registered worker currently has a
// pending wake-up flag set.
func HasPendingWakeUp() bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	for r := head; r != nil; r = r.next {
		if r.pendingWake.Load() {
			return true
		}
	}
	return false
}
