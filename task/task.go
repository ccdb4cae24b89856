// Package task implements the low-level task primitive: a single packed
// atomic state word driving a small lifecycle state machine, with support
// for cooperative cancellation, on-thread expediting, and continuation
// chaining ("symmetric transfer" — a task's runnable can return the next
// task to run, which the caller executes inline instead of re-entering a
// queue).
//
// The state word here is a plain atomic.Uint64 of flag bits. The original
// packs a debug-name pointer into the same word as the flags; this
// implementation keeps the name in its own (write-once) field instead,
// since packing a live pointer into an integer would hide it from the
// garbage collector.
package task

import "sync/atomic"

// Priority selects which of the scheduler's queues a task is launched
// into. PriorityInherit means "use the priority of the currently active
// task"; it is resolved once, eagerly, when the task is constructed (New
// or Init), against whatever parent task the caller passes in — not
// lazily at launch time, since the goroutine that constructs a task and
// the one that later launches it need not be the same, and need not have
// the same active task.
type Priority int

const (
	PriorityInherit Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityBackgroundHigh
	PriorityBackgroundNormal
	PriorityBackgroundLow
)

// IsBackground reports whether p is one of the three background
// priorities.
func (p Priority) IsBackground() bool {
	return p == PriorityBackgroundHigh || p == PriorityBackgroundNormal || p == PriorityBackgroundLow
}

// ResolvePriority turns PriorityInherit into a concrete priority, using
// parent's priority when given one, or PriorityNormal when parent is nil.
func ResolvePriority(p Priority, parent *Task) Priority {
	if p != PriorityInherit {
		return p
	}
	if parent != nil {
		return parent.Priority()
	}
	return PriorityNormal
}

// Runnable is a task body. notCanceled is false when the task is being run
// purely to observe a cancellation (see TryCancel). It may return a
// continuation task for the caller to run next, in place of returning to
// the scheduler's queues.
type Runnable func(notCanceled bool) *Task

const (
	flagScheduled  uint64 = 1 << 0
	flagCanceled   uint64 = 1 << 1
	flagRunning    uint64 = 1 << 2
	flagExpediting uint64 = 1 << 3
	flagExpedited  uint64 = 1 << 4
	flagCompleted  uint64 = 1 << 5
)

// CancelFlags controls TryCancel's behavior.
type CancelFlags uint8

const (
	// CancelTryLaunchOnSuccess, together with CancelPrelaunchCancellation,
	// calls TryLaunch on a never-scheduled task before it is forced through
	// execution. On its own it has no effect.
	CancelTryLaunchOnSuccess CancelFlags = 1 << 0
	// CancelPrelaunchCancellation forces execution of a cancelled task that
	// was never launched, guaranteeing its continuation still fires exactly
	// once.
	CancelPrelaunchCancellation CancelFlags = 1 << 1
	// DefaultCancelFlags matches the task's own default TryCancel() call.
	DefaultCancelFlags = CancelTryLaunchOnSuccess | CancelPrelaunchCancellation
)

// Task is a single schedulable unit of work.
//
// A Task must not be copied after Init.
type Task struct {
	state     atomic.Uint64
	debugName string
	priority  Priority
	runnable  Runnable
}

// New constructs and initializes a task. priority may be PriorityInherit,
// in which case it is resolved immediately against parent (or against
// PriorityNormal if parent is nil); parent is typically the constructing
// goroutine's own currently active task.
func New(debugName string, priority Priority, parent *Task, runnable Runnable) *Task {
	t := &Task{}
	t.Init(debugName, priority, parent, runnable)
	return t
}

// Init re-initializes a task in place, for callers that embed Task inside
// a larger struct and want to avoid a separate heap allocation. It panics
// if t was already initialized and has not yet completed, since
// reinitializing a task that's scheduled, running, or otherwise in flight
// would silently corrupt whatever holds a reference to it.
//
// priority may be PriorityInherit; see New.
func (t *Task) Init(debugName string, priority Priority, parent *Task, runnable Runnable) {
	if old := t.state.Load(); old != 0 && old&flagCompleted == 0 {
		panic("task: Init called on a task that has not completed")
	}
	t.state.Store(0)
	t.debugName = debugName
	t.priority = ResolvePriority(priority, parent)
	t.runnable = runnable
}

// DebugName returns the task's diagnostic name.
func (t *Task) DebugName() string { return t.debugName }

// Priority returns the task's resolved priority. It is never
// PriorityInherit: New and Init always resolve it eagerly.
func (t *Task) Priority() Priority { return t.priority }

// TryPrepareLaunch atomically marks the task Scheduled, returning true the
// first (and only the first) time it is called for this task.
func (t *Task) TryPrepareLaunch() bool {
	for {
		old := t.state.Load()
		if old&flagScheduled != 0 {
			return false
		}
		if t.state.CompareAndSwap(old, old|flagScheduled) {
			return true
		}
	}
}

// TryLaunch marks the task ready for a scheduler to pick up. Callers that
// drive their own queues (e.g. the scheduler package) call this before
// enqueueing; it's equivalent to TryPrepareLaunch.
func (t *Task) TryLaunch() bool {
	return t.TryPrepareLaunch()
}

// TryExecuteTask runs the task body if it hasn't already run, returning the
// continuation task (if any) and whether execution actually happened.
func (t *Task) TryExecuteTask() (continuation *Task, ran bool) {
	t.TryPrepareLaunch() // idempotent: covers tasks run without ever being launched

	var observed uint64
	for {
		old := t.state.Load()
		if old&flagRunning != 0 || old&flagCompleted != 0 {
			return nil, false
		}
		if t.state.CompareAndSwap(old, old|flagRunning) {
			observed = old
			break
		}
	}

	notCanceled := observed&flagCanceled == 0
	cont := t.runnable(notCanceled)
	t.markCompleted(0)
	return cont, true
}

// TryCancel atomically marks the task Canceled. If the task was never
// launched and flags includes CancelPrelaunchCancellation, it is forced
// through execution (with notCanceled=false) so its continuation still
// fires exactly once; CancelTryLaunchOnSuccess controls whether TryLaunch
// is called first in that case.
func (t *Task) TryCancel(flags CancelFlags) bool {
	var old uint64
	for {
		old = t.state.Load()
		if old&flagCanceled != 0 {
			return false
		}
		if t.state.CompareAndSwap(old, old|flagCanceled) {
			break
		}
	}

	neverLaunched := old&flagScheduled == 0
	if neverLaunched && flags&CancelPrelaunchCancellation != 0 {
		if flags&CancelTryLaunchOnSuccess != 0 {
			t.TryLaunch()
		}
		t.TryExecuteTask()
	}
	return true
}

// TryRevive clears a pending cancellation, succeeding only if the task has
// not yet started running.
func (t *Task) TryRevive() bool {
	for {
		old := t.state.Load()
		if old&flagRunning != 0 || old&flagCompleted != 0 {
			return false
		}
		if old&flagCanceled == 0 {
			return false
		}
		if t.state.CompareAndSwap(old, old&^flagCanceled) {
			return true
		}
	}
}

// TryExpedite runs the task body on the calling thread, succeeding only if
// the task is Scheduled but not yet Running. The original tracks a
// separate Expedited-but-not-yet-Completed state, waiting for the
// scheduler's own reference to the task to drop; that distinction exists
// to manage manual lifetime/refcounting and has no equivalent need in a
// garbage-collected runtime, so here TryExpedite completes the task
// directly.
func (t *Task) TryExpedite() bool {
	var observed uint64
	for {
		old := t.state.Load()
		if old&flagScheduled == 0 || old&flagRunning != 0 || old&flagCompleted != 0 {
			return false
		}
		if t.state.CompareAndSwap(old, old|flagExpediting|flagRunning) {
			observed = old
			break
		}
	}

	notCanceled := observed&flagCanceled == 0
	t.runnable(notCanceled)
	t.markCompleted(flagExpedited)
	return true
}

func (t *Task) markCompleted(extra uint64) {
	for {
		old := t.state.Load()
		if t.state.CompareAndSwap(old, old|flagCompleted|extra) {
			return
		}
	}
}

// IsCompleted reports whether the task has finished running.
func (t *Task) IsCompleted() bool { return t.state.Load()&flagCompleted != 0 }

// WasCancelled reports whether the task was ever cancelled.
func (t *Task) WasCancelled() bool { return t.state.Load()&flagCanceled != 0 }

// WasExpedited reports whether the task completed via TryExpedite.
func (t *Task) WasExpedited() bool { return t.state.Load()&flagExpedited != 0 }

// IsReady reports whether the task has neither been launched, cancelled,
// nor completed.
func (t *Task) IsReady() bool {
	s := t.state.Load()
	return s&(flagScheduled|flagCanceled|flagCompleted) == 0
}
