package scheduler

import (
	"github.com/olocore/concore/platform"
	"github.com/olocore/concore/queue"
	"github.com/olocore/concore/task"
	"github.com/olocore/concore/tlsregistry"
	"github.com/olocore/concore/waitqueue"
)

// foregroundPriorities is the set a foreground worker polls its own local
// queue and the global overflow queues for; it never touches background
// priorities: foreground workers skip background priorities entirely.
var foregroundPriorities = []task.Priority{task.PriorityHigh, task.PriorityNormal}

// worker is one pooled execution context: a goroutine (or whatever
// platform.Thread backs it) running WorkerLoop, with its own registered
// local queue set and thread-local bookkeeping record.
type worker struct {
	sched  *Scheduler
	kind   tlsregistry.Kind
	record *tlsregistry.Record
	queues *queue.WorkerQueues
	regIdx int
	thread platform.Thread
}

func (w *worker) waitQueue() *waitqueue.WaitQueue {
	if w.kind == tlsregistry.KindBackground {
		return w.sched.bgWait
	}
	return w.sched.fgWait
}

// includeBackground reports whether this worker's own queues and steal
// probes span background priorities in addition to foreground ones —
// true only for background workers, so a foreground worker can never pick
// up background-priority work.
func (w *worker) includeBackground() bool {
	return w.kind == tlsregistry.KindBackground
}

func (w *worker) priorities() []task.Priority {
	if w.includeBackground() {
		return allPriorities
	}
	return foregroundPriorities
}

// run is a worker's main loop: poll local
// queue, then global overflow, then steal from peers; if nothing is found,
// park via the PrepareWait -> rescan -> CommitWait protocol. Any
// continuation returned by a task's runnable is executed inline
// ("symmetric transfer") instead of going back through the queues.
func (w *worker) run() {
	defer w.sched.wg.Done()
	defer w.sched.activeWorkers.Add(-1)
	// Deregistration from the queue registry is deferred to StopWorkers
	// (deregistration is deferred to shutdown), not done
	// here, so a worker's local queue stays stealable right up until the
	// whole pool is torn down.
	defer w.record.Close()
	defer w.sched.settings.logger.Info("scheduler: worker stopped", "kind", kindName(w.kind))

	wq := w.waitQueue()
	for {
		if w.stopping() {
			return
		}

		if w.tryRunOne() {
			continue
		}

		wq.PrepareWait()
		if w.tryRunOne() {
			wq.CancelWait()
			continue
		}
		if w.stopping() {
			wq.CancelWait()
			return
		}
		wq.CommitWait()
	}
}

func (w *worker) stopping() bool {
	select {
	case <-w.sched.stopCh:
		return true
	default:
		return false
	}
}

// tryRunOne polls every work source once, in priority order, and runs the
// first task found, including any chain of symmetric-transfer
// continuations it returns. It reports whether it found (and ran) work.
func (w *worker) tryRunOne() bool {
	t, ok := w.poll()
	if !ok {
		return false
	}
	w.execute(t)
	return true
}

// poll implements one pass of "local, then global, then steal": own
// local queue first (owner-LIFO, best cache locality), then
// the global overflow queues for the same priority span, then a randomized
// steal attempt across every other registered worker's local queues.
func (w *worker) poll() (*task.Task, bool) {
	prios := w.priorities()
	for _, p := range prios {
		if t, ok := w.queues.For(p).Get(); ok {
			return t, true
		}
	}
	for _, p := range prios {
		if t, ok := w.sched.registry.Overflow(p).Pop(); ok {
			return t, true
		}
	}
	return w.sched.registry.StealItem(w.regIdx, w.includeBackground())
}

// execute runs t, and any continuation it returns, on the calling
// goroutine without ever re-entering the queues — the scheduler's
// implementation of "symmetric transfer".
func (w *worker) execute(t *task.Task) {
	for t != nil {
		prev := w.record.SetActiveTask(t)
		cont, _ := t.TryExecuteTask()
		w.record.SetActiveTask(prev)
		t = cont
	}
}
