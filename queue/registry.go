package queue

import (
	"sync/atomic"
	"time"

	"github.com/olocore/concore/task"
)

// MaxLocalQueues bounds how many workers' local-queue sets the registry can
// track at once.
const MaxLocalQueues = 256

const priorityCount = 5 // High, Normal, BackgroundHigh, BackgroundNormal, BackgroundLow

func priorityIndex(p task.Priority) int {
	idx := int(p) - 1
	if idx < 0 || idx >= priorityCount {
		panic("queue: priority out of range for a local queue (must be a concrete, non-Inherit priority)")
	}
	return idx
}

// WorkerQueues is one worker's full set of local queues, one per priority.
type WorkerQueues struct {
	byPriority [priorityCount]Local
}

// For returns the local queue for priority p.
func (w *WorkerQueues) For(p task.Priority) *Local {
	return &w.byPriority[priorityIndex(p)]
}

// Registry tracks every worker's local queues, for cross-worker stealing,
// plus one global overflow queue per priority.
type Registry struct {
	workers  [MaxLocalQueues]atomic.Pointer[WorkerQueues]
	overflow [priorityCount]Overflow
	rngState atomic.Uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.rngState.Store(uint64(time.Now().UnixNano()) | 1)
	return r
}

// Register installs w in the first free slot, returning its index (used
// later to exclude self from stealing, and to Unregister). It panics if
// the registry is full, which would mean more workers than MaxLocalQueues
// were started.
func (r *Registry) Register(w *WorkerQueues) int {
	for i := range r.workers {
		if r.workers[i].CompareAndSwap(nil, w) {
			return i
		}
	}
	panic("queue: registry full, increase MaxLocalQueues")
}

// Unregister removes the worker at idx.
func (r *Registry) Unregister(idx int) {
	r.workers[idx].Store(nil)
}

// Overflow returns the global overflow queue for priority p.
func (r *Registry) Overflow(p task.Priority) *Overflow {
	return &r.overflow[priorityIndex(p)]
}

// nextRand advances a lock-free xorshift64 generator, used only to pick a
// pseudo-random steal start index — any cheap, well-distributed source
// works here, since the original's "seeded from cycle counter" is solely
// about avoiding every thief starting its probe at the same index.
func (r *Registry) nextRand() uint64 {
	for {
		old := r.rngState.Load()
		x := old
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		if r.rngState.CompareAndSwap(old, x) {
			return x
		}
	}
}

// StealItem probes every registered worker other than selfIdx, in a
// pseudo-random rotation, looking for a stealable task at any priority up
// to the caller's limit. includeBackground should be false for foreground
// workers, which never steal background-priority work.
func (r *Registry) StealItem(selfIdx int, includeBackground bool) (*task.Task, bool) {
	limit := priorityIndex(task.PriorityNormal) + 1
	if includeBackground {
		limit = priorityCount
	}

	start := r.nextRand() % MaxLocalQueues
	for i := 0; i < MaxLocalQueues; i++ {
		idx := int((start + uint64(i)) % MaxLocalQueues)
		if idx == selfIdx {
			continue
		}
		w := r.workers[idx].Load()
		if w == nil {
			continue
		}
		for pi := 0; pi < limit; pi++ {
			if t, ok := w.byPriority[pi].Steal(); ok {
				return t, true
			}
		}
	}
	return nil, false
}
