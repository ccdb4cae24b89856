package queue

import (
	"github.com/olocore/concore/olomutex"
	"github.com/olocore/concore/task"
)

// Overflow is the global, per-priority fallback queue for tasks that
// don't fit a local queue (or, for game-thread launches, never use one at
// all). It's guarded by the runtime's own Plain mutex rather than a
// hand-rolled lock-free list or sync.Mutex — dogfooding the mutex family
// this package sits alongside, since a short, rarely-contended critical
// section gets nothing from a lock-free structure but risk.
type Overflow struct {
	mu    olomutex.Plain
	items []*task.Task
}

// Push appends t to the tail of the overflow queue.
func (o *Overflow) Push(t *task.Task) {
	o.mu.Lock()
	o.items = append(o.items, t)
	o.mu.Unlock()
}

// Pop removes and returns the task at the head of the overflow queue.
func (o *Overflow) Pop() (*task.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return nil, false
	}
	t := o.items[0]
	o.items[0] = nil
	o.items = o.items[1:]
	return t, true
}

// Len is a snapshot of the overflow queue's length.
func (o *Overflow) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
