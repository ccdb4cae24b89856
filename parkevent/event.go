// Package parkevent implements a manual-reset event: a single-bit,
// futex-backed park/wake primitive. It is the bottom of the runtime's
// blocking stack — the parking lot's per-waiter node, the word mutex, and
// the waiting queue's per-worker wait node all ultimately block here.
package parkevent

import (
	"time"

	"github.com/olocore/concore/internal/futex"
)

const (
	stateWaiting  uint32 = 0
	stateSignaled uint32 = 1
)

// Event is a one-shot-per-reset boolean park/wake primitive. Notify before
// any Wait is remembered: a waiter that arrives after Notify observes the
// signaled state immediately and never blocks.
type Event struct {
	state uint32
}

// New returns an Event in the un-signaled state.
func New() *Event { return &Event{} }

// Reset clears the signaled state.
func (e *Event) Reset() {
	atomicStore(&e.state, stateWaiting)
}

// Notify transitions the event to signaled and wakes every blocked waiter.
func (e *Event) Notify() {
	if atomicSwap(&e.state, stateSignaled) != stateSignaled {
		futex.Wake(&e.state, maxWaiters)
	}
}

// Poll reports whether the event is currently signaled, without blocking.
func (e *Event) Poll() bool {
	return atomicLoad(&e.state) == stateSignaled
}

// Wait blocks until the event is signaled.
func (e *Event) Wait() {
	e.wait(0)
}

// WaitFor blocks until the event is signaled or d elapses, reporting which.
func (e *Event) WaitFor(d time.Duration) bool {
	if d <= 0 {
		return e.Poll()
	}
	return e.wait(d)
}

// WaitUntil blocks until the event is signaled or the deadline passes.
// A zero deadline is treated as "no deadline" (infinite wait), matching the
// the "infinity deadline bypasses timeout arithmetic" edge case.
func (e *Event) WaitUntil(deadline time.Time) bool {
	if deadline.IsZero() {
		e.Wait()
		return true
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return e.Poll()
	}
	return e.wait(remaining)
}

// maxWaiters bounds the futex wake count; there is no realistic scenario
// with more concurrent waiters on one event than this, and the kernel
// treats an over-large count as "wake everyone" anyway.
const maxWaiters = 1 << 30

func (e *Event) wait(timeout time.Duration) bool {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if atomicLoad(&e.state) == stateSignaled {
			return true
		}
		remaining := timeout
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return atomicLoad(&e.state) == stateSignaled
			}
		}
		futex.Wait(&e.state, stateWaiting, remaining)
		if !deadline.IsZero() && time.Now().After(deadline) {
			return atomicLoad(&e.state) == stateSignaled
		}
	}
}
