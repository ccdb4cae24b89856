// Package scheduler implements the work-stealing task scheduler: a pool
// of foreground and background workers, each with its own
// set of per-priority local queues, backed by per-priority global overflow
// queues and two parking points (one per worker class) for idle workers.
package scheduler

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olocore/concore/diag"
	"github.com/olocore/concore/olomutex"
	"github.com/olocore/concore/parkevent"
	"github.com/olocore/concore/parkinglot"
	"github.com/olocore/concore/platform"
	"github.com/olocore/concore/queue"
	"github.com/olocore/concore/task"
	"github.com/olocore/concore/tlsregistry"
	"github.com/olocore/concore/waitqueue"
)

// QueuePreference lets a launch request override the scheduler's default
// queue-routing decision.
type QueuePreference int

const (
	// QueueAuto routes local-unless-background-on-foreground, as described
	// in launchInternal below.
	QueueAuto QueuePreference = iota
	// QueueLocal forces use of the calling worker's own local queue,
	// falling back to the global overflow queue if it's full or the caller
	// isn't a worker.
	QueueLocal
	// QueueGlobal forces use of the global overflow queue.
	QueueGlobal
)

// Scheduler owns a pool of workers and the queues/wait-queues they share.
type Scheduler struct {
	settings settings

	lifecycleMu olomutex.Plain
	running     atomic.Bool
	restarting  atomic.Bool

	registry *queue.Registry
	fgWait   *waitqueue.WaitQueue
	bgWait   *waitqueue.WaitQueue

	workers       []*worker
	activeWorkers atomic.Int32
	baseWorkers   atomic.Int32
	oversubCount  atomic.Int32
	oversubEvent  *parkevent.Event

	stopCh chan struct{}
	wg     sync.WaitGroup

	gameThreadRecord atomic.Pointer[tlsregistry.Record]
}

// New constructs a Scheduler. It does not start any workers; call
// StartWorkers for that.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		settings:     defaultSettings(),
		registry:     queue.NewRegistry(),
		fgWait:       waitqueue.New(),
		bgWait:       waitqueue.New(),
		oversubEvent: parkevent.New(),
	}
	for _, o := range opts {
		o(&s.settings)
	}
	s.settings.oversubLimiter = diag.NewLimiter(s.settings.logger, "scheduler.oversubscription-ceiling", time.Second, 1)
	parkinglot.SetDiagLogger(s.settings.logger)
	return s
}

var (
	instanceOnce sync.Once
	instance     *Scheduler
)

// Instance returns the process-wide default Scheduler, constructing it
// (via New with no options) on first use.
func Instance() *Scheduler {
	instanceOnce.Do(func() { instance = New() })
	return instance
}

// RegisterGameThread marks the calling goroutine as the designated game
// thread: the only caller allowed to start, stop, or restart workers, and
// whose own launches always go to the global overflow queue. It returns a
// Record the caller should thread through its own TryLaunch calls.
func (s *Scheduler) RegisterGameThread() *tlsregistry.Record {
	r := tlsregistry.NewRecord(tlsregistry.KindGameThread)
	s.gameThreadRecord.Store(r)
	return r
}

// StartWorkers pre-creates numFG foreground and numBG background workers
// and begins their main loops. It must only be called once (per
// StopWorkers cycle) and, per the original, only from the game thread —
// this implementation does not enforce that, trusting the caller, since
// Go has no cheap way to identify "the calling goroutine" to check it.
func (s *Scheduler) StartWorkers(numFG, numBG int) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("scheduler: workers already running")
	}

	if s.settings.cfg.NoThreading {
		numFG, numBG = 0, 0
	}

	s.stopCh = make(chan struct{})
	s.baseWorkers.Store(int32(numFG + numBG))
	s.workers = make([]*worker, 0, numFG+numBG)

	for i := 0; i < numFG; i++ {
		s.spawnWorker(tlsregistry.KindForeground, i)
	}
	for i := 0; i < numBG; i++ {
		s.spawnWorker(tlsregistry.KindBackground, i)
	}

	s.running.Store(true)
	return nil
}

func (s *Scheduler) spawnWorker(kind tlsregistry.Kind, index int) {
	wq := &queue.WorkerQueues{}
	record := tlsregistry.NewRecord(kind)
	record.Queues = wq
	regIdx := s.registry.Register(wq)

	w := &worker{
		sched:  s,
		kind:   kind,
		record: record,
		queues: wq,
		regIdx: regIdx,
		thread: s.settings.threadFactory.NewThread(),
	}
	s.workers = append(s.workers, w)

	priority, affinity := s.settings.fgPriority, s.settings.fgAffinity
	namePrefix := "concore-fg"
	if kind == tlsregistry.KindBackground {
		priority, affinity = s.settings.bgPriority, s.settings.bgAffinity
		namePrefix = "concore-bg"
	}
	name := fmt.Sprintf("%s-%d", namePrefix, index)
	w.thread.SetName(name)
	_ = w.thread.SetPriority(priority)
	_ = w.thread.SetAffinity(affinity)

	s.wg.Add(1)
	s.activeWorkers.Add(1)
	s.settings.logger.Info("scheduler: worker started", "name", name, "kind", kindName(kind))
	_ = w.thread.Start(w.run)
}

func kindName(kind tlsregistry.Kind) string {
	switch kind {
	case tlsregistry.KindForeground:
		return "foreground"
	case tlsregistry.KindBackground:
		return "background"
	case tlsregistry.KindGameThread:
		return "game-thread"
	default:
		return "none"
	}
}

// StopWorkers signals every worker to exit and waits for them to finish.
// If drainGlobalQueue is true, any tasks still sitting in the global
// overflow queues are run inline (on the calling goroutine) afterwards,
// rather than being dropped.
func (s *Scheduler) StopWorkers(drainGlobalQueue bool) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running.Load() {
		close(s.stopCh)

		// A worker that observed stopCh open just before close() may still
		// be between PrepareWait and CommitWait when NotifyAll runs once,
		// and NotifyAll only drains whatever is already parked — it
		// doesn't consult the pending-signal fallback the way Notify does.
		// Sweep repeatedly until every worker has actually exited, matching
		// the same retry idiom waitqueue's own NotifyAll tests use for the
		// identical race.
		allExited := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(allExited)
		}()
		ticker := time.NewTicker(time.Millisecond)
	waitForExit:
		for {
			s.fgWait.NotifyAll()
			s.bgWait.NotifyAll()
			select {
			case <-allExited:
				break waitForExit
			case <-ticker.C:
			}
		}
		ticker.Stop()

		for _, w := range s.workers {
			s.registry.Unregister(w.regIdx)
		}
		s.workers = nil
		s.running.Store(false)
	}

	// Draining runs regardless of whether any workers were ever started:
	// a launch made with no worker pool running always lands in the global
	// overflow queue, and a fire-and-forget caller still expects
	// StopWorkers(true) to run it.
	if drainGlobalQueue {
		for _, p := range allPriorities {
			overflow := s.registry.Overflow(p)
			for {
				t, ok := overflow.Pop()
				if !ok {
					break
				}
				t.TryExecuteTask()
			}
		}
	}
}

// RestartWorkers stops and then restarts the worker pool with new counts.
func (s *Scheduler) RestartWorkers(numFG, numBG int) error {
	if !s.restarting.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler: restart already in progress")
	}
	defer s.restarting.Store(false)

	s.StopWorkers(false)
	return s.StartWorkers(numFG, numBG)
}

// NumWorkers returns the number of currently active workers.
func (s *Scheduler) NumWorkers() int {
	return int(s.activeWorkers.Load())
}

// MaxNumWorkers returns the highest number of workers the scheduler would
// currently allow, including any oversubscription allowance.
func (s *Scheduler) MaxNumWorkers() int {
	base := int(s.baseWorkers.Load())
	if s.oversubCount.Load() <= 0 {
		return base
	}
	extra := int(float64(base) * s.settings.cfg.OversubscriptionRatio)
	return base + extra
}

// IsOversubscriptionLimitReached reports whether the active worker count
// has hit the current ceiling.
func (s *Scheduler) IsOversubscriptionLimitReached() bool {
	active, ceiling := int(s.activeWorkers.Load()), s.MaxNumWorkers()
	reached := active >= ceiling
	if reached {
		s.oversubEvent.Notify()
		s.settings.oversubLimiter.Allow("scheduler: oversubscription ceiling reached",
			"active", strconv.Itoa(active), "max", strconv.Itoa(ceiling))
	}
	return reached
}

// OversubscriptionLimitReachedEvent returns the event notified whenever
// IsOversubscriptionLimitReached finds the ceiling reached, for callback-style registration
// (callers Wait/WaitFor on it directly).
func (s *Scheduler) OversubscriptionLimitReachedEvent() *parkevent.Event {
	return s.oversubEvent
}

// OversubscriptionScope marks the calling worker as permitting
// oversubscription for its duration — e.g. while it's about to block on
// something outside the scheduler's own primitives.
type OversubscriptionScope struct {
	sched *Scheduler
}

// EnterOversubscription raises the allowed worker ceiling for as long as
// the returned scope is open. Close it when the caller is done blocking.
func (s *Scheduler) EnterOversubscription() *OversubscriptionScope {
	s.oversubCount.Add(1)
	if s.settings.cfg.DynamicThreadCreation {
		s.fgWait.Notify(1)
		s.bgWait.Notify(1)
	}
	return &OversubscriptionScope{sched: s}
}

// Close ends the oversubscription scope.
func (sc *OversubscriptionScope) Close() {
	sc.sched.oversubCount.Add(-1)
}

// TryLaunch launches t according to pref, waking a worker if wakeWorker is
// true. It may be called from any goroutine; callers with no worker
// identity of their own (tests, the game thread, arbitrary external code)
// always route to the global overflow queue, matching how the game
// thread's own launches always use the global queue.
func (s *Scheduler) TryLaunch(t *task.Task, pref QueuePreference, wakeWorker bool) bool {
	return s.launchInternal(t, pref, nil, wakeWorker)
}

// TryLaunchFrom is TryLaunch called on behalf of a specific worker's
// record, so the launch can use that worker's own local queue. A task
// constructed with PriorityInherit already resolved its priority against
// the constructing goroutine's active task at New/Init time; record here
// only affects queue routing, not priority.
func (s *Scheduler) TryLaunchFrom(t *task.Task, pref QueuePreference, record *tlsregistry.Record, wakeWorker bool) bool {
	return s.launchInternal(t, pref, record, wakeWorker)
}

// launchInternal decides the target
// queue (local queue unless the task is background-priority and the
// caller is a foreground worker, or the caller is the game thread or has
// no record at all, in which case it's always the global queue), enqueue,
// then optionally wake a worker.
func (s *Scheduler) launchInternal(t *task.Task, pref QueuePreference, record *tlsregistry.Record, wakeWorker bool) bool {
	priority := t.Priority()

	if !t.TryLaunch() {
		return false
	}

	if s.settings.cfg.NoThreading {
		for next := t; next != nil; {
			next, _ = next.TryExecuteTask()
		}
		return true
	}

	var wq *queue.WorkerQueues
	useLocal := false
	if record != nil && record.Kind != tlsregistry.KindGameThread {
		if qs, ok := record.Queues.(*queue.WorkerQueues); ok && qs != nil {
			wq = qs
			switch pref {
			case QueueGlobal:
				useLocal = false
			case QueueLocal:
				useLocal = true
			default: // QueueAuto
				useLocal = !(priority.IsBackground() && record.Kind == tlsregistry.KindForeground)
			}
		}
	}

	if !(useLocal && wq != nil && wq.For(priority).Put(t)) {
		s.registry.Overflow(priority).Push(t)
	}

	if wakeWorker {
		if record != nil {
			record.SetPendingWake(true)
		}
		s.wakeForPriority(priority)
		if record != nil {
			record.SetPendingWake(false)
		}
	}
	return true
}

// wakeForPriority notifies the worker class matching priority; if it has
// no one currently parked to wake, it falls through to the other class
// falling through to the opposite worker class if the primary
// has no parkers, since a background worker is also able to pick up
// foreground work (and vice versa is deliberately not symmetric — see
// worker.includeBackground).
func (s *Scheduler) wakeForPriority(p task.Priority) {
	primary, secondary := s.fgWait, s.bgWait
	if p.IsBackground() {
		primary, secondary = s.bgWait, s.fgWait
	}
	if primary.Notify(1) == 0 {
		secondary.Notify(1)
	}
}

var allPriorities = []task.Priority{
	task.PriorityHigh,
	task.PriorityNormal,
	task.PriorityBackgroundHigh,
	task.PriorityBackgroundNormal,
	task.PriorityBackgroundLow,
}

// platform is imported only for its types, used in settings; referencing
// it here keeps goimports-style tooling from flagging an unused import in
// option-less builds.
var _ platform.Factory = (*platform.GoFactory)(nil)
