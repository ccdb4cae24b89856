package parkinglot

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/olocore/concore/colog"
	"github.com/olocore/concore/diag"
	"github.com/olocore/concore/wordmutex"
)

// bucket owns a word-sized lock and an intrusive FIFO list of parked
// waiters. The word mutex (not this package's own mutex family) is used
// deliberately: buckets are a leaf of the runtime's locking hierarchy, and
// the parking lot is exactly the thing the higher-level mutex family's slow
// paths call into, so the bucket lock cannot itself depend on the parking
// lot.
type bucket struct {
	mu         wordmutex.Mutex
	head, tail *waitNode
	waiting    int // count of nodes currently linked, for growth accounting
}

func (b *bucket) pushBack(n *waitNode) {
	n.prev, n.next = b.tail, nil
	if b.tail != nil {
		b.tail.next = n
	} else {
		b.head = n
	}
	b.tail = n
	b.waiting++
}

func (b *bucket) unlink(n *waitNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		b.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		b.tail = n.prev
	}
	n.prev, n.next = nil, nil
	b.waiting--
}

// hasWaiterFor reports whether any node in the bucket is parked on addr.
func (b *bucket) hasWaiterFor(addr unsafe.Pointer) bool {
	for n := b.head; n != nil; n = n.next {
		if n.addr() == addr {
			return true
		}
	}
	return false
}

// table is a power-of-two sized array of buckets. It's replaced wholesale
// on growth; the global pointer to the active table is swapped atomically.
type table struct {
	buckets []*bucket
	mask    uint64
}

func newTable(numBuckets int) *table {
	t := &table{buckets: make([]*bucket, numBuckets), mask: uint64(numBuckets - 1)}
	for i := range t.buckets {
		t.buckets[i] = &bucket{}
	}
	return t
}

func (t *table) bucketFor(addr unsafe.Pointer) *bucket {
	return t.buckets[hashAddr(addr)&t.mask]
}

// hashAddr mixes the address insensitively to its low-bit alignment
// pattern (pointers are usually aligned, which would otherwise cluster
// everything into a handful of buckets). This is Thomas Wang's 64-bit
// integer hash.
func hashAddr(addr unsafe.Pointer) uint64 {
	a := uint64(uintptr(addr))
	a = (^a) + (a << 21)
	a = a ^ (a >> 24)
	a = a + (a << 3) + (a << 8)
	a = a ^ (a >> 14)
	a = a + (a << 2) + (a << 4)
	a = a ^ (a >> 28)
	a = a + (a << 31)
	return a
}

const (
	initialBuckets = 32
	growthFactor   = 4 // grow once waiting-thread count exceeds buckets * growthFactor
)

var (
	globalTable atomic.Pointer[table]
	growLock    sync.Mutex
	growLog     atomic.Pointer[diag.Limiter]
)

func init() {
	globalTable.Store(newTable(initialBuckets))
	growLog.Store(diag.NewLimiter(colog.NoOp(), "parkinglot.grow", time.Second, 1))
}

// SetDiagLogger rate-limits and logs every bucket-table growth through l,
// replacing whatever logger growth events were previously reported through
// (none, by default). Embedders that construct a scheduler with
// scheduler.WithLogger get this wired automatically.
func SetDiagLogger(l *colog.Logger) {
	growLog.Store(diag.NewLimiter(l, "parkinglot.grow", time.Second, 1))
}

func roundUpPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// loadTable returns the active table. It never grows it; growth happens in
// maybeGrow and Reserve.
func loadTable() *table {
	return globalTable.Load()
}

// maybeGrow grows the table if the observed waiting-thread count warrants
// it. It's a best-effort check: races where multiple goroutines observe the
// threshold simultaneously are resolved by growLock, and a goroutine that
// loses the race simply uses the table its rival just installed.
func maybeGrow(observed *table, waitingCount int) {
	if waitingCount <= len(observed.buckets)*growthFactor {
		return
	}
	grow(roundUpPow2(len(observed.buckets) * 2))
}

// Reserve grows the bucket table to accommodate threadCount waiters without
// waiting for organic growth to trigger.
func Reserve(threadCount int) {
	target := roundUpPow2(threadCount)
	if target < initialBuckets {
		target = initialBuckets
	}
	if len(loadTable().buckets) < target {
		grow(target)
	}
}

// grow implements the bucket-table growth algorithm:
//  1. lock every bucket of the current table, in index order, so growth
//     can never deadlock against a Wait/Wake that locks exactly one
//     bucket;
//  2. rely on growLock to guarantee the global pointer still points at the
//     table we locked (no separate re-check is made);
//  3. drain every waiter, preserving relative per-address order;
//  4. build a new, larger table and rehash every waiter into it;
//  5. swap the global pointer, then unlock.
func grow(targetBuckets int) {
	growLock.Lock()
	defer growLock.Unlock()

	old := globalTable.Load()
	if len(old.buckets) >= targetBuckets {
		return // someone else already grew past our target
	}

	for _, b := range old.buckets {
		b.mu.Lock()
	}
	// growLock already serializes all growers, so the global pointer
	// cannot have changed since we loaded `old` above; the lock-in-order
	// discipline above is what keeps this safe against concurrent
	// Wait/Wake, which only ever hold one bucket lock at a time.

	var drained []*waitNode
	for _, b := range old.buckets {
		for n := b.head; n != nil; {
			next := n.next
			n.prev, n.next = nil, nil
			drained = append(drained, n)
			n = next
		}
		b.head, b.tail, b.waiting = nil, nil, 0
	}

	next := newTable(targetBuckets)
	for _, n := range drained {
		if n.addr() == nil {
			// already claimed by a waker racing with growth; it'll be
			// signaled directly and never needs to be found again.
			continue
		}
		next.bucketFor(n.addr()).pushBack(n)
	}

	globalTable.Store(next)

	for _, b := range old.buckets {
		b.mu.Unlock()
	}

	growLog.Load().Allow("parkinglot: bucket table grown",
		"from", strconv.Itoa(len(old.buckets)), "to", strconv.Itoa(targetBuckets))
}
