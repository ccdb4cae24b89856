package parkinglot

import (
	"sync/atomic"
	"unsafe"

	"github.com/olocore/concore/parkevent"
)

// waitNode is one parked goroutine. It lives on exactly one bucket's list
// while parked. waitAddr holds the address it's parked on. A waker unlinks
// the node under the bucket lock, then, outside the lock, clears waitAddr
// to nil to mean "you've been dequeued" and signals the node's event.
type waitNode struct {
	prev, next *waitNode
	waitAddr   atomic.Pointer[byte]
	wakeToken  uint64
	ev         *parkevent.Event
}

func newWaitNode(addr unsafe.Pointer) *waitNode {
	n := &waitNode{ev: parkevent.New()}
	n.waitAddr.Store((*byte)(addr))
	return n
}

func (n *waitNode) addr() unsafe.Pointer {
	return unsafe.Pointer(n.waitAddr.Load())
}

// markDequeued clears the wait address; it must be called while the node is
// still reachable (i.e. either still linked, or just unlinked by the same
// caller), and the event must be signaled afterwards, outside the bucket
// lock.
func (n *waitNode) markDequeued(token uint64) {
	n.wakeToken = token
	n.waitAddr.Store(nil)
}
