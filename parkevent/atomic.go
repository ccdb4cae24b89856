package parkevent

import "sync/atomic"

func atomicLoad(p *uint32) uint32  { return atomic.LoadUint32(p) }
func atomicStore(p *uint32, v uint32) { atomic.StoreUint32(p, v) }
func atomicSwap(p *uint32, v uint32) uint32 { return atomic.SwapUint32(p, v) }
