package smalloc

import (
	"unsafe"

	"github.com/smalloc/smalloc/cmn/debug"
)

// freeMode is the allocator's delayed-free/GC state.
type freeMode int

const (
	modeFree freeMode = iota
	modeDelayedFree
	modeCollectGarbage
)

// gcBatch bounds the work done per collectGarbageStep call.
const gcBatch = 100

// collectGarbageStep drains the delayed lists in COLLECT_GARBAGE mode,
// large slabs first, then regular objects pool by pool, auto-transitioning
// back to FREE once both are empty. A no-op outside COLLECT_GARBAGE; called
// once at the top of every Alloc.
func (a *Allocator) collectGarbageStep() {
	if a.freeMode != modeCollectGarbage {
		return
	}

	if n := len(a.delayedLarge); n > 0 {
		drain := n
		if drain > gcBatch {
			drain = gcBatch
		}
		for i := 0; i < drain; i++ {
			last := len(a.delayedLarge) - 1
			slab := a.delayedLarge[last]
			a.delayedLarge = a.delayedLarge[:last]
			a.cache.PutLarge(slab)
		}
		return
	}

	drained := 0
	for drained < gcBatch && len(a.delayedQueue) > 0 {
		head := a.delayedQueue[len(a.delayedQueue)-1]
		for drained < gcBatch && head.delayedHead != 0 {
			ptr := unsafe.Pointer(head.delayedHead)
			head.delayedHead = *(*uintptr)(ptr)
			a.freeToPool(head, ptr)
			drained++
		}
		if head.delayedHead == 0 {
			head.inDelayedQueue = false
			a.delayedQueue = a.delayedQueue[:len(a.delayedQueue)-1]
		}
	}
	if drained > 0 {
		return
	}

	a.freeMode = modeFree
	debug.Infof("smalloc: COLLECT_GARBAGE drained, returning to FREE")
}
