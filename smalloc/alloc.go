package smalloc

import (
	"unsafe"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/cmn/debug"
	"github.com/smalloc/smalloc/mempool"
	"github.com/smalloc/smalloc/slabcache"
)

// Allocator is the top-level small-object allocator: routing, waste
// accounting, large-object fallback, and the delayed-free/GC state machine
// layered over a fixed pool/group table built once by NewAllocator and
// never resized.
type Allocator struct {
	cache     *slabcache.Cache
	sizeClass *sizeClass

	pools  []*classPool
	groups []*group

	objSizeMax int
	factor     float64

	freeMode freeMode

	delayedQueue []*classPool      // LIFO of classPools with a nonempty delayed list
	delayedLarge []*slabcache.Slab // LIFO of large slabs pending release
}

// Destroy releases every pool's slabs back to the cache. Outstanding
// delayed items are not drained first -- a caller in DELAYED_FREE or
// COLLECT_GARBAGE mode should drain via Alloc or check Stats before
// calling Destroy if it cares.
func (a *Allocator) Destroy() {
	for _, p := range a.pools {
		p.pool.Destroy()
	}
	a.pools = nil
	a.groups = nil
	a.delayedQueue = nil
	a.delayedLarge = nil
}

// Alloc serves size bytes, routing through the size-class table or falling
// through to a dedicated large slab above objsize_max. Runs one bounded GC
// step first. Returns nil only on out-of-memory.
func (a *Allocator) Alloc(size int) unsafe.Pointer {
	a.collectGarbageStep()

	if size > a.objSizeMax {
		slab := a.cache.AllocLarge(size)
		if slab == nil {
			return nil
		}
		return unsafe.Pointer(slab.Base())
	}

	cls := a.sizeClass.classBySize(size)
	cmn.Assert(cls < len(a.pools))
	p := a.pools[cls]
	donor := p.usedPool

	ptr := donor.pool.Alloc()
	if ptr == nil {
		return nil
	}

	if donor != p {
		p.waste += int64(donor.pool.ObjSize() - p.pool.ObjSize())
		if p.waste >= p.group.wasteMax {
			activate(p)
		}
	}
	return ptr
}

// Free returns ptr, previously returned by Alloc(size), to its owning pool.
// size MUST equal the size originally requested -- freeing with the wrong
// size is undefined behavior.
func (a *Allocator) Free(ptr unsafe.Pointer, size int) {
	if size > a.objSizeMax {
		a.cache.PutLarge(a.cache.SlabFromData(ptr))
		return
	}
	p := a.pools[a.sizeClass.classBySize(size)]
	a.freeToPool(p, ptr)
}

// freeToPool resolves ptr's actual owning pool via the slab header (never
// assumed to be p itself, since p may have been borrowing from a donor) and
// reconciles p's waste accordingly.
func (a *Allocator) freeToPool(p *classPool, ptr unsafe.Pointer) {
	slab := a.cache.SlabFromPtr(ptr, p.pool.SlabPtrMask())
	actualPool := (*mempool.Pool)(slab.Owner())
	actualClassPool := (*classPool)(actualPool.Owner())

	p.waste -= int64(actualClassPool.pool.ObjSize() - p.pool.ObjSize())
	cmn.Assert(p.waste >= 0)

	actualPool.FreeSlab(slab, ptr)
}

// FreeDelayed behaves as Free in FREE mode; in DELAYED_FREE mode it queues
// ptr instead of releasing it, so a consistent-snapshot reader may still
// observe its bytes until COLLECT_GARBAGE drains it. size carries the same
// exact-match contract as Free.
func (a *Allocator) FreeDelayed(ptr unsafe.Pointer, size int) {
	if a.freeMode == modeFree {
		a.Free(ptr, size)
		return
	}
	if size > a.objSizeMax {
		a.delayedLarge = append(a.delayedLarge, a.cache.SlabFromData(ptr))
		return
	}
	p := a.pools[a.sizeClass.classBySize(size)]
	a.pushDelayed(p, ptr)
}

// pushDelayed links ptr onto p's intrusive delayed LIFO, writing the
// current head into the object's own first word -- legal here only because
// delayed objects carry no header and nothing else reads them as pointers.
func (a *Allocator) pushDelayed(p *classPool, ptr unsafe.Pointer) {
	*(*uintptr)(ptr) = p.delayedHead
	p.delayedHead = uintptr(ptr)
	if !p.inDelayedQueue {
		p.inDelayedQueue = true
		a.delayedQueue = append(a.delayedQueue, p)
	}
}

// SetDelayedFree toggles between DELAYED_FREE and COLLECT_GARBAGE. Calling
// it with true while already draining (COLLECT_GARBAGE) re-enters
// DELAYED_FREE mid-drain, leaving the partially-drained lists in place.
func (a *Allocator) SetDelayedFree(enabled bool) {
	if enabled {
		a.freeMode = modeDelayedFree
		debug.Infof("smalloc: entering DELAYED_FREE")
		return
	}
	if a.freeMode == modeDelayedFree {
		a.freeMode = modeCollectGarbage
		debug.Infof("smalloc: entering COLLECT_GARBAGE")
	}
}
