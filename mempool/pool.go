// Package mempool implements a fixed-size object allocator over slabs of one
// backing order, as consumed by the smalloc package's size-class pools.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package mempool

import (
	"unsafe"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/slabcache"
)

// MinObjCount is the minimum number of objects a slab order must fit before
// it is accepted for a given object size.
const MinObjCount = 4

// slabEntry tracks per-slab free-object bookkeeping. The free list is kept
// as an external index stack rather than an intrusive pointer chain written
// into the object bytes themselves -- an external index needs no unsafe
// writes into arena memory outside the one pointer-masking trick slabcache
// already owns.
type slabEntry struct {
	slab      *slabcache.Slab
	freeIdx   []int32 // stack of free object indices
	inPartial bool
	partialAt int // index into Pool.partial, valid iff inPartial
}

// Pool is a fixed-object-size allocator over slabs of one order.
type Pool struct {
	cache       *slabcache.Cache
	objSize     int
	slabOrder   int
	slabSize    int
	objCount    int
	slabPtrMask uintptr

	entries map[uintptr]*slabEntry // slab base -> entry
	partial []*slabEntry           // slabs with 0 < free < objCount
	spare   *slabEntry             // one fully-free slab retained to avoid cache thrashing

	owner unsafe.Pointer // opaque back-reference, set by the caller (e.g. *smalloc classPool)
}

// Stats is a point-in-time snapshot of a Pool's usage.
type Stats struct {
	ObjSize   int
	ObjCount  int
	SlabSize  int
	SlabCount int
	Used      int64 // live objects * objSize
	Total     int64 // slabs * slabsize
}

// Create builds a Pool for objects of exactly objSize bytes, choosing the
// smallest slab order in cache that fits at least MinObjCount objects per
// slab (falling back to cache.OrderMax() if even that doesn't reach
// MinObjCount).
func Create(cache *slabcache.Cache, objSize int) *Pool {
	cmn.Assert(objSize > 0)
	order := 0
	for order < cache.OrderMax() && cache.OrderSize(order)/objSize < MinObjCount {
		order++
	}
	slabSize := cache.OrderSize(order)
	objCount := slabSize / objSize
	cmn.Assert(objCount >= 1)

	return &Pool{
		cache:       cache,
		objSize:     objSize,
		slabOrder:   order,
		slabSize:    slabSize,
		objCount:    objCount,
		slabPtrMask: ^uintptr(slabSize - 1),
		entries:     make(map[uintptr]*slabEntry),
	}
}

func (p *Pool) ObjSize() int       { return p.objSize }
func (p *Pool) SlabOrder() int     { return p.slabOrder }
func (p *Pool) SlabSize() int      { return p.slabSize }
func (p *Pool) ObjCount() int      { return p.objCount }
func (p *Pool) SlabPtrMask() uintptr { return p.slabPtrMask }
func (p *Pool) Owner() unsafe.Pointer     { return p.owner }
func (p *Pool) SetOwner(o unsafe.Pointer) { p.owner = o }

// Alloc pops a free object from the current partially-full slab, fetching a
// fresh one from the cache when none is available. Returns nil on OOM.
func (p *Pool) Alloc() unsafe.Pointer {
	entry := p.acquireEntry()
	if entry == nil {
		return nil
	}
	n := len(entry.freeIdx)
	idx := entry.freeIdx[n-1]
	entry.freeIdx = entry.freeIdx[:n-1]
	if len(entry.freeIdx) == 0 {
		p.removeFromPartial(entry)
	}
	base := entry.slab.Base()
	return unsafe.Pointer(base + uintptr(idx)*uintptr(p.objSize))
}

func (p *Pool) acquireEntry() *slabEntry {
	if n := len(p.partial); n > 0 {
		return p.partial[n-1]
	}
	if p.spare != nil {
		e := p.spare
		p.spare = nil
		p.pushPartial(e)
		return e
	}
	slab := p.cache.AllocOrder(p.slabOrder)
	if slab == nil {
		return nil
	}
	slab.SetOwner(unsafe.Pointer(p))
	e := &slabEntry{slab: slab, freeIdx: make([]int32, p.objCount)}
	for i := range e.freeIdx {
		e.freeIdx[i] = int32(i)
	}
	p.entries[slab.Base()] = e
	p.pushPartial(e)
	return e
}

// FreeSlab returns ptr, known to live in slab, to the pool. The caller has
// already resolved slab via slabcache.SlabFromPtr (or SlabFromData for a
// large allocation, which never reaches here).
func (p *Pool) FreeSlab(slab *slabcache.Slab, ptr unsafe.Pointer) {
	entry := p.entries[slab.Base()]
	cmn.AssertMsg(entry != nil, "mempool: FreeSlab of a slab this pool does not own")

	idx := int32((uintptr(ptr) - slab.Base()) / uintptr(p.objSize))
	wasFull := len(entry.freeIdx) == 0
	entry.freeIdx = append(entry.freeIdx, idx)

	if wasFull {
		p.pushPartial(entry)
	}
	if len(entry.freeIdx) == p.objCount {
		p.removeFromPartial(entry)
		if p.spare == nil {
			p.spare = entry
		} else {
			delete(p.entries, slab.Base())
			p.cache.Put(slab)
		}
	}
}

func (p *Pool) pushPartial(e *slabEntry) {
	if e.inPartial {
		return
	}
	e.inPartial = true
	e.partialAt = len(p.partial)
	p.partial = append(p.partial, e)
}

func (p *Pool) removeFromPartial(e *slabEntry) {
	if !e.inPartial {
		return
	}
	last := len(p.partial) - 1
	p.partial[e.partialAt] = p.partial[last]
	p.partial[e.partialAt].partialAt = e.partialAt
	p.partial = p.partial[:last]
	e.inPartial = false
}

// Stats reports the current usage snapshot for this pool.
func (p *Pool) Stats() Stats {
	used := int64(0)
	for _, e := range p.entries {
		used += int64(p.objCount-len(e.freeIdx)) * int64(p.objSize)
	}
	return Stats{
		ObjSize:   p.objSize,
		ObjCount:  p.objCount,
		SlabSize:  p.slabSize,
		SlabCount: len(p.entries),
		Used:      used,
		Total:     int64(len(p.entries)) * int64(p.slabSize),
	}
}

// Destroy releases every slab this pool owns back to the cache.
func (p *Pool) Destroy() {
	for base, e := range p.entries {
		delete(p.entries, base)
		p.cache.Put(e.slab)
	}
	p.partial = nil
	p.spare = nil
}
