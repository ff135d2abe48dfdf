// Package slabcache caches power-of-two-aligned slabs of orders
// 0..OrderMax and serves oversized ("large") slabs directly from the arena.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package slabcache

import (
	"sync"
	"unsafe"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/cmn/debug"
	"github.com/smalloc/smalloc/slabarena"
)

// Slab is a single power-of-two-sized, power-of-two-aligned region handed
// out by a Cache. It carries no in-band header: objects carry no header
// either, and a Go []byte mapped outside the Go heap cannot safely hold a
// live *mempool.Pool pointer for the garbage collector to trace. Instead,
// Cache keeps an out-of-band base->*Slab table and the owning pool is
// attached to the Slab value itself via owner.
type Slab struct {
	base  uintptr
	order int // -1 for a large slab
	size  int // total usable byte size
	mem   []byte
	owner unsafe.Pointer // set by mempool.Pool; opaque here
}

func (s *Slab) Data() []byte    { return s.mem }
func (s *Slab) Size() int       { return s.size }
func (s *Slab) Order() int      { return s.order }
func (s *Slab) Base() uintptr   { return s.base }
func (s *Slab) IsLarge() bool   { return s.order < 0 }
func (s *Slab) Owner() unsafe.Pointer       { return s.owner }
func (s *Slab) SetOwner(p unsafe.Pointer)   { s.owner = p }

// Cache manages one arena plus, per order, a LIFO free-list of slabs
// returned by Put. orderMax bounds regular (non-large) slab orders;
// OrderSize(0) is the base slab size.
type Cache struct {
	arena     *slabarena.Arena
	baseSize  int
	orderMax  int
	freeLists [][]*Slab
	mu        sync.Mutex

	bySlabBase map[uintptr]*Slab // aligned base -> regular Slab, for SlabFromPtr
	byData     map[uintptr]*Slab // data pointer -> large Slab, for SlabFromData
}

// New creates a Cache whose smallest slab is baseSize bytes (a power of two)
// and whose largest regular order is orderMax, i.e. OrderSize(orderMax) ==
// baseSize << orderMax.
func New(arena *slabarena.Arena, baseSize int, orderMax int) *Cache {
	cmn.Assert(cmn.IsPowerOfTwo(uint64(baseSize)))
	cmn.Assert(orderMax >= 0)
	return &Cache{
		arena:      arena,
		baseSize:   baseSize,
		orderMax:   orderMax,
		freeLists:  make([][]*Slab, orderMax+1),
		bySlabBase: make(map[uintptr]*Slab),
		byData:     make(map[uintptr]*Slab),
	}
}

func (c *Cache) OrderMax() int        { return c.orderMax }
func (c *Cache) OrderSize(order int) int {
	cmn.Assert(order >= 0 && order <= c.orderMax)
	return c.baseSize << uint(order)
}

// AllocOrder returns a slab of the given order, preferring a cached one.
func (c *Cache) AllocOrder(order int) *Slab {
	cmn.Assert(order >= 0 && order <= c.orderMax)

	c.mu.Lock()
	if n := len(c.freeLists[order]); n > 0 {
		s := c.freeLists[order][n-1]
		c.freeLists[order] = c.freeLists[order][:n-1]
		c.mu.Unlock()
		return s
	}
	c.mu.Unlock()

	size := c.OrderSize(order)
	base, ok := c.arena.Alloc(size, slabarena.FlagNone)
	if !ok {
		return nil
	}
	s := &Slab{base: base, order: order, size: size, mem: sliceAt(base, size)}

	c.mu.Lock()
	c.bySlabBase[base] = s
	c.mu.Unlock()
	return s
}

// Put returns a regular (non-large) slab to its order's free list.
func (c *Cache) Put(s *Slab) {
	cmn.Assert(!s.IsLarge())
	c.mu.Lock()
	c.freeLists[s.order] = append(c.freeLists[s.order], s)
	c.mu.Unlock()
}

// AllocLarge serves an allocation that exceeds every regular size class as a
// single-object slab whose data region is exactly size bytes (rounded up to
// the next power of two, since the arena only maps power-of-two regions).
func (c *Cache) AllocLarge(size int) *Slab {
	mapSize := nextPow2(size)
	base, ok := c.arena.Alloc(mapSize, slabarena.FlagNone)
	if !ok {
		return nil
	}
	s := &Slab{base: base, order: -1, size: mapSize, mem: sliceAt(base, mapSize)}

	c.mu.Lock()
	c.byData[base] = s
	c.mu.Unlock()
	debug.Infof("slabcache: large alloc %s", cmn.B2S(int64(mapSize), 1))
	return s
}

// PutLarge releases a large slab back to the arena directly -- large slabs
// are never pooled.
func (c *Cache) PutLarge(s *Slab) {
	cmn.Assert(s.IsLarge())
	c.mu.Lock()
	delete(c.byData, s.base)
	c.mu.Unlock()
	c.arena.Put(s.base, s.size)
}

// SlabFromData recovers the large Slab whose data region starts at ptr.
func (c *Cache) SlabFromData(ptr unsafe.Pointer) *Slab {
	base := uintptr(ptr)
	c.mu.Lock()
	s := c.byData[base]
	c.mu.Unlock()
	cmn.AssertMsg(s != nil, "slabcache: SlabFromData of unknown large slab")
	return s
}

// SlabFromPtr recovers the regular Slab containing ptr by masking ptr down
// to its aligned slab base -- the sole, header-free way an object resolves
// its owner.
func (c *Cache) SlabFromPtr(ptr unsafe.Pointer, mask uintptr) *Slab {
	base := uintptr(ptr) & mask
	c.mu.Lock()
	s := c.bySlabBase[base]
	c.mu.Unlock()
	cmn.AssertMsg(s != nil, "slabcache: SlabFromPtr of unknown slab base")
	return s
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
