// Package smalloc is the small-object allocator: a precomputed table of
// size-class memory pools, grouped by backing slab order, with a
// waste-driven activation policy and a delayed-free/GC state machine layered
// on top of mempool and slabcache.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package smalloc

import (
	"math"

	"github.com/smalloc/smalloc/cmn"
)

// sizeClass maps byte sizes to class indices and back. Classes grow by a
// fixed `granularity` step for the first `effSize` indices (the linear
// region -- geometric growth is worse than linear at the smallest sizes),
// then by a doubling-increment scheme that approximates geometric growth of
// ratio actualFactor while keeping every class size an exact multiple of
// granularity.
type sizeClass struct {
	granularity    int
	minAlloc       int
	requestedFactor float64
	actualFactor   float64
	effSize        int // always a power of two
	effShift       uint
}

// newSizeClass builds a sizeClass for the given granularity (a power of
// two), requestedFactor in (1, 2], and minAlloc. Returns the class plus the
// actualFactor achieved.
func newSizeClass(granularity, minAlloc int, requestedFactor float64) (*sizeClass, float64) {
	cmn.Assert(cmn.IsPowerOfTwo(uint64(granularity)))
	cmn.Assert(requestedFactor > 1.0 && requestedFactor <= 2.0)
	cmn.Assert(minAlloc >= granularity)

	// eff_size is chosen so that, after eff_size linear steps, geometric
	// spacing at the requested factor would already exceed a single
	// granularity step: eff_size = 2 ^ floor(log2(1/(factor-1))).
	bits := int(math.Floor(math.Log2(1.0 / (requestedFactor - 1.0))))
	if bits < 0 {
		bits = 0
	}
	const maxBits = 30
	if bits > maxBits {
		bits = maxBits
	}
	effSize := 1 << uint(bits)
	actualFactor := math.Pow(2, 1.0/float64(effSize))

	return &sizeClass{
		granularity:     granularity,
		minAlloc:        minAlloc,
		requestedFactor: requestedFactor,
		actualFactor:    actualFactor,
		effSize:         effSize,
		effShift:        uint(bits),
	}, actualFactor
}

// blockStart returns S(b), the class size at the first index of block b
// (i.e. sizeByClass(b*effSize)), and growth(b), the per-step increment used
// throughout block b.
func (sc *sizeClass) blockStart(b int) (size, growth int) {
	g, n := sc.granularity, sc.effSize
	if b <= 0 {
		return sc.minAlloc, g
	}
	if b == 1 {
		return sc.minAlloc + n*g, g
	}
	// S(b) = S(1) + g*(n+1)*(2^(b-1) - 1), growth(b) = g * 2^(b-1)
	pow := int64(1) << uint(b-1)
	growth = g * int(pow)
	size = sc.minAlloc + n*g + g*(n+1)*int(pow-1)
	return
}

// sizeByClass returns the byte size of class i.
func (sc *sizeClass) sizeByClass(i int) int {
	cmn.Assert(i >= 0)
	n := sc.effSize
	b := i / n
	r := i % n
	base, growth := sc.blockStart(b)
	return base + r*growth
}

// classBySize returns the smallest class index i with sizeByClass(i) >= s,
// found by exponential search followed by a binary search -- a deliberate
// simplification of a branchless bit-length-and-shift lookup (see
// DESIGN.md), still O(log classCount) and trivially correct by construction
// since it searches the same sizeByClass used everywhere else.
func (sc *sizeClass) classBySize(s int) int {
	if s <= sc.minAlloc {
		return 0
	}
	lo, hi := 0, 1
	for sc.sizeByClass(hi) < s {
		lo = hi
		hi *= 2
	}
	for lo < hi {
		mid := (lo + hi) / 2
		if sc.sizeByClass(mid) >= s {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return hi
}
