package slabarena

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/cmn/debug"
)

// Flags control how Arena.Alloc maps a region.
type Flags int

const (
	// FlagNone requests a plain anonymous mapping.
	FlagNone Flags = 0
	// FlagPopulate pre-faults the mapping (MAP_POPULATE on Linux), paying
	// the page-fault cost up front instead of on first touch.
	FlagPopulate Flags = 1 << iota
)

// Arena hands out power-of-two-sized, power-of-two-aligned anonymous
// mappings, bounded by a Quota. Alignment equal to size is what lets
// slabcache recover a slab's base from any interior pointer via a bitmask
// (see slabcache.Cache.SlabFromPtr).
type Arena struct {
	quota *Quota

	mu   sync.Mutex
	live map[uintptr]rawMapping // aligned base -> the real mmap region backing it
}

type rawMapping struct {
	base uintptr
	mem  []byte
}

func NewArena(quota *Quota) *Arena {
	return &Arena{quota: quota, live: make(map[uintptr]rawMapping)}
}

// Alloc reserves size bytes of quota and maps a region of that size, aligned
// to size. Returns (0, false) on quota exhaustion or mmap failure -- the
// sole recoverable failure mode this package exposes.
func (a *Arena) Alloc(size int, flags Flags) (uintptr, bool) {
	cmn.Assert(cmn.IsPowerOfTwo(uint64(size)))
	if !a.quota.TryUse(int64(size)) {
		return 0, false
	}

	prot := unix.PROT_READ | unix.PROT_WRITE
	mapFlags := unix.MAP_ANON | unix.MAP_PRIVATE
	if flags&FlagPopulate != 0 {
		mapFlags |= unix.MAP_POPULATE
	}

	// Over-map by 2x so an aligned sub-region of the requested size always
	// exists inside it, then trim the unaligned head and tail back off so
	// only the aligned size bytes stay mapped -- real RSS/address-space use
	// matches the quota charge above, not the 2x over-map.
	raw, err := unix.Mmap(-1, 0, 2*size, prot, mapFlags)
	if err != nil {
		a.quota.Release(int64(size))
		debug.Infof("slabarena: mmap(%d) failed: %v", 2*size, err)
		return 0, false
	}
	rawBase := uintptr(unsafe.Pointer(&raw[0]))
	alignedBase := cmn.CeilAlign(rawBase, uintptr(size))
	headLen := int(alignedBase - rawBase)
	tailLen := 2*size - headLen - size

	if headLen > 0 {
		if err := unix.Munmap(raw[:headLen]); err != nil {
			debug.Infof("slabarena: munmap head(0x%x, %d) failed: %v", rawBase, headLen, err)
		}
	}
	if tailLen > 0 {
		if err := unix.Munmap(raw[headLen+size:]); err != nil {
			debug.Infof("slabarena: munmap tail(0x%x, %d) failed: %v", alignedBase+uintptr(size), tailLen, err)
		}
	}
	trimmed := unsafe.Slice((*byte)(unsafe.Pointer(alignedBase)), size)

	a.mu.Lock()
	a.live[alignedBase] = rawMapping{base: alignedBase, mem: trimmed}
	a.mu.Unlock()

	debug.Infof("slabarena: mapped %s at 0x%x (raw 0x%x, trimmed head=%d tail=%d)",
		cmn.B2S(int64(size), 1), alignedBase, rawBase, headLen, tailLen)
	return alignedBase, true
}

// Put unmaps a region previously returned by Alloc and releases its quota.
func (a *Arena) Put(base uintptr, size int) {
	a.mu.Lock()
	raw, ok := a.live[base]
	delete(a.live, base)
	a.mu.Unlock()

	cmn.AssertMsg(ok, fmt.Sprintf("slabarena: Put of unknown base 0x%x", base))
	if err := unix.Munmap(raw.mem); err != nil {
		debug.Infof("slabarena: munmap(0x%x) failed: %v", raw.base, err)
	}
	a.quota.Release(int64(size))
}
