// Package bench supplements the core allocator with the input/output
// buffer consumers and benchmark scenarios that exercise it as an external
// API user, out of scope for the core packages themselves.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package bench

import (
	"unsafe"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/smalloc"
)

// IBuf is a single contiguous growable buffer over an Allocator: bump-alloc
// within the current backing, reallocating into a larger one (copying live
// bytes across) once it no longer fits. Grounded on the original small
// library's ibuf.
type IBuf struct {
	a    *smalloc.Allocator
	buf  []byte
	used int
}

// NewIBuf creates an IBuf with an initial backing of at least startCapacity
// bytes.
func NewIBuf(a *smalloc.Allocator, startCapacity int) *IBuf {
	b := &IBuf{a: a}
	b.grow(startCapacity)
	return b
}

func (b *IBuf) Used() int { return b.used }
func (b *IBuf) Cap() int  { return len(b.buf) }

// Alloc reserves n bytes at the end of the buffer, growing it first if
// necessary, and returns them as a slice.
func (b *IBuf) Alloc(n int) []byte {
	if b.used+n > len(b.buf) {
		b.grow(b.used + n)
	}
	out := b.buf[b.used : b.used+n]
	b.used += n
	return out
}

func (b *IBuf) grow(need int) {
	newCap := cmn.MaxI(need, 2*len(b.buf))
	ptr := b.a.Alloc(newCap)
	cmn.AssertMsg(ptr != nil, "bench: ibuf out of memory")
	newBuf := unsafe.Slice((*byte)(ptr), newCap)
	copy(newBuf, b.buf[:b.used])
	if b.buf != nil {
		b.a.Free(unsafe.Pointer(&b.buf[0]), len(b.buf))
	}
	b.buf = newBuf
}

// Reset rewinds Used to 0 without releasing the backing allocation.
func (b *IBuf) Reset() { b.used = 0 }

// Close releases the backing allocation.
func (b *IBuf) Close() {
	if b.buf != nil {
		b.a.Free(unsafe.Pointer(&b.buf[0]), len(b.buf))
		b.buf = nil
	}
	b.used = 0
}
