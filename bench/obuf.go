package bench

import (
	"io"
	"unsafe"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/smalloc"
)

// OBuf is a scatter-gather output buffer: a chain of fixed-size chunks
// pulled from an Allocator, grown by appending another chunk rather than
// reallocating. Grounded on the original small library's obuf, re-expressed
// with the io.Writer idiom memsys.SGL uses for the same shape of problem.
type OBuf struct {
	a         *smalloc.Allocator
	chunks    [][]byte
	chunkSize int
	size      int64
}

var _ io.Writer = (*OBuf)(nil)

func NewOBuf(a *smalloc.Allocator, chunkSize int) *OBuf {
	return &OBuf{a: a, chunkSize: chunkSize}
}

func (b *OBuf) Size() int64 { return b.size }
func (b *OBuf) Cap() int64  { return int64(len(b.chunks)) * int64(b.chunkSize) }

func (b *OBuf) grow() {
	ptr := b.a.Alloc(b.chunkSize)
	cmn.AssertMsg(ptr != nil, "bench: obuf out of memory")
	b.chunks = append(b.chunks, unsafe.Slice((*byte)(ptr), b.chunkSize))
}

// Write appends p, growing the chunk chain as needed. Always succeeds.
func (b *OBuf) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if b.size == b.Cap() {
			b.grow()
		}
		idx := b.size / int64(b.chunkSize)
		off := b.size % int64(b.chunkSize)
		n := copy(b.chunks[idx][off:], p[written:])
		b.size += int64(n)
		written += n
	}
	return written, nil
}

// Reset rewinds size to 0, keeping the chunk chain for reuse -- matching
// the original obuf_reset, which never shrinks capacity.
func (b *OBuf) Reset() { b.size = 0 }

// Destroy releases every chunk back to the allocator.
func (b *OBuf) Destroy() {
	for _, c := range b.chunks {
		b.a.Free(unsafe.Pointer(&c[0]), len(c))
	}
	b.chunks = nil
	b.size = 0
}
