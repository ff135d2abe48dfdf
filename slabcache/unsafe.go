package slabcache

import "unsafe"

// sliceAt views the size bytes starting at base (an address returned by the
// arena) as a []byte without copying.
func sliceAt(base uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size)
}
