//go:build !unix

package pool

import "unsafe"

func reserve(n int) ([]byte, error) {
	// Back the region with words so that it is aligned for every slot type.
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n), nil
}

func unreserve(b []byte) error {
	return nil
}
