package pool

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

var pageSize = os.Getpagesize()

// reset zeroes b. Whole pages are returned to the kernel, which zero-fills them on their next use.
func reset(b []byte) {
	start := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	end := start + uintptr(len(b))

	mask := uintptr(pageSize - 1)
	pageStart, pageEnd := (start+mask)&^mask, end&^mask
	if pageStart >= pageEnd {
		clear(b)
		return
	}

	head, tail := int(pageStart-start), int(pageEnd-start)
	if err := unix.Madvise(b[head:tail], unix.MADV_DONTNEED); err != nil {
		clear(b)
		return
	}
	clear(b[:head])
	clear(b[tail:])
}
