// Package gc provides a reference-counted GC heap whose handles can be stored in tables of GC references.
package gc

import (
	"fmt"

	"github.com/willf/bitset"

	"github.com/pgavlin/reftable/exec"
)

// A Heap is a reference-counted store of opaque objects. Each handle it returns is retained once per outstanding
// reference; dropping the last reference frees the handle for reuse. i31 references are never retained.
//
// A Heap is not safe for concurrent use.
type Heap struct {
	counts []uint32
	live   bitset.BitSet
	free   []uint
}

var _ exec.GcStore = (*Heap)(nil)

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	// Slot 0 backs the null reference and is never allocated.
	return &Heap{counts: make([]uint32, 1)}
}

func handleIndex(r exec.GcRef) uint {
	return uint(r >> 1)
}

func handleOf(index uint) exec.GcRef {
	return exec.GcRef(index << 1)
}

// Alloc allocates a new object and returns a handle to it with a reference count of one.
func (h *Heap) Alloc() exec.GcRef {
	var index uint
	if n := len(h.free); n != 0 {
		index, h.free = h.free[n-1], h.free[:n-1]
	} else {
		index = uint(len(h.counts))
		if index > 1<<31-1 {
			panic("gc: heap exhausted")
		}
		h.counts = append(h.counts, 0)
	}
	h.counts[index] = 1
	h.live.Set(index)
	return handleOf(index)
}

func (h *Heap) checkLive(r exec.GcRef) uint {
	index := handleIndex(r)
	if index >= uint(len(h.counts)) || !h.live.Test(index) {
		panic(fmt.Sprintf("gc: use of freed or unknown reference %#x", uint32(r)))
	}
	return index
}

// CloneGcRef retains r and returns it.
func (h *Heap) CloneGcRef(r exec.GcRef) exec.GcRef {
	if r == 0 || r.IsI31() {
		return r
	}
	h.counts[h.checkLive(r)]++
	return r
}

// DropGcRef releases r. The object is freed when its last reference is dropped.
func (h *Heap) DropGcRef(r exec.GcRef) {
	if r == 0 || r.IsI31() {
		return
	}
	index := h.checkLive(r)
	if h.counts[index]--; h.counts[index] == 0 {
		h.live.Clear(index)
		h.free = append(h.free, index)
	}
}

// WriteGcRef stores a clone of src in *slot and releases the slot's previous reference.
func (h *Heap) WriteGcRef(slot *exec.GcRef, src exec.GcRef) {
	src = h.CloneGcRef(src)
	old := *slot
	*slot = src
	h.DropGcRef(old)
}

// RefCount returns the number of outstanding references to r. Null and i31 references always report zero.
func (h *Heap) RefCount(r exec.GcRef) int {
	if r == 0 || r.IsI31() {
		return 0
	}
	index := handleIndex(r)
	if index >= uint(len(h.counts)) || !h.live.Test(index) {
		return 0
	}
	return int(h.counts[index])
}

// Live returns the total number of outstanding references across all objects.
func (h *Heap) Live() int {
	total := 0
	for i, ok := h.live.NextSet(0); ok; i, ok = h.live.NextSet(i + 1) {
		total += int(h.counts[i])
	}
	return total
}

// LiveObjects returns the number of allocated objects.
func (h *Heap) LiveObjects() int {
	return int(h.live.Count())
}
