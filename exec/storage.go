package exec

import (
	"errors"
	"fmt"
	"slices"
	"unsafe"
)

// ErrMisalignedBuffer is returned by NewStaticTable if the supplied buffer is not suitably aligned or sized for the
// table's slots.
var ErrMisalignedBuffer = errors.New("static table buffer is misaligned for its element type")

// slot is the set of at-rest slot representations. The zero value of each is "no value".
type slot interface {
	taggedFuncRef | GcRef | ContRef
}

// staticStorage is a slot array in memory owned by someone else, typically a pooling allocator. The length of data
// is the table's capacity and never changes; size is the current number of elements.
type staticStorage[T slot] struct {
	data []T
	size int
}

func (s *staticStorage[T]) slots() []T {
	return s.data[:s.size]
}

func (s *staticStorage[T]) base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(s.data)))
}

// grow advances the size of the table. The tail of the buffer must already be zeroed.
func (s *staticStorage[T]) grow(newSize int) {
	if debugChecks {
		var zero T
		for i, v := range s.data[s.size:newSize] {
			if v != zero {
				panic(fmt.Sprintf("reftable: static table slot %d is not zeroed", s.size+i))
			}
		}
	}
	s.size = newSize
}

// dynamicStorage is a slot array owned by the table. The length of elements is always the table's size.
type dynamicStorage[T slot] struct {
	elements []T
	maximum  int
	bounded  bool

	// stableBase is set for tables whose limits fix their size. Code compiled against such a table may assume
	// that its base address never changes, so the elements must never move.
	stableBase bool
}

func (d *dynamicStorage[T]) base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(d.elements)))
}

// grow resizes the table to newSize zeroed elements. This may move the elements.
func (d *dynamicStorage[T]) grow(newSize int) {
	if d.stableBase {
		panic("reftable: attempted to move the elements of a fixed-size table")
	}
	oldSize := len(d.elements)
	d.elements = slices.Grow(d.elements, newSize-oldSize)[:newSize]
	clear(d.elements[oldSize:])
}

// newDynamicStorage allocates zeroed storage for minimum elements. Zeroed memory is "no value" for every slot type,
// so no per-element initialization is needed.
func newDynamicStorage[T slot](limits tableLimits) dynamicStorage[T] {
	return dynamicStorage[T]{
		elements:   make([]T, limits.minimum),
		maximum:    limits.maximum,
		bounded:    limits.bounded,
		stableBase: limits.bounded && limits.minimum == limits.maximum,
	}
}

// newStaticStorage reinterprets buf as an array of slots. The usable capacity is the lesser of the number of slots
// that fit in buf and the table's maximum.
func newStaticStorage[T slot](buf []byte, limits tableLimits, declaredMin uint64) (staticStorage[T], error) {
	data, err := slotsOf[T](buf)
	if err != nil {
		return staticStorage[T]{}, err
	}
	if declaredMin > uint64(len(data)) {
		return staticStorage[T]{}, fmt.Errorf("%w: initial table size of %d exceeds the pooling allocator's configured maximum table size of %d elements",
			ErrStaticCapacityExceeded, declaredMin, len(data))
	}
	if limits.bounded && limits.maximum < len(data) {
		data = data[:limits.maximum]
	}
	return staticStorage[T]{data: data, size: limits.minimum}, nil
}

func slotsOf[T slot](buf []byte) ([]T, error) {
	if len(buf) == 0 {
		return nil, nil
	}

	var zero T
	size, align := int(unsafe.Sizeof(zero)), uintptr(unsafe.Alignof(zero))

	p := unsafe.Pointer(unsafe.SliceData(buf))
	if uintptr(p)%align != 0 || len(buf)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes at %#x (element size %d, alignment %d)", ErrMisalignedBuffer, len(buf), uintptr(p), size, align)
	}
	return unsafe.Slice((*T)(p), len(buf)/size), nil
}

// tableRepr is one of the six concrete table layouts: static or dynamic storage of function, GC or continuation
// references.
type tableRepr interface {
	isTableRepr()
}

type staticFuncTable struct {
	staticStorage[taggedFuncRef]
	lazyInit bool
}

type staticGcRefTable struct {
	staticStorage[GcRef]
}

type staticContTable struct {
	staticStorage[ContRef]
}

type dynamicFuncTable struct {
	dynamicStorage[taggedFuncRef]
	lazyInit bool
}

type dynamicGcRefTable struct {
	dynamicStorage[GcRef]
}

type dynamicContTable struct {
	dynamicStorage[ContRef]
}

func (*staticFuncTable) isTableRepr()   {}
func (*staticGcRefTable) isTableRepr()  {}
func (*staticContTable) isTableRepr()   {}
func (*dynamicFuncTable) isTableRepr()  {}
func (*dynamicGcRefTable) isTableRepr() {}
func (*dynamicContTable) isTableRepr()  {}

// fillSlots sets every element of s to v, doubling the copied region on each step.
func fillSlots[T slot](s []T, v T) {
	if len(s) == 0 {
		return
	}
	s[0] = v
	for i := 1; i < len(s); i *= 2 {
		copy(s[i:], s[:i])
	}
}
