package exec

import (
	"errors"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// ErrTableMinimumExceedsLimits is returned when a table's minimum size is rejected by the resource limiter or cannot
// be represented on the host.
var ErrTableMinimumExceedsLimits = errors.New("table minimum size exceeds table limits")

// ErrStaticCapacityExceeded is returned by NewStaticTable if the table's minimum size does not fit in the supplied
// buffer.
var ErrStaticCapacityExceeded = errors.New("static table capacity exceeded")

// ErrFeatureDisabled is returned when a table's reference type requires a core feature that is not enabled.
var ErrFeatureDisabled = errors.New("feature disabled")

// A Table is a WASM table.
//
// Tables are not safe for concurrent use. Operations that change a table require exclusive access, and Get must not
// run concurrently with them, as reading a GC reference clones it through the GC store.
//
// The zero value is an empty function table that cannot grow.
type Table struct {
	repr tableRepr
}

type tableLimits struct {
	minimum int
	maximum int
	bounded bool
}

// NewDynamicTable creates a table whose elements are allocated and owned by the table. Growing the table may move
// its elements.
func NewDynamicTable(ty TableType, tunables Tunables, limiter ResourceLimiter) (*Table, error) {
	et, limits, err := limitNew(ty, tunables, limiter)
	if err != nil {
		return nil, err
	}

	var t Table
	switch et {
	case ElementTypeFunc:
		t.repr = &dynamicFuncTable{dynamicStorage: newDynamicStorage[taggedFuncRef](limits), lazyInit: tunables.TableLazyInit}
	case ElementTypeGcRef:
		t.repr = &dynamicGcRefTable{dynamicStorage: newDynamicStorage[GcRef](limits)}
	case ElementTypeCont:
		t.repr = &dynamicContTable{dynamicStorage: newDynamicStorage[ContRef](limits)}
	}

	Logger().Debug("created dynamic table", tableFields(&t, ty)...)
	return &t, nil
}

// NewStaticTable creates a table whose elements live in buf. The table's capacity is the lesser of the number of
// elements that fit in buf and the table's maximum size; the table never moves, frees or resizes buf.
//
// The caller must ensure that buf is zeroed, outlives the table, and is not accessed by anything else while the table
// is in use.
func NewStaticTable(ty TableType, tunables Tunables, buf []byte, limiter ResourceLimiter) (*Table, error) {
	et, limits, err := limitNew(ty, tunables, limiter)
	if err != nil {
		return nil, err
	}

	var t Table
	switch et {
	case ElementTypeFunc:
		storage, err := newStaticStorage[taggedFuncRef](buf, limits, ty.Limits.Min)
		if err != nil {
			return nil, err
		}
		t.repr = &staticFuncTable{staticStorage: storage, lazyInit: tunables.TableLazyInit}
	case ElementTypeGcRef:
		storage, err := newStaticStorage[GcRef](buf, limits, ty.Limits.Min)
		if err != nil {
			return nil, err
		}
		t.repr = &staticGcRefTable{staticStorage: storage}
	case ElementTypeCont:
		storage, err := newStaticStorage[ContRef](buf, limits, ty.Limits.Min)
		if err != nil {
			return nil, err
		}
		t.repr = &staticContTable{staticStorage: storage}
	}

	Logger().Debug("created static table", tableFields(&t, ty)...)
	return &t, nil
}

// limitNew asks the limiter whether a table of the given type may be created. It returns the table's element type
// and its host limits.
func limitNew(ty TableType, tunables Tunables, limiter ResourceLimiter) (ElementType, tableLimits, error) {
	et, ok := ElementTypeOf(ty.RefType)
	if !ok {
		return 0, tableLimits{}, fmt.Errorf("unknown table reference type %s", RefTypeName(ty.RefType))
	}
	if et != ElementTypeFunc {
		if err := tunables.features().RequireEnabled(api.CoreFeatureReferenceTypes); err != nil {
			return 0, tableLimits{}, fmt.Errorf("%w: %s table: %v", ErrFeatureDisabled, RefTypeName(ty.RefType), err)
		}
	}

	// An unrepresentable minimum is reported after the limiter has been informed of the request.
	minimum, minimumOK := toIndex(ty.Limits.Min)

	limits := tableLimits{minimum: minimum, bounded: true}
	switch {
	case ty.Limits.Max != nil:
		limits.maximum, limits.bounded = toIndex(*ty.Limits.Max)
	case ty.IndexType == IndexTypeI64:
		limits.maximum = clampIndex(math.MaxUint64)
	default:
		limits.maximum = clampIndex(math.MaxUint32)
	}

	desired := minimum
	if !minimumOK {
		desired = math.MaxInt
	}
	allowed, err := limiterOrDefault(limiter).TableGrowing(0, desired, limits.maximum, limits.bounded)
	if err != nil {
		return 0, tableLimits{}, err
	}
	if !allowed || !minimumOK {
		return 0, tableLimits{}, fmt.Errorf("%w: minimum size of %d elements", ErrTableMinimumExceedsLimits, ty.Limits.Min)
	}
	return et, limits, nil
}

func tableFields(t *Table, ty TableType) []zap.Field {
	fields := []zap.Field{
		zap.String("type", ty.String()),
		zap.Stringer("element", t.ElementType()),
		zap.Int("size", t.Size()),
		zap.Bool("lazyInit", t.LazyInit()),
	}
	if maximum, ok := t.Maximum(); ok {
		fields = append(fields, zap.Int("maximum", maximum))
	}
	return fields
}

func (t *Table) representation() tableRepr {
	if t.repr == nil {
		t.repr = &staticFuncTable{}
	}
	return t.repr
}

// ElementType returns the type of the elements in this table.
func (t *Table) ElementType() ElementType {
	switch t.representation().(type) {
	case *staticFuncTable, *dynamicFuncTable:
		return ElementTypeFunc
	case *staticGcRefTable, *dynamicGcRefTable:
		return ElementTypeGcRef
	case *staticContTable, *dynamicContTable:
		return ElementTypeCont
	default:
		panic("unreachable")
	}
}

// IsStatic returns true if the table's storage is owned by someone other than the table.
func (t *Table) IsStatic() bool {
	switch t.representation().(type) {
	case *staticFuncTable, *staticGcRefTable, *staticContTable:
		return true
	default:
		return false
	}
}

// LazyInit returns true if this is a function table whose unwritten elements read back as uninitialized.
func (t *Table) LazyInit() bool {
	switch r := t.representation().(type) {
	case *staticFuncTable:
		return r.lazyInit
	case *dynamicFuncTable:
		return r.lazyInit
	default:
		return false
	}
}

// Size returns the current number of elements in the table.
func (t *Table) Size() int {
	switch r := t.representation().(type) {
	case *staticFuncTable:
		return r.size
	case *staticGcRefTable:
		return r.size
	case *staticContTable:
		return r.size
	case *dynamicFuncTable:
		return len(r.elements)
	case *dynamicGcRefTable:
		return len(r.elements)
	case *dynamicContTable:
		return len(r.elements)
	default:
		panic("unreachable")
	}
}

// Maximum returns the maximum number of elements the table may hold at runtime. It returns false if the table is
// unbounded.
//
// The runtime maximum of a static table is its capacity, which may be lower than the maximum of its declared type.
func (t *Table) Maximum() (int, bool) {
	switch r := t.representation().(type) {
	case *staticFuncTable:
		return len(r.data), true
	case *staticGcRefTable:
		return len(r.data), true
	case *staticContTable:
		return len(r.data), true
	case *dynamicFuncTable:
		return r.maximum, r.bounded
	case *dynamicGcRefTable:
		return r.maximum, r.bounded
	case *dynamicContTable:
		return r.maximum, r.bounded
	default:
		panic("unreachable")
	}
}

func (t *Table) funcRefs() ([]taggedFuncRef, bool) {
	switch r := t.representation().(type) {
	case *staticFuncTable:
		return r.slots(), r.lazyInit
	case *dynamicFuncTable:
		return r.elements, r.lazyInit
	default:
		panic(fmt.Sprintf("reftable: %v table is not a function table", t.ElementType()))
	}
}

func (t *Table) gcRefs() []GcRef {
	switch r := t.representation().(type) {
	case *staticGcRefTable:
		return r.slots()
	case *dynamicGcRefTable:
		return r.elements
	default:
		panic(fmt.Sprintf("reftable: %v table is not a GC reference table", t.ElementType()))
	}
}

func (t *Table) contRefs() []ContRef {
	switch r := t.representation().(type) {
	case *staticContTable:
		return r.slots()
	case *dynamicContTable:
		return r.elements
	default:
		panic(fmt.Sprintf("reftable: %v table is not a continuation table", t.ElementType()))
	}
}

// GcRefs returns the table's GC references. The slice aliases the table's storage and is only valid until the table
// next grows. It panics if this is not a table of GC references.
func (t *Table) GcRefs() []GcRef {
	return t.gcRefs()
}

// checkRange validates that [dst, dst+len) lies within a table of the given size.
func checkRange(dst, len uint64, size int) (int, int, error) {
	start, ok := toIndex(dst)
	if !ok {
		return 0, 0, TrapTableOutOfBounds
	}
	n, ok := toIndex(len)
	if !ok || n > size || start > size-n {
		return 0, 0, TrapTableOutOfBounds
	}
	return start, start + n, nil
}

// Get returns the element at index. It returns false if index is out of bounds.
//
// GC references are cloned through gc. If gc is nil, the table must only contain i31 references.
func (t *Table) Get(gc GcStore, index uint64) (TableElement, bool) {
	i, ok := toIndex(index)
	if !ok {
		return TableElement{}, false
	}

	switch t.ElementType() {
	case ElementTypeFunc:
		refs, lazyInit := t.funcRefs()
		if i >= len(refs) {
			return TableElement{}, false
		}
		return refs[i].element(lazyInit), true
	case ElementTypeGcRef:
		refs := t.gcRefs()
		if i >= len(refs) {
			return TableElement{}, false
		}
		return GcRefElement(cloneGcRef(gc, refs[i])), true
	default:
		refs := t.contRefs()
		if i >= len(refs) {
			return TableElement{}, false
		}
		return ContRefElement(refs[i]), true
	}
}

// FuncRefForCall returns the function that an indirect call through index would invoke.
//
// It returns TrapUndefinedElement if index is out of bounds, TrapUninitializedElement if the slot has not been
// initialized, and TrapIndirectCallToNull if the slot holds the null reference. It panics if t is not a function
// table.
func (t *Table) FuncRefForCall(index uint64) (FuncRef, error) {
	refs, lazyInit := t.funcRefs()
	i, ok := toIndex(index)
	if !ok || i >= len(refs) {
		return 0, TrapUndefinedElement
	}

	e := refs[i].element(lazyInit)
	switch {
	case e.IsUninit():
		return 0, TrapUninitializedElement
	case e.funcRef == 0:
		return 0, TrapIndirectCallToNull
	default:
		return e.funcRef, nil
	}
}

// Set overwrites the element at index. It returns false if index is out of bounds.
//
// Set stores GC references as-is: ownership of elem's reference passes to the table, and the slot's previous
// reference is not released. It panics if elem's type does not match the table.
func (t *Table) Set(index uint64, elem TableElement) bool {
	i, ok := toIndex(index)
	if !ok {
		return false
	}

	switch elem.kind {
	case elementFuncRef, elementUninitFunc:
		refs, lazyInit := t.funcRefs()
		if i >= len(refs) {
			return false
		}
		if elem.kind == elementUninitFunc {
			refs[i] = uninitFuncRef
		} else {
			refs[i] = encodeFuncRef(elem.funcRef, lazyInit)
		}
	case elementGcRef:
		refs := t.gcRefs()
		if i >= len(refs) {
			return false
		}
		refs[i] = elem.gcRef
	case elementContRef:
		refs := t.contRefs()
		if i >= len(refs) {
			return false
		}
		refs[i] = elem.contRef
	}
	return true
}

// Fill sets the elements in [dst, dst+len) to val. It returns TrapTableOutOfBounds if the range does not lie within
// the table.
//
// If the range is in bounds, a GC reference in val is consumed: each filled slot receives its own clone through gc,
// and val's reference is dropped once the slots have been written. If Fill traps, the table is unchanged and the
// caller retains ownership of val's reference. If gc is nil, every reference involved must be an i31 reference. Fill
// panics if val's type does not match the table.
func (t *Table) Fill(gc GcStore, dst uint64, val TableElement, len uint64) error {
	start, end, err := checkRange(dst, len, t.Size())
	if err != nil {
		return err
	}

	switch val.kind {
	case elementFuncRef:
		refs, lazyInit := t.funcRefs()
		fillSlots(refs[start:end], encodeFuncRef(val.funcRef, lazyInit))
	case elementUninitFunc:
		refs, _ := t.funcRefs()
		fillSlots(refs[start:end], uninitFuncRef)
	case elementGcRef:
		refs := t.gcRefs()
		for i := start; i < end; i++ {
			writeGcRef(gc, &refs[i], val.gcRef)
		}
		dropGcRef(gc, val.gcRef)
	case elementContRef:
		fillSlots(t.contRefs()[start:end], val.contRef)
	}
	return nil
}

// InitFunc copies items into the elements at [dst, dst+len(items)). It returns TrapTableOutOfBounds if the range does
// not lie within the table, and panics if this is not a function table.
func (t *Table) InitFunc(dst uint64, items []FuncRef) error {
	refs, lazyInit := t.funcRefs()
	start, _, err := checkRange(dst, uint64(len(items)), len(refs))
	if err != nil {
		return err
	}
	for i, f := range items {
		refs[start+i] = encodeFuncRef(f, lazyInit)
	}
	return nil
}

// InitGcRefs copies items into the elements at [dst, dst+len(items)). It returns TrapTableOutOfBounds if the range
// does not lie within the table, and panics if this is not a table of GC references.
//
// No write barriers are run: ownership of each item passes to the table and the slots' previous references are not
// released, matching the instantiation-time application of element segments.
func (t *Table) InitGcRefs(dst uint64, items []GcRef) error {
	refs := t.gcRefs()
	start, end, err := checkRange(dst, uint64(len(items)), len(refs))
	if err != nil {
		return err
	}
	copy(refs[start:end], items)
	return nil
}

// Grow grows the table by delta elements, each initialized to init. It returns the previous size of the table and
// true if the table grew.
//
// Growth is rejected, returning false and leaving the table unchanged, if the new size overflows, if limiter
// declines it, or if it would exceed the table's maximum. A non-nil error is only returned if limiter fails, in which
// case the operation that requested the growth must fail as well. A GC reference in init is consumed if the table
// grows; otherwise the caller retains ownership of it.
//
// Growing a dynamic table may move its elements. Every VMTableDefinition previously obtained from the table must be
// refreshed before compiled code accesses the table again. Grow panics if init's type does not match the table.
func (t *Table) Grow(limiter ResourceLimiter, gc GcStore, delta uint64, init TableElement) (int, bool, error) {
	if !t.ElementType().matches(init) {
		panic(fmt.Sprintf("reftable: cannot grow %v table with %v", t.ElementType(), init))
	}

	limiter = limiterOrDefault(limiter)

	oldSize := t.Size()
	if delta == 0 {
		if r, ok := init.GcRef(); ok {
			dropGcRef(gc, r)
		}
		return oldSize, true, nil
	}

	n, ok := toIndex(delta)
	if !ok || n > math.MaxInt-oldSize {
		if err := limiter.TableGrowFailed(ErrTableGrowOverflow); err != nil {
			return oldSize, false, err
		}
		return oldSize, false, nil
	}
	newSize := oldSize + n

	maximum, bounded := t.Maximum()
	allowed, err := limiter.TableGrowing(oldSize, newSize, maximum, bounded)
	if err != nil {
		return oldSize, false, err
	}
	if !allowed {
		return oldSize, false, nil
	}

	// Growth beyond the declared maximum must fail. The maximum of a static table may also have been lowered by its
	// allocator.
	if bounded && newSize > maximum {
		if err := limiter.TableGrowFailed(ErrTableMaximumExceeded); err != nil {
			return oldSize, false, err
		}
		return oldSize, false, nil
	}

	switch r := t.representation().(type) {
	case *staticFuncTable:
		r.grow(newSize)
	case *staticGcRefTable:
		r.grow(newSize)
	case *staticContTable:
		r.grow(newSize)
	case *dynamicFuncTable:
		r.grow(newSize)
	case *dynamicGcRefTable:
		r.grow(newSize)
	case *dynamicContTable:
		r.grow(newSize)
	}

	if err := t.Fill(gc, uint64(oldSize), init, uint64(n)); err != nil {
		panic("reftable: grown region is out of bounds")
	}
	return oldSize, true, nil
}

// VMTable returns the definition of this table as seen by compiled code.
func (t *Table) VMTable() VMTableDefinition {
	var base uintptr
	switch r := t.representation().(type) {
	case *staticFuncTable:
		base = r.base()
	case *staticGcRefTable:
		base = r.base()
	case *staticContTable:
		base = r.base()
	case *dynamicFuncTable:
		base = r.base()
	case *dynamicGcRefTable:
		base = r.base()
	case *dynamicContTable:
		base = r.base()
	}
	return VMTableDefinition{Base: base, CurrentElements: uint(t.Size())}
}
