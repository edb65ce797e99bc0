package exec

import (
	"fmt"
	"unsafe"

	"github.com/tetratelabs/wazero/api"
)

// ElementType is the kind of element stored in a table. A table's element type never changes.
type ElementType uint8

const (
	// ElementTypeFunc tables hold function references.
	ElementTypeFunc ElementType = iota
	// ElementTypeGcRef tables hold garbage-collected references (externref, anyref and friends).
	ElementTypeGcRef
	// ElementTypeCont tables hold continuation references.
	ElementTypeCont
)

func (t ElementType) String() string {
	switch t {
	case ElementTypeFunc:
		return "func"
	case ElementTypeGcRef:
		return "gcref"
	case ElementTypeCont:
		return "cont"
	default:
		return fmt.Sprintf("ElementType(%d)", uint8(t))
	}
}

// Size returns the number of bytes occupied by a single at-rest slot of this element type.
func (t ElementType) Size() int {
	switch t {
	case ElementTypeFunc:
		return int(unsafe.Sizeof(taggedFuncRef(0)))
	case ElementTypeGcRef:
		return int(unsafe.Sizeof(GcRef(0)))
	case ElementTypeCont:
		return int(unsafe.Sizeof(ContRef{}))
	default:
		panic("unreachable")
	}
}

func (t ElementType) matches(e TableElement) bool {
	switch e.kind {
	case elementFuncRef, elementUninitFunc:
		return t == ElementTypeFunc
	case elementGcRef:
		return t == ElementTypeGcRef
	case elementContRef:
		return t == ElementTypeCont
	default:
		return false
	}
}

// NominalMaxElementSize is the largest slot size of the function and GC reference element types. Continuation
// slots are excluded; pooled storage is sized in terms of this value.
const NominalMaxElementSize = unsafe.Sizeof(taggedFuncRef(0))

// RefType is the reference type tag of a declared table.
type RefType = api.ValueType

const (
	// RefTypeFuncref is a nullable reference to a function.
	RefTypeFuncref RefType = 0x70
	// RefTypeExternref is a nullable reference to a host object.
	RefTypeExternref RefType = api.ValueTypeExternref
	// RefTypeAnyref is a nullable reference to a GC heap object.
	RefTypeAnyref RefType = 0x6e
	// RefTypeContref is a nullable reference to a continuation.
	RefTypeContref RefType = 0x68
)

// RefTypeName returns the text format name of the given reference type.
func RefTypeName(t RefType) string {
	switch t {
	case RefTypeFuncref:
		return "funcref"
	case RefTypeExternref:
		return api.ValueTypeName(t)
	case RefTypeAnyref:
		return "anyref"
	case RefTypeContref:
		return "contref"
	default:
		return fmt.Sprintf("unknown(0x%x)", t)
	}
}

// ElementTypeOf returns the element type used to store references of the given type.
func ElementTypeOf(t RefType) (ElementType, bool) {
	switch t {
	case RefTypeFuncref:
		return ElementTypeFunc, true
	case RefTypeExternref, RefTypeAnyref:
		return ElementTypeGcRef, true
	case RefTypeContref:
		return ElementTypeCont, true
	default:
		return 0, false
	}
}

// FuncRef is the address of a function's metadata. Zero is the null function reference.
//
// The metadata must be at least 2-byte aligned and must be kept alive by its owner for as long as any table holds
// the reference.
type FuncRef uintptr

// GcRef is an opaque handle to a GC heap object. Zero is the null reference. Handles with the low bit set are i31
// references: small integers that live in the handle itself and are never retained or released.
type GcRef uint32

const i31Tag GcRef = 1

// NewI31Ref returns an i31 reference holding the low 31 bits of v.
func NewI31Ref(v uint32) GcRef {
	return GcRef(v<<1) | i31Tag
}

// IsI31 returns true if r is an i31 reference.
func (r GcRef) IsI31() bool {
	return r&i31Tag != 0
}

// I31Value returns the integer stored in an i31 reference.
func (r GcRef) I31Value() uint32 {
	return uint32(r >> 1)
}

// CopyI31 copies an i31 reference by value. It panics if r is not an i31 reference, as any other reference must be
// cloned through a GcStore.
func (r GcRef) CopyI31() GcRef {
	if !r.IsI31() {
		panic(fmt.Sprintf("reftable: GC reference %#x is not an i31 reference", uint32(r)))
	}
	return r
}

// ContRef is a reference to a suspended continuation. The zero value is the null reference.
type ContRef struct {
	Contref  uintptr
	Revision uint64
}

// IsNull returns true if c is the null continuation reference.
func (c ContRef) IsNull() bool {
	return c == ContRef{}
}

type elementKind uint8

const (
	elementFuncRef elementKind = iota
	elementGcRef
	elementContRef
	elementUninitFunc
)

// TableElement is a value going into or coming out of a table. The zero value is a null function reference.
//
// The uninitialized function element only exists inside lazily-initialized function tables; callers that read one
// must initialize the slot before the value escapes to WebAssembly.
type TableElement struct {
	kind    elementKind
	funcRef FuncRef
	gcRef   GcRef
	contRef ContRef
}

// FuncRefElement returns a function reference element. A zero f is the null function reference.
func FuncRefElement(f FuncRef) TableElement {
	return TableElement{kind: elementFuncRef, funcRef: f}
}

// GcRefElement returns a GC reference element. A zero r is the null reference.
func GcRefElement(r GcRef) TableElement {
	return TableElement{kind: elementGcRef, gcRef: r}
}

// ContRefElement returns a continuation reference element.
func ContRefElement(c ContRef) TableElement {
	return TableElement{kind: elementContRef, contRef: c}
}

// UninitFuncElement returns the uninitialized function element.
func UninitFuncElement() TableElement {
	return TableElement{kind: elementUninitFunc}
}

// Type returns the element type of tables that can hold this element.
func (e TableElement) Type() ElementType {
	switch e.kind {
	case elementGcRef:
		return ElementTypeGcRef
	case elementContRef:
		return ElementTypeCont
	default:
		return ElementTypeFunc
	}
}

// IsUninit returns true if e is the uninitialized function element.
func (e TableElement) IsUninit() bool {
	return e.kind == elementUninitFunc
}

// FuncRef returns the function reference held by e, if e is an initialized function element.
func (e TableElement) FuncRef() (FuncRef, bool) {
	return e.funcRef, e.kind == elementFuncRef
}

// GcRef returns the GC reference held by e, if e is a GC reference element.
func (e TableElement) GcRef() (GcRef, bool) {
	return e.gcRef, e.kind == elementGcRef
}

// ContRef returns the continuation reference held by e, if e is a continuation element.
func (e TableElement) ContRef() (ContRef, bool) {
	return e.contRef, e.kind == elementContRef
}

// FuncRefAssertingInitialized returns the function reference held by e. It panics if e is uninitialized or is not a
// function element.
func (e TableElement) FuncRefAssertingInitialized() FuncRef {
	switch e.kind {
	case elementFuncRef:
		return e.funcRef
	case elementUninitFunc:
		panic("reftable: uninitialized table element value outside of table slot")
	case elementGcRef:
		panic("reftable: GC reference is not a function reference")
	default:
		panic("reftable: continuation reference is not a function reference")
	}
}

func (e TableElement) String() string {
	switch e.kind {
	case elementFuncRef:
		if e.funcRef == 0 {
			return "ref.null func"
		}
		return fmt.Sprintf("funcref(%#x)", uintptr(e.funcRef))
	case elementGcRef:
		switch {
		case e.gcRef == 0:
			return "ref.null any"
		case e.gcRef.IsI31():
			return fmt.Sprintf("i31(%d)", e.gcRef.I31Value())
		default:
			return fmt.Sprintf("gcref(%#x)", uint32(e.gcRef))
		}
	case elementContRef:
		if e.contRef.IsNull() {
			return "ref.null cont"
		}
		return fmt.Sprintf("contref(%#x@%d)", e.contRef.Contref, e.contRef.Revision)
	default:
		return "uninit"
	}
}
