package exec

import "fmt"

const (
	// FuncRefInitBit marks an initialized slot in a lazily-initialized function table.
	FuncRefInitBit uintptr = 1
	// FuncRefMask strips FuncRefInitBit from a slot.
	FuncRefMask = ^FuncRefInitBit
)

// taggedFuncRef is the at-rest representation of a slot in a function table. Whether the value is tagged depends on
// the table's lazy initialization setting:
//
//   - 0 in an untagged table: a null function
//   - addr in an untagged table: a non-null function
//   - 0 in a tagged table: an uninitialized slot
//   - FuncRefInitBit in a tagged table: a null function
//   - addr|FuncRefInitBit in a tagged table: a non-null function
//
// Slots are plain words, so the collector never observes a tagged address. Values of this type must only be built by
// encodeFuncRef and only be read by element.
type taggedFuncRef uintptr

const uninitFuncRef taggedFuncRef = 0

func encodeFuncRef(f FuncRef, lazyInit bool) taggedFuncRef {
	if uintptr(f)&FuncRefInitBit != 0 {
		panic(fmt.Sprintf("reftable: misaligned function reference %#x", uintptr(f)))
	}
	if lazyInit {
		return taggedFuncRef(uintptr(f) | FuncRefInitBit)
	}
	return taggedFuncRef(f)
}

func (t taggedFuncRef) element(lazyInit bool) TableElement {
	if lazyInit && t == uninitFuncRef {
		return UninitFuncElement()
	}
	return FuncRefElement(FuncRef(uintptr(t) & FuncRefMask))
}
