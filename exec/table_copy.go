package exec

import "fmt"

// CopyTable copies len elements from src starting at srcIndex into dst starting at dstIndex. dst and src may be the
// same table, in which case the ranges may overlap.
//
// It returns TrapTableOutOfBounds if either range does not lie within its table, and panics if the tables' element
// types differ. Every GC reference written is cloned through gc; if gc is nil, every reference involved must be an
// i31 reference.
func CopyTable(gc GcStore, dst, src *Table, dstIndex, srcIndex, len uint64) error {
	dstStart, dstEnd, err := checkRange(dstIndex, len, dst.Size())
	if err != nil {
		return err
	}
	srcStart, srcEnd, err := checkRange(srcIndex, len, src.Size())
	if err != nil {
		return err
	}

	if dst.ElementType() != src.ElementType() {
		panic(fmt.Sprintf("reftable: cannot copy from a %v table into a %v table", src.ElementType(), dst.ElementType()))
	}

	// Distinct Table values may share storage.
	if dst.representation() == src.representation() {
		copyWithin(gc, dst, dstStart, srcStart, srcEnd-srcStart)
		return nil
	}
	copyElements(gc, dst, src, dstStart, dstEnd, srcStart, srcEnd)
	return nil
}

// copyElements copies between two distinct tables of the same element type.
func copyElements(gc GcStore, dst, src *Table, dstStart, dstEnd, srcStart, srcEnd int) {
	switch dst.ElementType() {
	case ElementTypeFunc:
		dstRefs, dstLazy := dst.funcRefs()
		srcRefs, srcLazy := src.funcRefs()
		if dstLazy == srcLazy {
			copy(dstRefs[dstStart:dstEnd], srcRefs[srcStart:srcEnd])
			return
		}
		// Tables with different tagging share no slot encoding.
		for i, r := range srcRefs[srcStart:srcEnd] {
			e := r.element(srcLazy)
			if e.IsUninit() {
				dstRefs[dstStart+i] = uninitFuncRef
			} else {
				dstRefs[dstStart+i] = encodeFuncRef(e.funcRef, dstLazy)
			}
		}
	case ElementTypeGcRef:
		dstRefs, srcRefs := dst.gcRefs(), src.gcRefs()
		for i, r := range srcRefs[srcStart:srcEnd] {
			writeGcRef(gc, &dstRefs[dstStart+i], r)
		}
	case ElementTypeCont:
		copy(dst.contRefs()[dstStart:dstEnd], src.contRefs()[srcStart:srcEnd])
	}
}

// copyWithin copies n elements from srcStart to dstStart within a single table. The ranges may overlap.
func copyWithin(gc GcStore, t *Table, dstStart, srcStart, n int) {
	if dstStart == srcStart || n == 0 {
		return
	}

	switch t.ElementType() {
	case ElementTypeFunc:
		refs, _ := t.funcRefs()
		copy(refs[dstStart:dstStart+n], refs[srcStart:srcStart+n])
	case ElementTypeGcRef:
		// Each write runs the barrier, so the direction of the walk must ensure that no source slot is overwritten
		// before it has been read.
		refs := t.gcRefs()
		if dstStart < srcStart {
			for i := 0; i < n; i++ {
				writeGcRef(gc, &refs[dstStart+i], refs[srcStart+i])
			}
		} else {
			for i := n - 1; i >= 0; i-- {
				writeGcRef(gc, &refs[dstStart+i], refs[srcStart+i])
			}
		}
	case ElementTypeCont:
		refs := t.contRefs()
		copy(refs[dstStart:dstStart+n], refs[srcStart:srcStart+n])
	}
}
