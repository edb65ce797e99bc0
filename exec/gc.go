package exec

import "fmt"

// A GcStore owns the GC heap that a table's GC references point into. Tables never copy a non-i31 GC reference by
// value; every copy is a clone, and every overwrite goes through WriteGcRef so that each live reference corresponds
// to exactly one retain.
type GcStore interface {
	// WriteGcRef overwrites *slot with src: it retains src (if any) and releases the slot's previous occupant (if
	// any).
	WriteGcRef(slot *GcRef, src GcRef)
	// CloneGcRef retains r and returns the new reference.
	CloneGcRef(r GcRef) GcRef
	// DropGcRef releases r.
	DropGcRef(r GcRef)
}

// writeGcRef writes src into slot. Without a store, only i31 references may be involved.
func writeGcRef(gc GcStore, slot *GcRef, src GcRef) {
	if gc != nil {
		gc.WriteGcRef(slot, src)
		return
	}
	if debugChecks && *slot != 0 && !slot.IsI31() {
		panic(fmt.Sprintf("reftable: overwriting GC reference %#x without a GC store", uint32(*slot)))
	}
	if src != 0 {
		src = src.CopyI31()
	}
	*slot = src
}

// cloneGcRef clones r. Without a store, r must be null or an i31 reference.
func cloneGcRef(gc GcStore, r GcRef) GcRef {
	switch {
	case r == 0:
		return 0
	case gc != nil:
		return gc.CloneGcRef(r)
	default:
		return r.CopyI31()
	}
}

// dropGcRef releases r. Without a store, r must be null or an i31 reference.
func dropGcRef(gc GcStore, r GcRef) {
	switch {
	case r == 0:
	case gc != nil:
		gc.DropGcRef(r)
	default:
		r.CopyI31()
	}
}
