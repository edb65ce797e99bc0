package exec

// VMTableDefinition is the view of a table used by compiled code. Its layout is shared with code generators, which
// address its fields using the offsets below.
//
// Base is only valid until the table next grows; CurrentElements is only valid until the table next changes size.
type VMTableDefinition struct {
	// Base is the address of the table's first slot.
	Base uintptr
	// CurrentElements is the table's current size.
	CurrentElements uint
}

const ptrSize = 4 << (^uintptr(0) >> 63)

const (
	VMTableDefinitionBaseOffset            = 0
	VMTableDefinitionCurrentElementsOffset = ptrSize
	VMTableDefinitionSize                  = 2 * ptrSize
)
