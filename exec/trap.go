package exec

import (
	"runtime"
	"strings"
)

// A Trap represents a WASM trap.
type Trap string

func (t Trap) Error() string {
	return string(t)
}

// TrapTableOutOfBounds indicates an access to a table element or range that lies outside of the table.
var TrapTableOutOfBounds = Trap("out of bounds table access")

// TrapUndefinedElement indicates an attempt to call through a table with an index that is out of bounds.
var TrapUndefinedElement = Trap("undefined element")

// TrapUninitializedElement indicates an attempt to use an uninitialized table element.
var TrapUninitializedElement = Trap("uninitialized element")

// TrapIndirectCallToNull indicates an attempt to call a null function reference.
var TrapIndirectCallToNull = Trap("indirect call to null")

// TranslateRuntimeError is a utility function that translates between Go runtime errors raised while accessing table
// storage and WASM traps.
func TranslateRuntimeError(err runtime.Error) (Trap, bool) {
	switch {
	case err == nil:
		return "", false
	case strings.HasPrefix(err.Error(), "runtime error: index out of range"):
		return TrapTableOutOfBounds, true
	case strings.HasPrefix(err.Error(), "runtime error: slice bounds out of range"):
		return TrapTableOutOfBounds, true
	default:
		return "", false
	}
}

// AsTrap converts the result of a call to recover() into a trap, if it represents one.
func AsTrap(x interface{}) (Trap, bool) {
	switch x := x.(type) {
	case Trap:
		return x, true
	case runtime.Error:
		return TranslateRuntimeError(x)
	default:
		return "", false
	}
}
