package exec

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsTrap(t *testing.T) {
	trap, ok := AsTrap(TrapUninitializedElement)
	assert.True(t, ok)
	assert.Equal(t, TrapUninitializedElement, trap)

	func() {
		defer func() {
			trap, ok := AsTrap(recover())
			assert.True(t, ok)
			assert.Equal(t, TrapTableOutOfBounds, trap)
		}()

		var s []GcRef
		i := 3
		_ = s[i]
	}()

	_, ok = AsTrap("not a trap")
	assert.False(t, ok)
}

func TestTranslateRuntimeError(t *testing.T) {
	_, ok := TranslateRuntimeError(nil)
	assert.False(t, ok)

	func() {
		defer func() {
			err, ok := recover().(runtime.Error)
			require.True(t, ok)
			trap, ok := TranslateRuntimeError(err)
			assert.True(t, ok)
			assert.Equal(t, TrapTableOutOfBounds, trap)
		}()

		s := make([]taggedFuncRef, 2)
		i := 5
		_ = s[:i]
	}()
}
