package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuncRefEncoding(t *testing.T) {
	const addr = FuncRef(0x1000)

	cases := []struct {
		name     string
		f        FuncRef
		lazyInit bool
		slot     taggedFuncRef
	}{
		{"null", 0, false, 0},
		{"func", addr, false, taggedFuncRef(addr)},
		{"lazy null", 0, true, taggedFuncRef(FuncRefInitBit)},
		{"lazy func", addr, true, taggedFuncRef(uintptr(addr) | FuncRefInitBit)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			slot := encodeFuncRef(c.f, c.lazyInit)
			assert.Equal(t, c.slot, slot)

			e := slot.element(c.lazyInit)
			f, ok := e.FuncRef()
			assert.True(t, ok)
			assert.Equal(t, c.f, f)
		})
	}
}

func TestUninitFuncRef(t *testing.T) {
	assert.True(t, uninitFuncRef.element(true).IsUninit())

	// Without lazy initialization, a zero slot is a null function.
	e := uninitFuncRef.element(false)
	assert.False(t, e.IsUninit())
	assert.Equal(t, FuncRef(0), e.FuncRefAssertingInitialized())
}

func TestMisalignedFuncRef(t *testing.T) {
	assert.Panics(t, func() { encodeFuncRef(0x1001, true) })
	assert.Panics(t, func() { encodeFuncRef(0x1001, false) })
}
