package exec

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// Code generators address VMTableDefinition fields by these offsets.
func TestVMTableDefinitionLayout(t *testing.T) {
	var def VMTableDefinition
	require.Equal(t, VMTableDefinitionBaseOffset, int(unsafe.Offsetof(def.Base)))
	require.Equal(t, VMTableDefinitionCurrentElementsOffset, int(unsafe.Offsetof(def.CurrentElements)))
	require.Equal(t, VMTableDefinitionSize, int(unsafe.Sizeof(def)))

	if unsafe.Sizeof(uintptr(0)) == 8 {
		require.Equal(t, 8, VMTableDefinitionCurrentElementsOffset)
		require.Equal(t, 16, VMTableDefinitionSize)
	}
}

func TestVMTableTracksTable(t *testing.T) {
	table, err := NewDynamicTable(TableType{RefType: RefTypeFuncref, Limits: Limits{Min: 3}}, Tunables{}, nil)
	require.NoError(t, err)

	def := table.VMTable()
	require.Equal(t, uint(3), def.CurrentElements)
	require.Equal(t, uintptr(unsafe.Pointer(&table.repr.(*dynamicFuncTable).elements[0])), def.Base)

	_, ok, err := table.Grow(nil, nil, 100, FuncRefElement(0))
	require.NoError(t, err)
	require.True(t, ok)

	def = table.VMTable()
	require.Equal(t, uint(103), def.CurrentElements)
	require.Equal(t, uintptr(unsafe.Pointer(&table.repr.(*dynamicFuncTable).elements[0])), def.Base)
}
