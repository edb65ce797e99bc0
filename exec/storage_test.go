package exec

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alignedBuffer(words int) []byte {
	backing := make([]uint64, words)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(backing))), words*8)
}

func u64(v uint64) *uint64 {
	return &v
}

func TestRepresentations(t *testing.T) {
	cases := []struct {
		refType RefType
		static  bool
		repr    tableRepr
	}{
		{RefTypeFuncref, true, &staticFuncTable{}},
		{RefTypeExternref, true, &staticGcRefTable{}},
		{RefTypeContref, true, &staticContTable{}},
		{RefTypeFuncref, false, &dynamicFuncTable{}},
		{RefTypeAnyref, false, &dynamicGcRefTable{}},
		{RefTypeContref, false, &dynamicContTable{}},
	}
	for _, c := range cases {
		t.Run(RefTypeName(c.refType), func(t *testing.T) {
			ty := TableType{RefType: c.refType, Limits: Limits{Min: 1, Max: u64(4)}}

			var table *Table
			var err error
			if c.static {
				table, err = NewStaticTable(ty, Tunables{}, alignedBuffer(16), nil)
			} else {
				table, err = NewDynamicTable(ty, Tunables{}, nil)
			}
			require.NoError(t, err)
			assert.IsType(t, c.repr, table.repr)
			assert.Equal(t, c.static, table.IsStatic())
		})
	}
}

func TestZeroTable(t *testing.T) {
	var table Table
	assert.Equal(t, 0, table.Size())
	assert.Equal(t, ElementTypeFunc, table.ElementType())
	assert.True(t, table.IsStatic())

	_, ok, err := table.Grow(nil, nil, 1, FuncRefElement(0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLimitNew(t *testing.T) {
	cases := []struct {
		name    string
		ty      TableType
		maximum int
		bounded bool
	}{
		{"i32 unbounded", TableType{RefType: RefTypeFuncref}, clampIndex(math.MaxUint32), true},
		{"i64 unbounded", TableType{RefType: RefTypeFuncref, IndexType: IndexTypeI64}, math.MaxInt, true},
		{"declared", TableType{RefType: RefTypeFuncref, Limits: Limits{Max: u64(10)}}, 10, true},
		{"unrepresentable", TableType{RefType: RefTypeFuncref, IndexType: IndexTypeI64, Limits: Limits{Max: u64(math.MaxUint64)}}, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, limits, err := limitNew(c.ty, Tunables{}, nil)
			require.NoError(t, err)
			assert.Equal(t, c.bounded, limits.bounded)
			if c.bounded {
				assert.Equal(t, c.maximum, limits.maximum)
			}
		})
	}
}

func TestFixedSizeTableNeverMoves(t *testing.T) {
	table, err := NewDynamicTable(TableType{RefType: RefTypeFuncref, Limits: Limits{Min: 4, Max: u64(4)}}, Tunables{}, nil)
	require.NoError(t, err)

	r := table.repr.(*dynamicFuncTable)
	assert.True(t, r.stableBase)

	// Growth past the maximum is rejected before the elements could move.
	_, ok, err := table.Grow(nil, nil, 1, FuncRefElement(0))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Panics(t, func() { r.grow(5) })
}

func TestStaticStorage(t *testing.T) {
	t.Run("capacity capped by maximum", func(t *testing.T) {
		table, err := NewStaticTable(TableType{RefType: RefTypeFuncref, Limits: Limits{Min: 1, Max: u64(3)}}, Tunables{}, alignedBuffer(8), nil)
		require.NoError(t, err)
		maximum, bounded := table.Maximum()
		assert.True(t, bounded)
		assert.Equal(t, 3, maximum)
	})

	t.Run("capacity capped by buffer", func(t *testing.T) {
		table, err := NewStaticTable(TableType{RefType: RefTypeExternref, Limits: Limits{Min: 1}}, Tunables{}, alignedBuffer(2), nil)
		require.NoError(t, err)
		maximum, _ := table.Maximum()
		assert.Equal(t, 4, maximum)
	})

	t.Run("misaligned", func(t *testing.T) {
		buf := alignedBuffer(4)
		_, err := NewStaticTable(TableType{RefType: RefTypeFuncref}, Tunables{}, buf[1:9], nil)
		assert.ErrorIs(t, err, ErrMisalignedBuffer)

		_, err = NewStaticTable(TableType{RefType: RefTypeFuncref}, Tunables{}, buf[:12], nil)
		assert.ErrorIs(t, err, ErrMisalignedBuffer)
	})

	t.Run("minimum exceeds capacity", func(t *testing.T) {
		_, err := NewStaticTable(TableType{RefType: RefTypeFuncref, Limits: Limits{Min: 5}}, Tunables{}, alignedBuffer(4), nil)
		assert.ErrorIs(t, err, ErrStaticCapacityExceeded)
	})
}

func TestFillSlots(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 7, 8, 33} {
		s := make([]GcRef, n)
		fillSlots(s, 9)
		for i, v := range s {
			assert.Equal(t, GcRef(9), v, "slot %d of %d", i, n)
		}
	}
}
