package exec

import (
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
)

// IndexType is the width of a table's index operands.
type IndexType uint8

const (
	IndexTypeI32 IndexType = iota
	IndexTypeI64
)

func (t IndexType) String() string {
	if t == IndexTypeI64 {
		return "i64"
	}
	return "i32"
}

// Limits are the declared minimum and optional maximum element counts of a table.
type Limits struct {
	Min uint64
	// Max is nil if the table is unbounded.
	Max *uint64
}

// TableType is the declared type of a table.
type TableType struct {
	RefType   RefType
	Limits    Limits
	IndexType IndexType
}

// ElementType returns the element type of the table. It panics if the table's reference type is unknown; module
// validation rejects such tables before any are created.
func (ty TableType) ElementType() ElementType {
	et, ok := ElementTypeOf(ty.RefType)
	if !ok {
		panic(fmt.Sprintf("reftable: unknown reference type %s", RefTypeName(ty.RefType)))
	}
	return et
}

func (ty TableType) String() string {
	if ty.Limits.Max == nil {
		return fmt.Sprintf("%s %d %s", ty.IndexType, ty.Limits.Min, RefTypeName(ty.RefType))
	}
	return fmt.Sprintf("%s %d %d %s", ty.IndexType, ty.Limits.Min, *ty.Limits.Max, RefTypeName(ty.RefType))
}

// Tunables configure table creation.
type Tunables struct {
	// TableLazyInit enables lazy initialization of function tables. When set, unwritten function slots read back as
	// the uninitialized element rather than null.
	TableLazyInit bool

	// Features is the set of enabled core features. The zero value selects api.CoreFeaturesV2.
	Features api.CoreFeatures
}

// DefaultTunables returns the tunables used when none are configured.
func DefaultTunables() Tunables {
	return Tunables{TableLazyInit: true, Features: api.CoreFeaturesV2}
}

func (t Tunables) features() api.CoreFeatures {
	if t.Features == 0 {
		return api.CoreFeaturesV2
	}
	return t.Features
}

// toIndex converts a 32- or 64-bit table index, length or size to a host index.
func toIndex(v uint64) (int, bool) {
	if v > math.MaxInt {
		return 0, false
	}
	return int(v), true
}

// clampIndex converts v to a host index, saturating at the largest host index.
func clampIndex(v uint64) int {
	if i, ok := toIndex(v); ok {
		return i
	}
	return math.MaxInt
}
