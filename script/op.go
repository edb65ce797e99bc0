// Package script implements a CSV format for scripts of table operations and an interpreter that runs them.
//
// Each row of a script is one operation:
//
//	op,table,kind,min,max,index64,dst,src,len,value
//	new,t,func,2,5,,,,,
//	grow,t,,,,,,,2,0x10
//	fill,t,,,,,0,,4,null
//
// Lines that begin with '#' are ignored.
package script

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jszwec/csvutil"
)

// Operation names.
const (
	OpNew   = "new"
	OpGrow  = "grow"
	OpFill  = "fill"
	OpSet   = "set"
	OpGet   = "get"
	OpCall  = "call"
	OpInit  = "init"
	OpCopy  = "copy"
	OpSize  = "size"
	OpAlloc = "alloc"
)

// An Op is a single table operation.
type Op struct {
	// Op is the name of the operation.
	Op string `csv:"op"`
	// Table is the name of the table the operation targets.
	Table string `csv:"table,omitempty"`
	// Kind is the reference type of a new table: func, extern, any or cont.
	Kind string `csv:"kind,omitempty"`
	// Min and Max are the limits of a new table. An empty Max declares an unbounded table.
	Min uint64 `csv:"min,omitempty"`
	Max string `csv:"max,omitempty"`
	// Index64 declares a new table with 64-bit indices.
	Index64 bool `csv:"index64,omitempty"`
	// Dst, Src and Len are the operands of fill, set, get, call, init and copy operations. Len is the delta of a grow.
	Dst uint64 `csv:"dst,omitempty"`
	Src uint64 `csv:"src,omitempty"`
	Len uint64 `csv:"len,omitempty"`
	// Value is the element operand of an operation, the ';'-separated elements of an init, the source table of a
	// copy, or the name bound by an alloc.
	Value string `csv:"value,omitempty"`

	// Line is the operation's line in its script.
	Line int `csv:"-"`
}

func (op Op) String() string {
	return fmt.Sprintf("line %d: %s %s", op.Line, op.Op, op.Table)
}

// ParseOps reads a script. The script must begin with a header row.
func ParseOps(r io.Reader) ([]Op, error) {
	csvReader := csv.NewReader(r)
	csvReader.Comment = '#'
	csvReader.TrimLeadingSpace = true

	decoder, err := csvutil.NewDecoder(csvReader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var ops []Op
	for {
		var op Op
		if err := decoder.Decode(&op); err != nil {
			if errors.Is(err, io.EOF) {
				return ops, nil
			}
			return nil, err
		}
		op.Line, _ = csvReader.FieldPos(0)
		if op.Op == "" {
			return nil, fmt.Errorf("line %d: missing operation", op.Line)
		}
		ops = append(ops, op)
	}
}

// LoadFile reads a script from a file. A path of "-" reads from standard input.
func LoadFile(path string) ([]Op, error) {
	if path == "-" {
		return ParseOps(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseOps(bufio.NewReader(f))
}
