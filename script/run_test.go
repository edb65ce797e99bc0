package script

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/reftable/exec"
	"github.com/pgavlin/reftable/pool"
)

const header = "op,table,kind,min,max,index64,dst,src,len,value\n"

func parse(t *testing.T, script string) []Op {
	ops, err := ParseOps(strings.NewReader(header + script))
	require.NoError(t, err)
	return ops
}

func outputs(result *Result) []string {
	values := make([]string, len(result.Outputs))
	for i, o := range result.Outputs {
		values[i] = o.Value
	}
	return values
}

func TestParseOps(t *testing.T) {
	ops := parse(t, `# a function table
new,t,func,2,5,,,,,
grow,t,,,,,,,2,0x10
copy,t,,,,,0,2,3,u
`)
	require.Len(t, ops, 3)
	assert.Equal(t, Op{Op: OpNew, Table: "t", Kind: "func", Min: 2, Max: "5", Line: 3}, ops[0])
	assert.Equal(t, Op{Op: OpGrow, Table: "t", Len: 2, Value: "0x10", Line: 4}, ops[1])
	assert.Equal(t, Op{Op: OpCopy, Table: "t", Dst: 0, Src: 2, Len: 3, Value: "u", Line: 5}, ops[2])

	ops, err := ParseOps(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ops)

	_, err = ParseOps(strings.NewReader(header + ",t,,,,,,,,\n"))
	assert.Error(t, err)
}

func TestRunFuncTable(t *testing.T) {
	ops := parse(t, `new,t,func,2,5,,,,,
get,t,,,,,,0,,
grow,t,,,,,,,2,null
size,t,,,,,,,,
grow,t,,,,,,,10,null
size,t,,,,,,,,
init,t,,,,,1,,,0x10;0x20
set,t,,,,,3,,,0x30
get,t,,,,,,2,,
copy,t,,,,,0,1,3,t
get,t,,,,,,0,,
`)

	result, err := Run(ops, &Env{Tunables: exec.Tunables{TableLazyInit: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"uninit", "2", "4", "-1", "4", "0x20", "0x10"}, outputs(result))

	table, ok := result.Table("t")
	require.True(t, ok)
	assert.Equal(t, 1, table.Grows)
	assert.Equal(t, 1, table.RejectedGrows)
	assert.Equal(t, uint(4), table.Touched.Count())
}

func TestRunTraps(t *testing.T) {
	ops := parse(t, `new,t,func,2,,,,,,
fill,t,,,,,1,,2,0x10
size,t,,,,,,,,
`)
	result, err := Run(ops, nil)
	assert.ErrorIs(t, err, exec.TrapTableOutOfBounds)
	assert.Contains(t, err.Error(), "line 3")
	assert.Empty(t, result.Outputs)

	for _, script := range []string{
		"new,t,func,1,,,,,,\nget,t,,,,,,1,,\n",
		"new,t,func,1,,,,,,\nset,t,,,,,1,,,null\n",
		"new,t,func,1,,,,,,\ninit,t,,,,,1,,,0x10\n",
		"new,t,func,1,,,,,,\ncopy,t,,,,,0,1,1,t\n",
	} {
		_, err := Run(parse(t, script), nil)
		assert.ErrorIs(t, err, exec.TrapTableOutOfBounds, script)
	}
}

func TestRunCall(t *testing.T) {
	ops := parse(t, `new,t,func,3,,,,,,
init,t,,,,,0,,,0x10;null
call,t,,,,,,0,,
`)
	result, err := Run(ops, &Env{Tunables: exec.Tunables{TableLazyInit: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x10"}, outputs(result))

	for script, trap := range map[string]exec.Trap{
		"call,t,,,,,,1,,\n": exec.TrapIndirectCallToNull,
		"call,t,,,,,,2,,\n": exec.TrapUninitializedElement,
		"call,t,,,,,,3,,\n": exec.TrapUndefinedElement,
	} {
		_, err := Run(append(ops[:2:2], parse(t, script)...), &Env{Tunables: exec.Tunables{TableLazyInit: true}})
		assert.ErrorIs(t, err, trap, script)
	}

	_, err = Run(parse(t, "new,t,extern,1,,,,,,\ncall,t,,,,,,0,,\n"), nil)
	assert.Error(t, err)
}

func TestRunErrors(t *testing.T) {
	for _, script := range []string{
		"grow,t,,,,,,,1,\n",
		"new,t,nope,1,,,,,,\n",
		"new,t,func,1,,,,,,\nnew,t,func,1,,,,,,\n",
		"new,t,func,1,,,,,,\nfill,t,,,,,0,,1,0x11\n",
		"new,t,func,1,,,,,,\ninit,t,,,,,0,,,uninit\n",
		"new,t,func,1,,,,,,\nnew,u,extern,1,,,,,,\ncopy,t,,,,,0,0,1,u\n",
		"new,t,extern,1,,,,,,\nfill,t,,,,,0,,1,obj:missing\n",
		"new,t,func,1,,,,,,\nfrob,t,,,,,,,,\n",
	} {
		_, err := Run(parse(t, script), nil)
		assert.Error(t, err, script)
	}
}

func TestRunGcRefTable(t *testing.T) {
	ops := parse(t, `alloc,,,,,,,,,a
alloc,,,,,,,,,b
new,t,extern,4,,,,,,
new,u,extern,2,,,,,,
fill,t,,,,,0,,4,obj:a
set,t,,,,,1,,,obj:b
set,t,,,,,2,,,i31:7
copy,u,,,,,0,1,2,t
init,t,,,,,0,,,obj:b;null
grow,u,,,,,,,1,obj:a
get,u,,,,,,0,,
get,u,,,,,,1,,
get,u,,,,,,2,,
`)
	result, err := Run(ops, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "obj:b", "i31:7", "obj:a"}, outputs(result))

	a, _ := result.Object("a")
	b, _ := result.Object("b")

	// t: [b, null, i31, a]; u: [b, i31, a]; plus the script's own references.
	assert.Equal(t, 3, result.Heap.RefCount(a))
	assert.Equal(t, 3, result.Heap.RefCount(b))
	assert.Equal(t, 6, result.Heap.Live())
}

func TestRunStatic(t *testing.T) {
	p, err := pool.New(pool.Config{Slots: 2, SlabBytes: 64})
	require.NoError(t, err)
	defer p.Close()

	ops := parse(t, `new,t,func,1,,,,,,
new,u,cont,1,,,,,,
grow,t,,,,,,,7,0x10
grow,t,,,,,,,1,0x10
grow,u,,,,,,,3,0x100@2
get,u,,,,,,3,,
new,v,func,1,,,,,,
`)
	result, err := Run(ops, &Env{Pool: p})
	assert.ErrorIs(t, err, pool.ErrPoolExhausted)
	assert.Equal(t, []string{"1", "-1", "1", "0x100@2"}, outputs(result))
	assert.Equal(t, 2, p.InUse())

	result.Release()
	assert.Equal(t, 0, p.InUse())
}

func TestReports(t *testing.T) {
	ops := parse(t, `alloc,,,,,,,,,a
new,t,func,2,4,,,,,
new,g,extern,1,,,,,,
set,t,,,,,1,,,0x10
grow,t,,,,,,,1,null
fill,g,,,,,0,,1,obj:a
`)
	result, err := Run(ops, &Env{Tunables: exec.Tunables{TableLazyInit: true}})
	require.NoError(t, err)

	var stats bytes.Buffer
	require.NoError(t, WriteStats(&stats, result))
	assert.Equal(t, `table,kind,storage,size,maximum,lazy init,touched slots,grows,rejected grows
t,func,dynamic,3,4,true,2,1,0
g,gcref,dynamic,1,4294967295,false,1,0,0
`, stats.String())

	var dump bytes.Buffer
	require.NoError(t, WriteDump(&dump, result))
	assert.Equal(t, `table,index,value
t,0,uninit
t,1,0x10
t,2,null
g,0,obj:a
`, dump.String())

	var out bytes.Buffer
	require.NoError(t, WriteOutputs(&out, result))
	assert.Equal(t, "line,op,table,value\n6,grow,t,2\n", out.String())

	// Dumping must not leak references.
	assert.Equal(t, 2, result.Heap.Live())
}

func TestLoadFile(t *testing.T) {
	ops, err := LoadFile("testdata/scenarios.csv")
	require.NoError(t, err)

	result, err := Run(ops, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "-1", "4", "0x30", "0x40", "obj:r", "1", "4"}, outputs(result))

	wide, ok := result.Table("wide")
	require.True(t, ok)
	assert.Equal(t, exec.IndexTypeI64, wide.Type.IndexType)

	r, _ := result.Object("r")
	assert.Equal(t, 2, result.Heap.RefCount(r))
}
