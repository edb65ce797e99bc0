package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/willf/bitset"
	"go.uber.org/zap"

	"github.com/pgavlin/reftable/exec"
	"github.com/pgavlin/reftable/gc"
	"github.com/pgavlin/reftable/pool"
)

// An Env is the environment in which scripts run.
type Env struct {
	// Tunables configure new tables.
	Tunables exec.Tunables
	// Limiter is consulted when tables are created or grown. If nil, growth is unlimited.
	Limiter exec.ResourceLimiter
	// Pool, if set, provides the storage for static tables. If nil, tables are dynamic.
	Pool *pool.Pool
	// Heap holds the objects referenced by GC reference tables. If nil, a new heap is created for each run.
	Heap *gc.Heap
	// Logger logs each operation. If nil, operations are not logged.
	Logger *zap.Logger
}

// TableState is a table created by a script.
type TableState struct {
	Name  string
	Type  exec.TableType
	Table *exec.Table

	// Touched records the slots written by the script.
	Touched bitset.BitSet
	// Grows and RejectedGrows count successful and rejected grow operations.
	Grows         int
	RejectedGrows int

	slab   pool.Slab
	pooled bool
}

// An Output is the result of a get, call, grow or size operation.
type Output struct {
	Line  int    `csv:"line"`
	Op    string `csv:"op"`
	Table string `csv:"table"`
	Value string `csv:"value"`
}

// Result is the state left behind by a script.
type Result struct {
	Tables  []*TableState
	Outputs []Output
	Heap    *gc.Heap

	byName  map[string]*TableState
	objects map[string]exec.GcRef
	names   map[exec.GcRef]string
	pool    *pool.Pool
}

// Table returns the table with the given name.
func (r *Result) Table(name string) (*TableState, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Object returns the handle of the named object.
func (r *Result) Object(name string) (exec.GcRef, bool) {
	ref, ok := r.objects[name]
	return ref, ok
}

// Release returns the storage of any static tables to their pool. The result's tables must not be used afterwards.
func (r *Result) Release() {
	for _, t := range r.Tables {
		if t.pooled {
			r.pool.Release(t.slab)
			t.pooled = false
		}
	}
}

// Run runs a script. If an operation traps or fails, Run returns the state of the tables up to that point together
// with an error that describes the failed operation.
func Run(ops []Op, env *Env) (*Result, error) {
	if env == nil {
		env = &Env{}
	}
	heap := env.Heap
	if heap == nil {
		heap = gc.NewHeap()
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &interpreter{
		env:    env,
		logger: logger,
		result: &Result{
			Heap:    heap,
			byName:  map[string]*TableState{},
			objects: map[string]exec.GcRef{},
			names:   map[exec.GcRef]string{},
			pool:    env.Pool,
		},
	}
	for _, op := range ops {
		if err := r.run(op); err != nil {
			return r.result, fmt.Errorf("%v: %w", op, err)
		}
	}
	return r.result, nil
}

type interpreter struct {
	env    *Env
	logger *zap.Logger
	result *Result
}

func (r *interpreter) heap() *gc.Heap {
	return r.result.Heap
}

func (r *interpreter) run(op Op) (err error) {
	defer func() {
		if x := recover(); x != nil {
			if trap, ok := exec.AsTrap(x); ok {
				err = trap
				return
			}
			err = fmt.Errorf("%v", x)
		}
	}()

	r.logger.Debug("running operation",
		zap.Int("line", op.Line),
		zap.String("op", op.Op),
		zap.String("table", op.Table))

	switch op.Op {
	case OpNew:
		return r.newTable(op)
	case OpAlloc:
		return r.alloc(op)
	}

	t, ok := r.result.byName[op.Table]
	if !ok {
		return fmt.Errorf("unknown table %q", op.Table)
	}

	switch op.Op {
	case OpGrow:
		return r.grow(t, op)
	case OpFill:
		return r.fill(t, op)
	case OpSet:
		return r.set(t, op)
	case OpGet:
		return r.get(t, op)
	case OpCall:
		return r.call(t, op)
	case OpInit:
		return r.initElements(t, op)
	case OpCopy:
		return r.copyElements(t, op)
	case OpSize:
		r.output(op, strconv.Itoa(t.Table.Size()))
		return nil
	default:
		return fmt.Errorf("unknown operation %q", op.Op)
	}
}

func (r *interpreter) output(op Op, value string) {
	r.result.Outputs = append(r.result.Outputs, Output{Line: op.Line, Op: op.Op, Table: op.Table, Value: value})
}

func (r *interpreter) newTable(op Op) error {
	if op.Table == "" {
		return errors.New("missing table name")
	}
	if _, ok := r.result.byName[op.Table]; ok {
		return fmt.Errorf("table %q already exists", op.Table)
	}

	rt, err := refType(op.Kind)
	if err != nil {
		return err
	}
	ty := exec.TableType{RefType: rt, Limits: exec.Limits{Min: op.Min}}
	if op.Index64 {
		ty.IndexType = exec.IndexTypeI64
	}
	if op.Max != "" {
		max, err := strconv.ParseUint(op.Max, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid maximum %q", op.Max)
		}
		ty.Limits.Max = &max
	}

	t := &TableState{Name: op.Table, Type: ty}
	if r.env.Pool != nil {
		t.Table, t.slab, err = r.env.Pool.NewTable(ty, r.env.Tunables, r.env.Limiter)
		t.pooled = err == nil
	} else {
		t.Table, err = exec.NewDynamicTable(ty, r.env.Tunables, r.env.Limiter)
	}
	if err != nil {
		return err
	}

	r.result.Tables = append(r.result.Tables, t)
	r.result.byName[op.Table] = t
	return nil
}

func (r *interpreter) alloc(op Op) error {
	name := op.Value
	if name == "" {
		return errors.New("missing object name")
	}
	if _, ok := r.result.objects[name]; ok {
		return fmt.Errorf("object %q already exists", name)
	}

	ref := r.heap().Alloc()
	r.result.objects[name] = ref
	r.result.names[ref] = name
	return nil
}

// element parses an operand. The interpreter's own reference to a named object is cloned, so the returned element
// owns its reference.
func (r *interpreter) element(t *TableState, s string) (exec.TableElement, error) {
	e, err := parseValue(s, t.Table.ElementType(), r.result.objects)
	if err != nil {
		return exec.TableElement{}, err
	}
	if ref, ok := e.GcRef(); ok {
		return exec.GcRefElement(r.heap().CloneGcRef(ref)), nil
	}
	return e, nil
}

func (r *interpreter) drop(e exec.TableElement) {
	if ref, ok := e.GcRef(); ok {
		r.heap().DropGcRef(ref)
	}
}

func touch(t *TableState, start, n uint64) {
	for i := uint64(0); i < n; i++ {
		t.Touched.Set(uint(start + i))
	}
}

func (r *interpreter) grow(t *TableState, op Op) error {
	val, err := r.element(t, op.Value)
	if err != nil {
		return err
	}

	old, ok, err := t.Table.Grow(r.env.Limiter, r.heap(), op.Len, val)
	if err != nil {
		r.drop(val)
		return err
	}
	if !ok {
		r.drop(val)
		t.RejectedGrows++
		r.output(op, "-1")
		return nil
	}

	if op.Len != 0 {
		t.Grows++
		touch(t, uint64(old), op.Len)
	}
	r.output(op, strconv.Itoa(old))
	return nil
}

func (r *interpreter) fill(t *TableState, op Op) error {
	val, err := r.element(t, op.Value)
	if err != nil {
		return err
	}
	if err := t.Table.Fill(r.heap(), op.Dst, val, op.Len); err != nil {
		r.drop(val)
		return err
	}
	touch(t, op.Dst, op.Len)
	return nil
}

func (r *interpreter) set(t *TableState, op Op) error {
	if op.Dst >= uint64(t.Table.Size()) {
		return exec.TrapTableOutOfBounds
	}

	val, err := r.element(t, op.Value)
	if err != nil {
		return err
	}
	if t.Table.ElementType() == exec.ElementTypeGcRef {
		// Run the write barrier so that the slot's previous reference is released.
		if err := t.Table.Fill(r.heap(), op.Dst, val, 1); err != nil {
			return err
		}
	} else {
		t.Table.Set(op.Dst, val)
	}
	touch(t, op.Dst, 1)
	return nil
}

func (r *interpreter) get(t *TableState, op Op) error {
	e, ok := t.Table.Get(r.heap(), op.Src)
	if !ok {
		return exec.TrapTableOutOfBounds
	}
	r.output(op, formatElement(e, r.result.names))
	r.drop(e)
	return nil
}

// call resolves the target of an indirect call through a function table.
func (r *interpreter) call(t *TableState, op Op) error {
	if t.Table.ElementType() != exec.ElementTypeFunc {
		return fmt.Errorf("cannot call through %v table %q", t.Table.ElementType(), t.Name)
	}
	f, err := t.Table.FuncRefForCall(op.Src)
	if err != nil {
		return err
	}
	r.output(op, formatElement(exec.FuncRefElement(f), r.result.names))
	return nil
}

func (r *interpreter) initElements(t *TableState, op Op) error {
	var items []exec.TableElement
	if op.Value != "" {
		for _, s := range strings.Split(op.Value, ";") {
			e, err := r.element(t, s)
			if err != nil {
				for _, e := range items {
					r.drop(e)
				}
				return err
			}
			items = append(items, e)
		}
	}

	var err error
	switch t.Table.ElementType() {
	case exec.ElementTypeFunc:
		funcs := make([]exec.FuncRef, len(items))
		for i, e := range items {
			funcs[i] = e.FuncRefAssertingInitialized()
		}
		err = t.Table.InitFunc(op.Dst, funcs)
	case exec.ElementTypeGcRef:
		refs := make([]exec.GcRef, len(items))
		for i, e := range items {
			refs[i], _ = e.GcRef()
		}

		// Initialization does not release the references it overwrites.
		var previous []exec.GcRef
		if op.Dst <= uint64(t.Table.Size()) && uint64(len(refs)) <= uint64(t.Table.Size())-op.Dst {
			previous = append(previous, t.Table.GcRefs()[op.Dst:op.Dst+uint64(len(refs))]...)
		}
		if err = t.Table.InitGcRefs(op.Dst, refs); err == nil {
			for _, ref := range previous {
				r.heap().DropGcRef(ref)
			}
		} else {
			for _, ref := range refs {
				r.heap().DropGcRef(ref)
			}
		}
	default:
		return errors.New("continuation tables cannot be initialized from segments")
	}
	if err != nil {
		return err
	}
	touch(t, op.Dst, uint64(len(items)))
	return nil
}

func (r *interpreter) copyElements(t *TableState, op Op) error {
	src, ok := r.result.byName[op.Value]
	if !ok {
		return fmt.Errorf("unknown source table %q", op.Value)
	}
	if src.Table.ElementType() != t.Table.ElementType() {
		return fmt.Errorf("cannot copy %v table %q into %v table %q", src.Table.ElementType(), src.Name, t.Table.ElementType(), t.Name)
	}
	if err := exec.CopyTable(r.heap(), t.Table, src.Table, op.Dst, op.Src, op.Len); err != nil {
		return err
	}
	touch(t, op.Dst, op.Len)
	return nil
}
