// Package pool implements a pooling allocator for static table storage.
//
// A Pool reserves a single region of memory up front and carves it into fixed-size slabs. Each slab backs at most one
// static table at a time, and is zeroed before it is handed out again.
package pool

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/willf/bitset"
	"go.uber.org/zap"

	"github.com/pgavlin/reftable/exec"
)

var (
	// ErrPoolExhausted is returned by Allocate when every slab is in use.
	ErrPoolExhausted = errors.New("table pool exhausted")
	// ErrSlabTooSmall is returned by NewTable when a table's minimum size does not fit in a slab.
	ErrSlabTooSmall = errors.New("table does not fit in a pool slab")
	// ErrPoolClosed is returned by Allocate after the pool has been closed.
	ErrPoolClosed = errors.New("table pool is closed")
)

// Config describes the shape of a pool.
type Config struct {
	// Slots is the number of slabs in the pool.
	Slots int
	// SlabBytes is the size of each slab. It is rounded up to a multiple of exec.NominalMaxElementSize.
	SlabBytes int
}

// A Slab is a region of pooled memory.
type Slab struct {
	index int
	bytes []byte
}

// Index returns the slab's position in its pool.
func (s Slab) Index() int {
	return s.index
}

// Bytes returns the slab's memory.
func (s Slab) Bytes() []byte {
	return s.bytes
}

// A Pool hands out zeroed slabs of memory for static tables. It is safe for concurrent use.
type Pool struct {
	slabBytes int
	region    []byte

	m      sync.Mutex
	inUse  bitset.BitSet
	free   []int
	closed bool
}

// New reserves the memory for a pool.
func New(config Config) (*Pool, error) {
	if config.Slots <= 0 {
		return nil, fmt.Errorf("invalid pool size %d", config.Slots)
	}
	if config.SlabBytes <= 0 {
		return nil, fmt.Errorf("invalid slab size %d", config.SlabBytes)
	}

	const align = int(exec.NominalMaxElementSize)
	if config.SlabBytes > math.MaxInt-align {
		return nil, fmt.Errorf("invalid slab size %d", config.SlabBytes)
	}
	slabBytes := (config.SlabBytes + align - 1) / align * align
	if slabBytes > math.MaxInt/config.Slots {
		return nil, fmt.Errorf("pool of %d slabs of %d bytes is too large", config.Slots, slabBytes)
	}

	region, err := reserve(config.Slots * slabBytes)
	if err != nil {
		return nil, fmt.Errorf("reserving table pool: %w", err)
	}

	p := &Pool{
		slabBytes: slabBytes,
		region:    region,
		free:      make([]int, config.Slots),
	}
	for i := range p.free {
		p.free[i] = config.Slots - i - 1
	}

	Logger().Debug("reserved table pool", zap.Int("slots", config.Slots), zap.Int("slabBytes", slabBytes))
	return p, nil
}

// SlabBytes returns the size of each slab in the pool.
func (p *Pool) SlabBytes() int {
	return p.slabBytes
}

// InUse returns the number of slabs that have been allocated and not released.
func (p *Pool) InUse() int {
	p.m.Lock()
	defer p.m.Unlock()

	return int(p.inUse.Count())
}

// Allocate returns a zeroed slab.
func (p *Pool) Allocate() (Slab, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.closed {
		return Slab{}, ErrPoolClosed
	}

	n := len(p.free)
	if n == 0 {
		Logger().Warn("table pool exhausted", zap.Int("slots", int(p.inUse.Count())))
		return Slab{}, ErrPoolExhausted
	}
	index := p.free[n-1]
	p.free = p.free[:n-1]
	p.inUse.Set(uint(index))

	start := index * p.slabBytes
	return Slab{index: index, bytes: p.region[start : start+p.slabBytes : start+p.slabBytes]}, nil
}

// Release zeroes a slab and returns it to the pool. Any table that uses the slab must no longer be in use.
func (p *Pool) Release(s Slab) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.closed {
		return
	}
	if s.bytes == nil || !p.inUse.Test(uint(s.index)) {
		panic(fmt.Sprintf("pool: release of slab %d, which is not allocated", s.index))
	}

	reset(s.bytes)
	p.inUse.Clear(uint(s.index))
	p.free = append(p.free, s.index)
}

// Close releases the pool's memory. All slabs, and any tables that use them, must no longer be in use.
func (p *Pool) Close() error {
	p.m.Lock()
	defer p.m.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if n := p.inUse.Count(); n != 0 {
		Logger().Warn("closing table pool with slabs in use", zap.Uint("inUse", n))
	}

	region := p.region
	p.region, p.free = nil, nil
	return unreserve(region)
}

// NewTable allocates a slab and creates a static table that uses it. The slab must be released once the table is no
// longer in use.
func (p *Pool) NewTable(ty exec.TableType, tunables exec.Tunables, limiter exec.ResourceLimiter) (*exec.Table, Slab, error) {
	et, ok := exec.ElementTypeOf(ty.RefType)
	if !ok {
		return nil, Slab{}, fmt.Errorf("unknown table reference type %s", exec.RefTypeName(ty.RefType))
	}

	size := et.Size()
	capacity := p.slabBytes / size
	if ty.Limits.Min > uint64(capacity) {
		return nil, Slab{}, fmt.Errorf("%w: table %v needs %d elements, but slabs hold %d", ErrSlabTooSmall, ty, ty.Limits.Min, capacity)
	}

	slab, err := p.Allocate()
	if err != nil {
		return nil, Slab{}, err
	}

	table, err := exec.NewStaticTable(ty, tunables, slab.bytes[:capacity*size], limiter)
	if err != nil {
		p.Release(slab)
		return nil, Slab{}, err
	}
	return table, slab, nil
}
