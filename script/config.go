package script

import (
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pgavlin/reftable/exec"
	"github.com/pgavlin/reftable/pool"
)

// Config holds the command-line configuration of a script environment.
type Config struct {
	LazyInit      bool
	Static        bool
	PoolSlots     int
	PoolSlabBytes int
	MaxElements   int
	Strict        bool
}

// RegisterFlags adds the configuration's flags to a flag set.
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&c.LazyInit, "lazy-init", true, "lazily initialize function tables")
	flags.BoolVar(&c.Static, "static", false, "allocate tables from a pool of static storage")
	flags.IntVar(&c.PoolSlots, "pool-slots", 16, "the number of tables in the static storage pool")
	flags.IntVar(&c.PoolSlabBytes, "pool-slab-bytes", 64<<10, "the size in bytes of each table in the static storage pool")
	flags.IntVar(&c.MaxElements, "max-elements", 0, "reject tables with more than this many elements (0 for no limit)")
	flags.BoolVar(&c.Strict, "strict", false, "fail operations whose growth fails rather than rejecting the growth")
}

// NewEnv creates an environment for the configuration. The returned function releases the environment's resources.
func (c *Config) NewEnv(logger *zap.Logger) (*Env, func() error, error) {
	env := &Env{
		Tunables: exec.DefaultTunables(),
		Logger:   logger,
	}
	env.Tunables.TableLazyInit = c.LazyInit

	var limiter exec.ResourceLimiter = exec.UnlimitedLimiter{}
	if c.MaxElements > 0 {
		limiter = exec.MaxElementsLimiter{Max: c.MaxElements, Strict: c.Strict}
	}
	if logger != nil {
		limiter = exec.LoggingLimiter{Limiter: limiter, Logger: logger}
	}
	env.Limiter = limiter

	if !c.Static {
		return env, func() error { return nil }, nil
	}

	p, err := pool.New(pool.Config{Slots: c.PoolSlots, SlabBytes: c.PoolSlabBytes})
	if err != nil {
		return nil, nil, err
	}
	env.Pool = p
	return env, p.Close, nil
}
