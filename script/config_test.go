package script

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/reftable/exec"
)

func TestConfig(t *testing.T) {
	var config Config
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--lazy-init=false", "--static", "--pool-slots=2", "--pool-slab-bytes=128", "--max-elements=8", "--strict"}))

	env, closer, err := config.NewEnv(nil)
	require.NoError(t, err)
	defer closer()

	assert.False(t, env.Tunables.TableLazyInit)
	assert.Equal(t, exec.MaxElementsLimiter{Max: 8, Strict: true}, env.Limiter)
	require.NotNil(t, env.Pool)
	assert.Equal(t, 128, env.Pool.SlabBytes())

	_, err = Run(parse(t, "new,t,func,9,,,,,,\n"), env)
	assert.ErrorIs(t, err, exec.ErrTableMinimumExceedsLimits)
}

func TestDefaultConfig(t *testing.T) {
	var config Config
	config.RegisterFlags(pflag.NewFlagSet("test", pflag.ContinueOnError))

	env, closer, err := config.NewEnv(nil)
	require.NoError(t, err)
	defer closer()

	assert.True(t, env.Tunables.TableLazyInit)
	assert.Equal(t, exec.UnlimitedLimiter{}, env.Limiter)
	assert.Nil(t, env.Pool)
}
