package exec

import (
	"errors"

	"go.uber.org/zap"
)

// ErrTableGrowOverflow is reported to a ResourceLimiter when the new size of a table cannot be represented.
var ErrTableGrowOverflow = errors.New("overflow calculating new table size")

// ErrTableMaximumExceeded is reported to a ResourceLimiter when growth would exceed the table's maximum size.
var ErrTableMaximumExceeded = errors.New("table maximum size exceeded")

// A ResourceLimiter is consulted by the embedder-owned policy whenever a table is created or grown.
type ResourceLimiter interface {
	// TableGrowing is called before a table is created or grown. current is the current number of elements (zero
	// for new tables), desired is the requested number, and maximum is the table's maximum if bounded is true.
	//
	// Returning false rejects the request without changing the table. Returning an error fails the operation that
	// requested the growth.
	TableGrowing(current, desired, maximum int, bounded bool) (bool, error)

	// TableGrowFailed is called when growth fails for a reason other than the limiter's own decision. Returning nil
	// reports the growth as rejected; returning an error fails the operation that requested the growth.
	TableGrowFailed(err error) error
}

// UnlimitedLimiter permits all table growth.
type UnlimitedLimiter struct{}

func (UnlimitedLimiter) TableGrowing(current, desired, maximum int, bounded bool) (bool, error) {
	return true, nil
}

func (UnlimitedLimiter) TableGrowFailed(err error) error {
	return nil
}

// MaxElementsLimiter rejects any table that would hold more than Max elements. If Strict is set, growth failures are
// fatal to the operation that requested the growth.
type MaxElementsLimiter struct {
	Max    int
	Strict bool
}

func (l MaxElementsLimiter) TableGrowing(current, desired, maximum int, bounded bool) (bool, error) {
	return desired <= l.Max, nil
}

func (l MaxElementsLimiter) TableGrowFailed(err error) error {
	if l.Strict {
		return err
	}
	return nil
}

// LoggingLimiter logs each decision made by the wrapped limiter.
type LoggingLimiter struct {
	Limiter ResourceLimiter
	Logger  *zap.Logger
}

func (l LoggingLimiter) log() *zap.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return Logger()
}

func (l LoggingLimiter) TableGrowing(current, desired, maximum int, bounded bool) (bool, error) {
	ok, err := limiterOrDefault(l.Limiter).TableGrowing(current, desired, maximum, bounded)

	fields := []zap.Field{zap.Int("current", current), zap.Int("desired", desired), zap.Bool("allowed", ok)}
	if bounded {
		fields = append(fields, zap.Int("maximum", maximum))
	}
	if err != nil {
		l.log().Warn("table growth check failed", append(fields, zap.Error(err))...)
		return ok, err
	}
	l.log().Debug("table growing", fields...)
	return ok, nil
}

func (l LoggingLimiter) TableGrowFailed(err error) error {
	l.log().Warn("table growth failed", zap.Error(err))
	return limiterOrDefault(l.Limiter).TableGrowFailed(err)
}

func limiterOrDefault(l ResourceLimiter) ResourceLimiter {
	if l == nil {
		return UnlimitedLimiter{}
	}
	return l
}
