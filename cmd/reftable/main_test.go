package main

import (
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncer struct {
	io.Writer
	err   error
	syncs int
}

func (s *syncer) Sync() error {
	s.syncs++
	return s.err
}

func newLogger(ws zapcore.WriteSyncer) *zap.Logger {
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()), ws, zap.DebugLevel))
}

func TestSyncLogger(t *testing.T) {
	assert.NoError(t, syncLogger(nil))

	ok := &syncer{Writer: io.Discard}
	assert.NoError(t, syncLogger(newLogger(ok)))
	assert.Equal(t, 1, ok.syncs)

	for _, errno := range []error{syscall.EINVAL, syscall.ENOTTY} {
		assert.NoError(t, syncLogger(newLogger(&syncer{Writer: io.Discard, err: errno})))
	}

	failure := errors.New("disk full")
	assert.ErrorIs(t, syncLogger(newLogger(&syncer{Writer: io.Discard, err: failure})), failure)
}
