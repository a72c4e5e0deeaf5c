package wasm

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the logger used by the loader. It is a no-op logger unless SetLogger has been called.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger replaces the loader's logger. It is safe to call while modules are being loaded or compiled.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}
