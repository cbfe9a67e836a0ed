// Package obs provides the module's internal diagnostic logging.
//
// It mirrors the shape of TheEntropyCollective/noisefs's
// pkg/common/logging package (a package-level default logger reachable
// via L(), swappable via SetLogger) but is built on go.uber.org/zap
// instead of a hand-rolled writer, per the ambient-stack dependency
// promotion documented in SPEC_FULL.md and DESIGN.md.
//
// Nothing in this module's public API depends on obs: it is an
// internal collaborator used for diagnostics only (uncaught-exception
// delivery, worker lifecycle, factory registration), never on any hot
// synchronization path (Mutex/EventFlag operations never log).
package obs

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.RWMutex
	current *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	current = l.Sugar()
}

// SetLogger installs l as the module-wide default logger. A nil l
// installs a no-op logger. Safe to call concurrently.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		current = zap.NewNop().Sugar()
		return
	}
	current = l.Sugar()
}

// L returns the current module-wide logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}
