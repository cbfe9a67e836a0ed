// Package posix is the default OSWrapper backend: every primitive is
// realized directly on goroutines and the Go standard library's sync
// and time packages, the same role StdCppOSWrapper plays for the
// original cppelib (a portable, dependency-free reference backend
// usable on any platform the Go runtime targets).
package posix

import (
	"github.com/TheEntropyCollective/oswrapper/eventflag"
	"github.com/TheEntropyCollective/oswrapper/fixedpool"
	"github.com/TheEntropyCollective/oswrapper/mutex"
	"github.com/TheEntropyCollective/oswrapper/thread"
	"github.com/TheEntropyCollective/oswrapper/timer"
	"github.com/TheEntropyCollective/oswrapper/varpool"
)

// Register installs every posix-backed factory as the process-wide
// factory for its component. Call once during process startup, before
// any component's Create is used (see internal/bootstrap for the
// ordered wiring a full application should follow).
func Register() {
	mutex.RegisterFactory(mutexFactory{})
	eventflag.RegisterFactory(eventFlagFactory{})
	thread.RegisterFactory(threadFactory{})
	fixedpool.RegisterFactory(fixedPoolFactory{})
	varpool.RegisterFactory(varPoolFactory{})
	timer.RegisterPeriodicFactory(periodicTimerFactory{})
	timer.RegisterOneShotFactory(oneShotTimerFactory{})
}
