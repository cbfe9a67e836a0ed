// Package testdouble is an in-memory, deterministic OSWrapper
// backend for unit-testing code that consumes mutex/eventflag/thread/
// fixedpool/varpool/timer without depending on backend/posix's real
// goroutine timing, grounded on the original's TestDoubleOSWrapper
// family (TestDoubleThreadFactory.h and siblings under
// original_source/platform/TestDoubleOSWrapper/).
//
// The original's TestDoubleThreadFactory is a pure no-op: start()
// does nothing and the wrapped Runnable's Run() is never invoked at
// all, which works for the original's test suites because they only
// assert on OSWrapper call sequencing, never on a Runnable's side
// effects. That shape would make this backend useless for testing any
// Go consumer that expects a dispatched task to actually run, so this
// port deviates deliberately: every Thread here really executes its
// Runnable, on its own goroutine, the same as backend/posix. What
// stays "test double"-like is the EventFlag's single-waiter
// restriction (see eventflag.go) and the overall preference for
// simple, easy-to-reason-about state over backend/posix's production
// tuning (no semaphore-bounded scan concurrency in varpool, no
// debug.Stack() noise beyond what panics already need).
package testdouble

import (
	"github.com/TheEntropyCollective/oswrapper/eventflag"
	"github.com/TheEntropyCollective/oswrapper/fixedpool"
	"github.com/TheEntropyCollective/oswrapper/mutex"
	"github.com/TheEntropyCollective/oswrapper/thread"
	"github.com/TheEntropyCollective/oswrapper/timer"
	"github.com/TheEntropyCollective/oswrapper/varpool"
)

// Register installs every testdouble-backed factory as the
// process-wide factory for its component. Call once during test
// setup, before any component's Create is used — mirrors
// backend/posix.Register's contract exactly so tests can swap one
// import for the other.
func Register() {
	mutex.RegisterFactory(mutexFactory{})
	eventflag.RegisterFactory(eventFlagFactory{})
	thread.RegisterFactory(threadFactory{})
	fixedpool.RegisterFactory(fixedPoolFactory{})
	varpool.RegisterFactory(varPoolFactory{})
	timer.RegisterPeriodicFactory(periodicTimerFactory{})
	timer.RegisterOneShotFactory(oneShotTimerFactory{})
}
