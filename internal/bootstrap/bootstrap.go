package bootstrap

import (
	"fmt"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/TheEntropyCollective/oswrapper/internal/obs"
)

// Backend registers every factory it owns (mutex, eventflag, thread,
// fixedpool, varpool, timer) with this module's process-wide
// registries. backend/posix.Register and backend/testdouble.Register
// both satisfy this signature.
type Backend func()

// Init tunes GOMAXPROCS for the container's cgroup quota, then calls
// backend exactly once to install every factory this module's
// components look up lazily thereafter. Re-registration (calling Init
// twice, or calling backend a second time directly) is permitted but
// should never be done once resources already exist — matching
// spec.md §6's "don't, once resources exist" stance, carried over
// unchanged rather than guarded against, since guarding it would need
// a process-wide "any resource ever created" flag this module has no
// other reason to track.
//
// cfg isn't threaded into the backend itself (Backend takes no
// arguments, so any backend implementation — posix, testdouble, or a
// third party — can satisfy it without depending on this package);
// instead Init logs it once so an operator can see what the process
// started with, and callers read it back (ResolvedPoolSize,
// cfg.PriorityLow/PriorityHigh, ...) when constructing their
// ThreadPool and calling backend-specific setup like
// posix.SetPriorityRange.
func Init(cfg Config, backend Backend) {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		obs.L().Infow("automaxprocs", "message", fmt.Sprintf(format, args...))
	})); err != nil {
		obs.L().Warnw("automaxprocs: GOMAXPROCS left unchanged", "error", err)
	}

	obs.L().Infow("bootstrap: registering backend factories",
		"thread_pool_size", cfg.ResolvedPoolSize(),
		"priority_low", cfg.PriorityLow,
		"priority_high", cfg.PriorityHigh,
	)
	backend()
}
