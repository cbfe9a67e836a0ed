package posix

import (
	"sync"
	"time"

	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/eventflag"
)

// stdEventFlag is ported near line-for-line from
// StdCppOSWrapper/StdCppEventFlagFactory.cpp: a mutex-guarded pattern
// word plus a condition variable, broadcasting on every Set so all
// waiters re-check their predicate. Under AutoReset, whichever waiter
// re-acquires the internal lock first after being woken consumes the
// pattern; this broadcast-wake, single-winner-under-lock behavior
// matches the C++ original's unique_lock/condition_variable pairing
// (see DESIGN.md Open Question resolutions).
type stdEventFlag struct {
	mu        sync.Mutex
	cond      *sync.Cond
	autoReset bool
	pattern   eventflag.Pattern
}

func newStdEventFlag(autoReset bool) *stdEventFlag {
	e := &stdEventFlag{autoReset: autoReset}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func satisfied(bitPattern, current eventflag.Pattern, mode eventflag.Mode) bool {
	if mode == eventflag.AND {
		return bitPattern&current == bitPattern
	}
	return bitPattern&current != 0
}

func (e *stdEventFlag) WaitAny(t errkind.Timeout) errkind.Error {
	return e.Wait(eventflag.All, eventflag.OR, nil, t)
}

func (e *stdEventFlag) WaitOne(pos int, t errkind.Timeout) errkind.Error {
	if !eventflag.ValidPos(pos) {
		return errkind.InvalidParameter
	}
	return e.Wait(eventflag.BitAt(pos), eventflag.OR, nil, t)
}

func (e *stdEventFlag) Wait(bitPattern eventflag.Pattern, mode eventflag.Mode, observed *eventflag.Pattern, t errkind.Timeout) errkind.Error {
	if mode != eventflag.OR && mode != eventflag.AND {
		return errkind.InvalidParameter
	}
	if bitPattern == 0 {
		return errkind.InvalidParameter
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if t.IsForever() {
		for !satisfied(bitPattern, e.pattern, mode) {
			e.cond.Wait()
		}
	} else if t.IsPolling() {
		if !satisfied(bitPattern, e.pattern, mode) {
			return errkind.TimedOut
		}
	} else {
		deadline := time.Now().Add(t.Duration())
		for !satisfied(bitPattern, e.pattern, mode) {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return errkind.TimedOut
			}
			woke := make(chan struct{})
			timer := newStopper(remaining, func() {
				e.mu.Lock()
				e.cond.Broadcast()
				e.mu.Unlock()
				close(woke)
			})
			e.cond.Wait()
			timer.Stop()
			select {
			case <-woke:
			default:
			}
			if !satisfied(bitPattern, e.pattern, mode) && time.Now().After(deadline) {
				return errkind.TimedOut
			}
		}
	}

	if observed != nil {
		*observed = e.pattern
	}
	if e.autoReset {
		e.pattern = 0
	}
	return errkind.OK
}

func (e *stdEventFlag) SetAll() errkind.Error { return e.Set(eventflag.All) }

func (e *stdEventFlag) SetOne(pos int) errkind.Error {
	if !eventflag.ValidPos(pos) {
		return errkind.InvalidParameter
	}
	return e.Set(eventflag.BitAt(pos))
}

func (e *stdEventFlag) Set(bitPattern eventflag.Pattern) errkind.Error {
	e.mu.Lock()
	e.pattern |= bitPattern
	e.cond.Broadcast()
	e.mu.Unlock()
	return errkind.OK
}

func (e *stdEventFlag) ResetAll() errkind.Error { return e.Reset(eventflag.All) }

func (e *stdEventFlag) ResetOne(pos int) errkind.Error {
	if !eventflag.ValidPos(pos) {
		return errkind.InvalidParameter
	}
	return e.Reset(eventflag.BitAt(pos))
}

func (e *stdEventFlag) Reset(bitPattern eventflag.Pattern) errkind.Error {
	e.mu.Lock()
	e.pattern &^= bitPattern
	e.mu.Unlock()
	return errkind.OK
}

func (e *stdEventFlag) CurrentPattern() eventflag.Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pattern
}

type eventFlagFactory struct{}

func (eventFlagFactory) Create(autoReset bool) (eventflag.EventFlag, error) {
	return newStdEventFlag(autoReset), nil
}

func (eventFlagFactory) Destroy(eventflag.EventFlag) {}
