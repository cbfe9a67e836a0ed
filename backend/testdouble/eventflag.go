package testdouble

import (
	"sync"
	"time"

	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/eventflag"
)

// tdEventFlag is backend/posix's stdEventFlag plus one restriction:
// only one goroutine may be parked in a wait call at a time. A second
// concurrent waiter gets errkind.OtherThreadWaiting immediately
// instead of queuing behind the first, grounded in the original
// ITRON-family OSWrapper backends (not ported here) that impose the
// same restriction, and called out by name in spec.md §9's Open
// Question as a choice worth preserving on at least one backend so
// consumer code can exercise the OtherThreadWaiting path at all —
// backend/posix's unrestricted sync.Cond waiters never produce it.
type tdEventFlag struct {
	mu        sync.Mutex
	cond      *sync.Cond
	autoReset bool
	pattern   eventflag.Pattern
	waiting   bool
}

func newTdEventFlag(autoReset bool) *tdEventFlag {
	e := &tdEventFlag{autoReset: autoReset}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *tdEventFlag) WaitAny(t errkind.Timeout) errkind.Error {
	return e.Wait(eventflag.All, eventflag.OR, nil, t)
}

func (e *tdEventFlag) WaitOne(pos int, t errkind.Timeout) errkind.Error {
	if !eventflag.ValidPos(pos) {
		return errkind.InvalidParameter
	}
	return e.Wait(eventflag.BitAt(pos), eventflag.OR, nil, t)
}

func (e *tdEventFlag) Wait(bitPattern eventflag.Pattern, mode eventflag.Mode, observed *eventflag.Pattern, t errkind.Timeout) errkind.Error {
	if mode != eventflag.OR && mode != eventflag.AND {
		return errkind.InvalidParameter
	}
	if bitPattern == 0 {
		return errkind.InvalidParameter
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if tdSatisfied(bitPattern, e.pattern, mode) {
		return e.consume(bitPattern, observed)
	}

	if e.waiting {
		return errkind.OtherThreadWaiting
	}
	e.waiting = true
	defer func() { e.waiting = false }()

	if t.IsPolling() {
		return errkind.TimedOut
	}

	if t.IsForever() {
		for !tdSatisfied(bitPattern, e.pattern, mode) {
			e.cond.Wait()
		}
		return e.consume(bitPattern, observed)
	}

	deadline := time.Now().Add(t.Duration())
	for !tdSatisfied(bitPattern, e.pattern, mode) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errkind.TimedOut
		}
		stop := newStopper(remaining, func() {
			e.mu.Lock()
			e.cond.Broadcast()
			e.mu.Unlock()
		})
		e.cond.Wait()
		stop.Stop()
		if !tdSatisfied(bitPattern, e.pattern, mode) && time.Now().After(deadline) {
			return errkind.TimedOut
		}
	}
	return e.consume(bitPattern, observed)
}

// consume must be called with mu held; it captures the observed
// pattern before any auto-reset zeroing, matching eventflag's
// documented ordering.
func (e *tdEventFlag) consume(bitPattern eventflag.Pattern, observed *eventflag.Pattern) errkind.Error {
	if observed != nil {
		*observed = e.pattern
	}
	if e.autoReset {
		e.pattern = 0
	}
	return errkind.OK
}

func tdSatisfied(bitPattern, current eventflag.Pattern, mode eventflag.Mode) bool {
	if mode == eventflag.AND {
		return bitPattern&current == bitPattern
	}
	return bitPattern&current != 0
}

func (e *tdEventFlag) SetAll() errkind.Error { return e.Set(eventflag.All) }

func (e *tdEventFlag) SetOne(pos int) errkind.Error {
	if !eventflag.ValidPos(pos) {
		return errkind.InvalidParameter
	}
	return e.Set(eventflag.BitAt(pos))
}

func (e *tdEventFlag) Set(bitPattern eventflag.Pattern) errkind.Error {
	e.mu.Lock()
	e.pattern |= bitPattern
	e.cond.Broadcast()
	e.mu.Unlock()
	return errkind.OK
}

func (e *tdEventFlag) ResetAll() errkind.Error { return e.Reset(eventflag.All) }

func (e *tdEventFlag) ResetOne(pos int) errkind.Error {
	if !eventflag.ValidPos(pos) {
		return errkind.InvalidParameter
	}
	return e.Reset(eventflag.BitAt(pos))
}

func (e *tdEventFlag) Reset(bitPattern eventflag.Pattern) errkind.Error {
	e.mu.Lock()
	e.pattern &^= bitPattern
	e.mu.Unlock()
	return errkind.OK
}

func (e *tdEventFlag) CurrentPattern() eventflag.Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pattern
}

type eventFlagFactory struct{}

func (eventFlagFactory) Create(autoReset bool) (eventflag.EventFlag, error) {
	return newTdEventFlag(autoReset), nil
}

func (eventFlagFactory) Destroy(eventflag.EventFlag) {}
