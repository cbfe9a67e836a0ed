package posix

import (
	"sync"

	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/internal/gid"
	"github.com/TheEntropyCollective/oswrapper/mutex"
)

// recursiveMutex is a recursive mutex built on a plain sync.Mutex plus
// an owner-id field, grounded on StdCppOSWrapper's use of
// std::recursive_mutex (StdCppMutexFactory.cpp): no off-the-shelf
// recursive-lock package exists in the example pack, so this is the
// idiomatic Go rendition of the same shape.
type recursiveMutex struct {
	mu              sync.Mutex // guards owner/count/waiters
	cond            *sync.Cond
	owner           uint64
	held            bool
	count           int
	priorityCeiling int
	hasCeiling      bool
}

func newRecursiveMutex(priorityCeiling int, hasCeiling bool) *recursiveMutex {
	m := &recursiveMutex{priorityCeiling: priorityCeiling, hasCeiling: hasCeiling}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *recursiveMutex) Lock() errkind.Error {
	return m.lockWithin(errkind.Forever)
}

func (m *recursiveMutex) TryLock() errkind.Error {
	return m.lockWithin(errkind.Polling)
}

func (m *recursiveMutex) TimedLock(t errkind.Timeout) errkind.Error {
	return m.lockWithin(t)
}

func (m *recursiveMutex) lockWithin(t errkind.Timeout) errkind.Error {
	self := gid.Current()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held && m.owner == self {
		m.count++
		return errkind.OK
	}

	if !m.held {
		m.held = true
		m.owner = self
		m.count = 1
		return errkind.OK
	}

	if t.IsPolling() {
		return errkind.TimedOut
	}

	if t.IsForever() {
		for m.held {
			m.cond.Wait()
		}
		m.held = true
		m.owner = self
		m.count = 1
		return errkind.OK
	}

	// Bounded wait: sync.Cond has no WaitTimeout, so a helper goroutine
	// wakes it once the deadline passes, the same polling-via-timer
	// rendition the teacher's workers pool uses for bounded waits.
	deadline := t.Duration()
	done := make(chan struct{})
	timedOut := false
	timer := newStopper(deadline, func() {
		m.mu.Lock()
		close(done)
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer timer.Stop()

	for m.held {
		select {
		case <-done:
			timedOut = true
		default:
		}
		if timedOut {
			break
		}
		m.cond.Wait()
	}
	if timedOut && m.held {
		return errkind.TimedOut
	}
	m.held = true
	m.owner = self
	m.count = 1
	return errkind.OK
}

func (m *recursiveMutex) Unlock() errkind.Error {
	self := gid.Current()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.held || m.owner != self {
		return errkind.NotLocked
	}
	m.count--
	if m.count == 0 {
		m.held = false
		m.cond.Broadcast()
	}
	return errkind.OK
}

func (m *recursiveMutex) PriorityCeiling() (int, bool) {
	return m.priorityCeiling, m.hasCeiling
}

// mutexFactory implements mutex.Factory for the posix backend.
type mutexFactory struct{}

func (mutexFactory) Create(priorityCeiling int, hasCeiling bool) (mutex.Mutex, error) {
	return newRecursiveMutex(priorityCeiling, hasCeiling), nil
}

func (mutexFactory) Destroy(mutex.Mutex) {
	// Backed by the Go garbage collector; nothing to release explicitly.
}
