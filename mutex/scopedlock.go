package mutex

import "github.com/TheEntropyCollective/oswrapper/errkind"

// noCopy marks a type non-copyable for go vet's -copylocks check, the
// same idiom golang.org/x/sync/errgroup.Group and sync.Mutex itself
// use. It has no runtime behavior.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ScopedLock is the RAII-equivalent guard from spec.md §4.D: it
// acquires m at construction and must be released at every exit path.
// Go has no destructors, so callers write:
//
//	guard := mutex.Lock(m)
//	defer guard.Release()
//
// exactly as the teacher leans on defer for cleanup throughout
// pkg/common/workers/pool.go (defer p.wg.Done(), defer cancel()).
type ScopedLock struct {
	_   noCopy
	m   Mutex
	err errkind.Error
}

// Lock blocks until m is acquired (equivalent to TimedLock(Forever))
// and returns a guard over it.
func Lock(m Mutex) *ScopedLock {
	g, _ := TimedLock(m, errkind.Forever)
	return g
}

// TimedLock attempts to acquire m within t and returns a guard
// together with the error from the underlying TimedLock call. The
// guard is returned even on failure so Release() is always safe to
// call (it simply no-ops if the lock was never actually acquired).
func TimedLock(m Mutex, t errkind.Timeout) (*ScopedLock, errkind.Error) {
	err := m.TimedLock(t)
	g := &ScopedLock{m: m, err: err}
	if err != errkind.OK {
		g.m = nil
	}
	return g, err
}

// Release unlocks the underlying mutex if it is held. Idempotent: a
// second call, or a call on a guard whose acquisition failed, does
// nothing.
func (g *ScopedLock) Release() {
	if g == nil || g.m == nil {
		return
	}
	g.m.Unlock()
	g.m = nil
}

// Err reports the error returned by the acquisition that produced g.
func (g *ScopedLock) Err() errkind.Error {
	if g == nil {
		return errkind.OtherError
	}
	return g.err
}
