// Package mutex defines the recursive, optionally priority-ceilinged
// Mutex contract (spec.md Component D) and its scoped-acquisition
// guard, ScopedLock.
//
// Concrete Mutex implementations are supplied by a backend (see
// backend/posix) and reached through a single process-wide Factory
// registered once via RegisterFactory.
package mutex

import (
	"sync/atomic"

	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/internal/assert"
)

// Mutex is a recursive mutex: the same logical owner may re-lock it,
// and must unlock once per successful lock. Unlock() by a non-owner
// (including when the mutex is not currently held at all) returns
// errkind.NotLocked.
type Mutex interface {
	Lock() errkind.Error
	TryLock() errkind.Error
	TimedLock(t errkind.Timeout) errkind.Error
	Unlock() errkind.Error

	// PriorityCeiling returns the advisory priority-ceiling value for
	// this mutex and whether one was configured at creation.
	PriorityCeiling() (priority int, ok bool)
}

// Factory creates and destroys Mutex instances. hasCeiling selects
// whether priorityCeiling is meaningful.
type Factory interface {
	Create(priorityCeiling int, hasCeiling bool) (Mutex, error)
	Destroy(Mutex)
}

var factory atomic.Pointer[Factory]

// RegisterFactory installs f as the process-wide Mutex factory.
// Re-registration is permitted but should not be done once mutexes
// already exist (spec.md §6).
func RegisterFactory(f Factory) {
	factory.Store(&f)
}

func currentFactory() Factory {
	p := factory.Load()
	assert.Precondition(p != nil, "mutex factory must be registered before use")
	return *p
}

// Create creates a plain Mutex with no priority ceiling.
func Create() (Mutex, error) {
	return currentFactory().Create(0, false)
}

// CreateWithCeiling creates a Mutex advertising the given priority
// ceiling.
func CreateWithCeiling(priorityCeiling int) (Mutex, error) {
	return currentFactory().Create(priorityCeiling, true)
}

// Destroy destroys m via the registered factory. Destroy(nil) is a
// no-op.
func Destroy(m Mutex) {
	if m == nil {
		return
	}
	currentFactory().Destroy(m)
}
