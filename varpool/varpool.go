// Package varpool defines VariableMemoryPool (spec.md Component C): a
// single region sub-allocated on demand, arbitrary request sizes,
// first-fit placement.
package varpool

import (
	"sync/atomic"

	"github.com/TheEntropyCollective/oswrapper/internal/assert"
)

// Pointer stands in for the original's void*, the same wrapper
// fixedpool.Pointer uses.
type Pointer struct {
	bytes []byte
}

// Bytes exposes the block's backing storage.
func (p Pointer) Bytes() []byte { return p.bytes }

// IsNil reports whether p is the zero Pointer.
func (p Pointer) IsNil() bool { return p.bytes == nil }

// Nil is the zero value returned on allocation failure.
var Nil = Pointer{}

// NewPointer wraps b as a Pointer. Used by backend implementations
// only; application code receives Pointers from Allocate.
func NewPointer(b []byte) Pointer { return Pointer{bytes: b} }

// VariableMemoryPool sub-allocates variable-size blocks from a single
// region.
type VariableMemoryPool interface {
	Allocate(size uintptr) Pointer
	Deallocate(p Pointer)
}

// Factory creates and destroys VariableMemoryPool instances.
// Create(0, ...) returns (nil, non-nil error) — the zero-size boundary
// case from spec.md §8. A nil region means the backend allocates its
// own backing storage.
type Factory interface {
	Create(poolSize uintptr, region []byte) (VariableMemoryPool, error)
	Destroy(VariableMemoryPool)
}

var factory atomic.Pointer[Factory]

// RegisterFactory installs f as the process-wide VariableMemoryPool
// factory.
func RegisterFactory(f Factory) {
	factory.Store(&f)
}

func currentFactory() Factory {
	p := factory.Load()
	assert.Precondition(p != nil, "varpool factory must be registered before use")
	return *p
}

// Create creates a pool managing poolSize bytes. region == nil means
// the backend allocates its own storage.
func Create(poolSize uintptr, region []byte) (VariableMemoryPool, error) {
	return currentFactory().Create(poolSize, region)
}

// Destroy destroys p via the registered factory. Destroy(nil) is a
// no-op.
func Destroy(p VariableMemoryPool) {
	if p == nil {
		return
	}
	currentFactory().Destroy(p)
}
