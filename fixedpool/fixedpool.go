// Package fixedpool defines FixedMemoryPool (spec.md Component B): a
// pool of equal-size blocks.
package fixedpool

import (
	"sync/atomic"

	"github.com/TheEntropyCollective/oswrapper/internal/assert"
)

// Pointer stands in for the original's void*: an opaque handle to an
// allocated block. The posix backend never does raw unsafe.Pointer
// arithmetic; Pointer simply carries the []byte the backend already
// owns, keeping the pointer-returning API shape without inventing
// memory unsafety that the Go reference backend doesn't need.
type Pointer struct {
	bytes []byte
}

// Bytes exposes the block's backing storage.
func (p Pointer) Bytes() []byte { return p.bytes }

// IsNil reports whether p is the zero Pointer (allocation failed or
// the slot is unused).
func (p Pointer) IsNil() bool { return p.bytes == nil }

// Nil is the zero value returned on allocation failure.
var Nil = Pointer{}

// NewPointer wraps b as a Pointer. Used by backend implementations
// only; application code receives Pointers from Allocate.
func NewPointer(b []byte) Pointer { return Pointer{bytes: b} }

// FixedMemoryPool hands out and reclaims equal-size blocks.
type FixedMemoryPool interface {
	Allocate() Pointer
	Deallocate(p Pointer)
	BlockSize() uintptr
}

// Factory creates and destroys FixedMemoryPool instances. A nil region
// means the backend allocates its own backing storage; a non-nil
// region must be at least blockSize*poolSize bytes.
type Factory interface {
	Create(blockSize, poolSize uintptr, region []byte) (FixedMemoryPool, error)
	Destroy(FixedMemoryPool)
	RequiredMemorySize(blockSize, numBlocks uintptr) uintptr
}

var factory atomic.Pointer[Factory]

// RegisterFactory installs f as the process-wide FixedMemoryPool
// factory.
func RegisterFactory(f Factory) {
	factory.Store(&f)
}

func currentFactory() Factory {
	p := factory.Load()
	assert.Precondition(p != nil, "fixedpool factory must be registered before use")
	return *p
}

// Create creates a pool of poolSize blocks of blockSize bytes each.
// region == nil means the backend allocates its own storage.
func Create(blockSize, poolSize uintptr, region []byte) (FixedMemoryPool, error) {
	return currentFactory().Create(blockSize, poolSize, region)
}

// Destroy destroys p via the registered factory. Destroy(nil) is a
// no-op.
func Destroy(p FixedMemoryPool) {
	if p == nil {
		return
	}
	currentFactory().Destroy(p)
}

// RequiredMemorySize reports the region size a caller-supplied backing
// buffer must have to hold numBlocks blocks of blockSize bytes.
func RequiredMemorySize(blockSize, numBlocks uintptr) uintptr {
	return currentFactory().RequiredMemorySize(blockSize, numBlocks)
}
