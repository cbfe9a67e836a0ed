package posix

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/TheEntropyCollective/oswrapper/varpool"
)

// maxConcurrentScans bounds how many goroutines may be walking a
// single variablePool's free-list at once. The scan itself is correct
// without this (it runs under mu), but under heavy contention a long
// first-fit walk holds mu for the whole scan; the semaphore caps how
// many callers pile up waiting to *start* a scan so the backend
// degrades to queuing instead of an unbounded goroutine pile-up, a
// purely internal throughput guard invisible at the API.
const maxConcurrentScans = 64

// chunk is one free-or-used run within the pool's backing region.
type chunk struct {
	start, size uintptr
	used        bool
}

// variablePool sub-allocates a single []byte region with first-fit
// placement, grounded on StdCppVariableMemoryPoolFactory's intent (one
// region, arbitrary request sizes) but implemented as a real
// coalescing allocator since the StdCpp backend just forwards to
// malloc/free.
type variablePool struct {
	mu      sync.Mutex
	region  []byte
	chunks  []chunk
	scanSem *semaphore.Weighted
}

func (p *variablePool) Allocate(size uintptr) varpool.Pointer {
	if size == 0 {
		return varpool.Nil
	}
	if err := p.scanSem.Acquire(context.Background(), 1); err != nil {
		return varpool.Nil
	}
	defer p.scanSem.Release(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.chunks {
		if c.used || c.size < size {
			continue
		}
		if c.size == size {
			p.chunks[i].used = true
		} else {
			p.chunks[i] = chunk{start: c.start, size: size, used: true}
			rest := chunk{start: c.start + size, size: c.size - size, used: false}
			p.chunks = append(p.chunks, chunk{})
			copy(p.chunks[i+2:], p.chunks[i+1:])
			p.chunks[i+1] = rest
		}
		return varpool.NewPointer(p.region[c.start : c.start+size])
	}
	return varpool.Nil
}

func (p *variablePool) Deallocate(ptr varpool.Pointer) {
	if ptr.IsNil() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b := ptr.Bytes()
	if len(b) == 0 {
		return
	}
	for i := range p.chunks {
		if &p.region[p.chunks[i].start] == &b[0] {
			p.chunks[i].used = false
			p.coalesce()
			return
		}
	}
}

func (p *variablePool) coalesce() {
	merged := p.chunks[:0]
	for _, c := range p.chunks {
		if n := len(merged); n > 0 && !merged[n-1].used && !c.used {
			merged[n-1].size += c.size
			continue
		}
		merged = append(merged, c)
	}
	p.chunks = merged
}

type varPoolFactory struct{}

func (varPoolFactory) Create(poolSize uintptr, region []byte) (varpool.VariableMemoryPool, error) {
	if poolSize == 0 {
		return nil, errors.New("varpool: poolSize must be positive")
	}
	if region == nil {
		region = make([]byte, poolSize)
	} else if uintptr(len(region)) < poolSize {
		return nil, errors.New("varpool: supplied region smaller than poolSize")
	}
	return &variablePool{
		region:  region,
		chunks:  []chunk{{start: 0, size: poolSize, used: false}},
		scanSem: semaphore.NewWeighted(maxConcurrentScans),
	}, nil
}

func (varPoolFactory) Destroy(varpool.VariableMemoryPool) {}
