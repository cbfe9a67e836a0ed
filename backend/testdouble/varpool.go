package testdouble

import (
	"errors"
	"sync"

	"github.com/TheEntropyCollective/oswrapper/varpool"
)

// chunk is one free-or-used run within the pool's backing region.
type chunk struct {
	start, size uintptr
	used        bool
}

// variablePool is backend/posix's first-fit coalescing allocator
// minus the scanSem concurrency throttle: testdouble consumers are
// expected to be single-threaded-ish unit tests, not the
// production-scale contention backend/posix's scanSem guards against,
// so the extra golang.org/x/sync/semaphore dependency has no
// component here to serve.
type variablePool struct {
	mu     sync.Mutex
	region []byte
	chunks []chunk
}

func (p *variablePool) Allocate(size uintptr) varpool.Pointer {
	if size == 0 {
		return varpool.Nil
	}
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
		region: region,
		chunks: []chunk{{start: 0, size: poolSize, used: false}},
	}, nil
}

func (varPoolFactory) Destroy(varpool.VariableMemoryPool) {}
