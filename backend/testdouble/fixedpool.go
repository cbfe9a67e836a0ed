package testdouble

import (
	"errors"
	"sync"

	"github.com/TheEntropyCollective/oswrapper/fixedpool"
)

// blockPool is the same free-list-over-one-region algorithm as
// backend/posix's blockPool; testdouble has no reason to diverge here
// since allocator bookkeeping isn't the concern this backend exists to
// simplify.
type blockPool struct {
	mu        sync.Mutex
	region    []byte
	blockSize uintptr
	free      []int
}

func (p *blockPool) Allocate() fixedpool.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return fixedpool.Nil
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	start := uintptr(idx) * p.blockSize
	return fixedpool.NewPointer(p.region[start : start+p.blockSize])
}

func (p *blockPool) Deallocate(ptr fixedpool.Pointer) {
	if ptr.IsNil() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.blockIndex(ptr.Bytes())
	if idx < 0 {
		return
	}
	p.free = append(p.free, idx)
}

func (p *blockPool) blockIndex(b []byte) int {
	if len(b) == 0 {
		return -1
	}
	for i := 0; uintptr(i)*p.blockSize < uintptr(len(p.region)); i++ {
		start := uintptr(i) * p.blockSize
		if &p.region[start] == &b[0] {
			return i
		}
	}
	return -1
}

func (p *blockPool) BlockSize() uintptr { return p.blockSize }

type fixedPoolFactory struct{}

func (fixedPoolFactory) Create(blockSize, poolSize uintptr, region []byte) (fixedpool.FixedMemoryPool, error) {
	if blockSize == 0 || poolSize == 0 {
		return nil, errors.New("fixedpool: blockSize and poolSize must be positive")
	}
	needed := blockSize * poolSize
	if region == nil {
		region = make([]byte, needed)
	} else if uintptr(len(region)) < needed {
		return nil, errors.New("fixedpool: supplied region smaller than blockSize*poolSize")
	}
	free := make([]int, poolSize)
	for i := range free {
		free[i] = int(poolSize) - 1 - i
	}
	return &blockPool{region: region, blockSize: blockSize, free: free}, nil
}

func (fixedPoolFactory) Destroy(fixedpool.FixedMemoryPool) {}

func (fixedPoolFactory) RequiredMemorySize(blockSize, numBlocks uintptr) uintptr {
	return blockSize * numBlocks
}
