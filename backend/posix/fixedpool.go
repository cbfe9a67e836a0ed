package posix

import (
	"errors"
	"sync"

	"github.com/TheEntropyCollective/oswrapper/fixedpool"
)

// blockPool is a pure-Go rendition of a fixed-block pool: a single
// backing []byte sliced into poolSize blocks of blockSize bytes, with
// a free-list of block indices. StdCppFixedMemoryPoolFactory just
// forwards to malloc/free per block (it never actually pools); this
// backend does real block bookkeeping over one contiguous region with
// no per-call heap traffic (Allocate pops the free-list in O(1);
// Deallocate finds the block's index by a linear scan), closer
// to the embedded-oriented backends (Itron, Windows) the spec
// generalizes over.
type blockPool struct {
	mu        sync.Mutex
	region    []byte
	blockSize uintptr
	free      []int // indices of free blocks, LIFO
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
	// Walk region in blockSize steps until the candidate's first byte
	// matches, since this backend never does unsafe.Pointer arithmetic.
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
