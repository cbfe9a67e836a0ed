package posix

import (
	"sync"

	"github.com/TheEntropyCollective/oswrapper/internal/gid"
	"github.com/TheEntropyCollective/oswrapper/thread"
)

// threadTable tracks which goThread is currently executing on which
// goroutine, and which goThread backs a given *thread.Thread handle —
// the Go analogue of StdCppThreadFactory's std::thread::id-keyed map,
// built on internal/gid instead of a native thread id.
type threadTable struct {
	mu        sync.Mutex
	byGoID    map[uint64]*goThread
	byHandle  map[*thread.Thread]*goThread
}

var threadRegistry = &threadTable{
	byGoID:   make(map[uint64]*goThread),
	byHandle: make(map[*thread.Thread]*goThread),
}

func (t *threadTable) register(h *thread.Thread, g *goThread) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byHandle[h] = g
}

func (t *threadTable) unregister(h *thread.Thread) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byHandle, h)
}

func (t *threadTable) implOf(h *thread.Thread) (*goThread, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.byHandle[h]
	return g, ok
}

// put associates the calling goroutine with g for the duration of its
// current run; remove clears it.
func (t *threadTable) put(g *goThread) {
	id := gid.Current()
	t.mu.Lock()
	t.byGoID[id] = g
	t.mu.Unlock()
}

func (t *threadTable) remove() {
	id := gid.Current()
	t.mu.Lock()
	delete(t.byGoID, id)
	t.mu.Unlock()
}

func (t *threadTable) current() (*goThread, bool) {
	id := gid.Current()
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.byGoID[id]
	return g, ok
}
