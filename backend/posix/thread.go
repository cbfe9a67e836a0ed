package posix

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/internal/gid"
	"github.com/TheEntropyCollective/oswrapper/internal/obs"
	"github.com/TheEntropyCollective/oswrapper/thread"
)

// priorityRange is the advisory [lowest, highest] priority window this
// backend reports, recorded semantically rather than numerically: per
// spec.md, "highest" may be numerically below "lowest" (an inverted
// mapping), so the two ends are kept distinct from the numeric min/max
// derived from them. Go has no native goroutine-priority knob, so,
// like StdCppOSWrapper ("can not set real priority by this class"),
// the range is recorded and returned but never fed to the scheduler.
var priorityRange = struct {
	mu              sync.Mutex
	lowest, highest int
}{lowest: 0, highest: 10}

// SetPriorityRange changes the advisory priority window reported by
// PriorityMax/PriorityMin and HighestPriority/LowestPriority. Create
// does not check a Thread's priority against it. Mirrors spec.md §6's
// setPriorityRange; call before any Thread is created.
func SetPriorityRange(lowest, highest int) {
	priorityRange.mu.Lock()
	defer priorityRange.mu.Unlock()
	priorityRange.lowest, priorityRange.highest = lowest, highest
}

func getPriorityRange() (lowest, highest int) {
	priorityRange.mu.Lock()
	defer priorityRange.mu.Unlock()
	return priorityRange.lowest, priorityRange.highest
}

// goThread is the posix backend's concrete Thread implementation,
// ported from StdCppThreadFactory.cpp's StdCppThread: a background
// goroutine parked on a start signal, woken by Start(), and reporting
// completion through a condition variable rather than rolling the
// goroutine back up for every run.
type goThread struct {
	handle *thread.Thread

	r        thread.Runnable
	priority atomic.Int64
	lastGoID atomic.Uint64

	mu           sync.Mutex
	cond         *sync.Cond
	active       bool
	endRequested bool
	startedOnce  bool
}

func (g *goThread) start() {
	g.mu.Lock()
	if g.active {
		g.mu.Unlock()
		return
	}
	g.active = true
	g.startedOnce = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *goThread) wait(t errkind.Timeout) errkind.Error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t.IsForever() {
		for g.active {
			g.cond.Wait()
		}
		return errkind.OK
	}
	if t.IsPolling() {
		if g.active {
			return errkind.TimedOut
		}
		return errkind.OK
	}

	deadline := time.Now().Add(t.Duration())
	for g.active {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errkind.TimedOut
		}
		timer := newStopper(remaining, func() {
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		})
		g.cond.Wait()
		timer.Stop()
	}
	return errkind.OK
}

func (g *goThread) isFinished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.active
}

func (g *goThread) setPriority(priority int) {
	if priority == thread.PriorityInherit {
		if cur := thread.CurrentThread(); cur != nil {
			priority = cur.Priority()
		} else {
			priority = thread.PriorityNormal()
		}
	}
	g.priority.Store(int64(priority))
}

func (g *goThread) priority() int {
	return int(g.priority.Load())
}

func (g *goThread) nativeHandle() uint64 {
	return g.lastGoID.Load()
}

// loop is the background goroutine body: wait for Start(), run the
// Runnable inside runOnce, report finished, repeat until
// endThread() tears it down. Go's runtime never reuses this goroutine
// for anything else, but keeping the wait/run cycle explicit mirrors
// the original and lets ThreadPool workers reuse one goThread across
// many tasks.
func (g *goThread) loop() {
	for {
		g.mu.Lock()
		for !g.active {
			g.cond.Wait()
		}
		if g.endRequested {
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()

		g.runOnce()

		g.mu.Lock()
		g.active = false
		g.cond.Broadcast()
		g.mu.Unlock()
	}
}

func (g *goThread) runOnce() {
	g.lastGoID.Store(gid.Current())
	threadRegistry.put(g)
	defer threadRegistry.remove()

	defer func() {
		if r := recover(); r != nil {
			if r == exitSentinel {
				return
			}
			message := fmt.Sprintf("%v\n%s", r, debug.Stack())
			obs.L().Warnw("uncaught panic in thread runnable", "thread", g.handle.Name(), "panic", fmt.Sprint(r))
			func() {
				defer func() {
					if r2 := recover(); r2 != nil {
						obs.L().Errorw("uncaught exception handler itself panicked", "thread", g.handle.Name(), "panic", fmt.Sprint(r2))
					}
				}()
				g.handle.HandleUncaught(message)
			}()
		}
	}()

	if g.r != nil {
		g.r.Run()
	}
}

func (g *goThread) endThread() {
	g.wait(errkind.Forever)
	g.mu.Lock()
	g.endRequested = true
	g.active = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// exitSentinel is the value runOnce's recover() checks for: Go's
// runtime.Goexit() itself can't be caught by recover, so Thread.Exit()
// here uses a dedicated panic value instead, caught only inside
// runOnce and swallowed, exactly like the original's Exit exception
// type being caught by a dedicated catch clause.
var exitSentinel = new(struct{})

type threadFactory struct{}

func (threadFactory) Create(r thread.Runnable, priority int, stackSize uint, name string) (*thread.Thread, error) {
	g := &goThread{r: r}
	g.cond = sync.NewCond(&g.mu)
	g.setPriority(priority)
	handle := thread.NewHandle(name, g, g.priority(), stackSize)
	g.handle = handle
	threadRegistry.register(handle, g)

	go g.loop()

	return handle, nil
}

func (threadFactory) Destroy(t *thread.Thread) {
	if t == nil {
		return
	}
	if g, ok := threadRegistry.implOf(t); ok {
		g.endThread()
		threadRegistry.unregister(t)
	}
}

func (threadFactory) Exit() {
	panic(exitSentinel)
}

func (threadFactory) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (threadFactory) Yield() {
	runtime.Gosched()
}

func (threadFactory) CurrentThread() *thread.Thread {
	if g, ok := threadRegistry.current(); ok {
		return g.handle
	}
	return nil
}

func (threadFactory) PriorityMax() int {
	lowest, highest := getPriorityRange()
	if lowest > highest {
		return lowest
	}
	return highest
}

func (threadFactory) PriorityMin() int {
	lowest, highest := getPriorityRange()
	if lowest > highest {
		return highest
	}
	return lowest
}

func (threadFactory) HighestPriority() int {
	_, highest := getPriorityRange()
	return highest
}

func (threadFactory) LowestPriority() int {
	lowest, _ := getPriorityRange()
	return lowest
}
