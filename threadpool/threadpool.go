// Package threadpool provides ThreadPool (spec.md Component J): a
// fixed set of reusable worker threads, dispatched through a bounded
// free-runner queue, with an optional scoped WaitGuard for callers
// that need to block on task completion.
package threadpool

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"

	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/eventflag"
	"github.com/TheEntropyCollective/oswrapper/internal/obs"
	"github.com/TheEntropyCollective/oswrapper/internal/obs/metrics"
	"github.com/TheEntropyCollective/oswrapper/msgqueue"
	"github.com/TheEntropyCollective/oswrapper/mutex"
	"github.com/TheEntropyCollective/oswrapper/thread"
)

// noCopy marks WaitGuard non-copyable for go vet's -copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// taskRunner is a reusable worker slot: one per backing Thread. It
// waits on its own "go" EventFlag, runs whatever task was assigned,
// reports uncaught panics through the pool's handler, then signals
// completion and returns itself to the free-runner queue.
type taskRunner struct {
	pool *ThreadPool
	ev   eventflag.EventFlag

	mu           sync.Mutex
	cond         *sync.Cond
	task         thread.Runnable
	needsWaiting bool
	finished     bool
	stopped      bool
}

func newTaskRunner(pool *ThreadPool, ev eventflag.EventFlag) *taskRunner {
	r := &taskRunner{pool: pool, ev: ev}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *taskRunner) Run() {
	for {
		r.ev.WaitAny(errkind.Forever)

		r.mu.Lock()
		stop := r.stopped
		task := r.task
		r.mu.Unlock()
		if stop {
			return
		}

		r.invoke(task)

		r.mu.Lock()
		r.finished = true
		needsWaiting := r.needsWaiting
		r.cond.Broadcast()
		r.mu.Unlock()

		if !needsWaiting {
			r.pool.releaseRunner(r)
		}
	}
}

func (r *taskRunner) invoke(task thread.Runnable) {
	defer func() {
		if rec := recover(); rec != nil {
			message := fmt.Sprintf("%v\n%s", rec, debug.Stack())
			if h := r.pool.UncaughtExceptionHandler(); h != nil {
				func() {
					defer func() {
						if r2 := recover(); r2 != nil {
							obs.L().Errorw("threadpool uncaught exception handler itself panicked", "pool", r.pool.threadName, "panic", fmt.Sprint(r2))
						}
					}()
					h.HandleUncaughtException(nil, message)
				}()
			} else {
				obs.L().Warnw("uncaught panic in threadpool task, no handler installed", "pool", r.pool.threadName, "panic", message)
			}
		}
	}()
	if task != nil {
		task.Run()
	}
}

// startThread assigns task to r and wakes its worker goroutine. priority
// is applied to the backing Thread before waking it, matching the
// original's "retarget the worker's Thread to run the TaskRunner with
// the requested priority".
func (r *taskRunner) startThread(backing *thread.Thread, task thread.Runnable, priority int, needsWaiting bool) {
	r.mu.Lock()
	r.task = task
	r.needsWaiting = needsWaiting
	r.finished = false
	r.mu.Unlock()

	if priority == thread.PriorityInherit {
		if cur := thread.CurrentThread(); cur != nil {
			priority = cur.Priority()
		} else {
			priority = thread.PriorityNormal()
		}
	}
	backing.SetPriority(priority)
	r.ev.SetAll()
}

// release performs a FOREVER wait on the runner's completion before
// clearing needsWaiting and returning it to the free-runner queue, per
// spec.md §4.J invariant #4: a released WaitGuard guarantees the task
// has finished, so a caller's `defer waiter.Release()` can safely free
// whatever the task referenced.
func (r *taskRunner) release() {
	r.timedWait(errkind.Forever)
	r.mu.Lock()
	r.needsWaiting = false
	r.mu.Unlock()
	r.pool.releaseRunner(r)
}

func (r *taskRunner) timedWait(t errkind.Timeout) errkind.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.IsForever() {
		for !r.finished {
			r.cond.Wait()
		}
		return errkind.OK
	}
	if t.IsPolling() {
		if r.finished {
			return errkind.OK
		}
		return errkind.TimedOut
	}

	deadline := time.Now().Add(t.Duration())
	for !r.finished {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errkind.TimedOut
		}
		timer := time.AfterFunc(remaining, func() {
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		})
		r.cond.Wait()
		timer.Stop()
	}
	return errkind.OK
}

func (r *taskRunner) requestStop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.ev.SetAll()
}

// WaitGuard is the scoped handle spec.md §4.J returns from
// Start/TryStart/TimedStart when the caller wants to block on task
// completion. A valid WaitGuard must be released; Go has no
// destructors, so callers write `defer waiter.Release()`.
type WaitGuard struct {
	_      noCopy
	runner *taskRunner
}

// IsValid reports whether w currently owns a runner awaiting release.
func (w *WaitGuard) IsValid() bool { return w.runner != nil }

// Release waits for the task to finish (if not already) and returns
// the WaitGuard to invalid state. Safe to call on an invalid guard.
func (w *WaitGuard) Release() {
	if w.runner == nil {
		return
	}
	w.runner.release()
	w.runner = nil
}

// Wait blocks until the guarded task finishes. Equivalent to
// TimedWait(errkind.Forever). A no-op returning OK on an invalid
// guard.
func (w *WaitGuard) Wait() errkind.Error {
	return w.TimedWait(errkind.Forever)
}

// TryWait reports immediately whether the guarded task has finished.
func (w *WaitGuard) TryWait() errkind.Error {
	return w.TimedWait(errkind.Polling)
}

// TimedWait blocks until the guarded task finishes or t elapses.
func (w *WaitGuard) TimedWait(t errkind.Timeout) errkind.Error {
	if w.runner == nil {
		return errkind.OK
	}
	return w.runner.timedWait(t)
}

// Stats reports current pool occupancy.
type Stats struct {
	Capacity int
	Free     int
	InFlight int
}

// ThreadPool is a fixed-size, reusable worker pool dispatched over a
// bounded free-runner queue, per spec.md §4.J.
type ThreadPool struct {
	maxThreads      int
	defaultPriority int
	threadName      string

	freeRunners *msgqueue.Queue[*taskRunner]
	runners     []*taskRunner
	backing     []*thread.Thread

	handlerMu sync.Mutex
	handler   thread.UncaughtExceptionHandler

	active   atomic.Int64
	free     atomic.Int64
	recorder metrics.Recorder
}

// Create builds a ThreadPool of maxThreads reusable workers. Any
// allocation failure during construction rolls back all partial
// allocations (destroyMembers) before returning the wrapped error that
// caused the failure.
func Create(maxThreads int, stackSize uint, defaultPriority int, threadName string) (*ThreadPool, error) {
	return CreateWithRecorder(maxThreads, stackSize, defaultPriority, threadName, metrics.Noop())
}

// CreateWithRecorder is Create plus an explicit metrics.Recorder
// collaborator (host-supplied observability, never required — see
// SPEC_FULL.md's threadpool domain-stack note).
func CreateWithRecorder(maxThreads int, stackSize uint, defaultPriority int, threadName string, recorder metrics.Recorder) (*ThreadPool, error) {
	if maxThreads <= 0 {
		return nil, fmt.Errorf("threadpool: maxThreads must be positive, got %d", maxThreads)
	}
	if recorder == nil {
		recorder = metrics.Noop()
	}

	p := &ThreadPool{
		maxThreads:      maxThreads,
		defaultPriority: defaultPriority,
		threadName:      threadName,
		recorder:        recorder,
	}

	queue, err := msgqueue.New[*taskRunner](maxThreads, poolMutexFactory{}, poolFlagFactory{})
	if err != nil {
		return nil, fmt.Errorf("threadpool: creating free-runner queue: %w", err)
	}
	p.freeRunners = queue

	for i := 0; i < maxThreads; i++ {
		if rerr := p.spawnWorker(stackSize); rerr != nil {
			spawnErr := fmt.Errorf("threadpool: spawning worker %d of %d: %w", i+1, maxThreads, rerr)
			if rollbackErr := p.destroyMembers(); rollbackErr != nil {
				return nil, multierror.Append(spawnErr, rollbackErr)
			}
			return nil, spawnErr
		}
	}

	p.free.Store(int64(maxThreads))
	p.recorder.SetFreeWorkers(threadName, maxThreads)
	p.recorder.SetActiveWorkers(threadName, 0)

	return p, nil
}

func (p *ThreadPool) spawnWorker(stackSize uint) error {
	ev, err := eventflag.Create(true)
	if err != nil {
		return err
	}
	r := newTaskRunner(p, ev)
	backing, err := thread.Create(r, p.defaultPriority, stackSize, p.threadName)
	if err != nil {
		eventflag.Destroy(ev)
		return err
	}
	backing.Start()

	p.runners = append(p.runners, r)
	p.backing = append(p.backing, backing)
	p.freeRunners.Send(r, errkind.Forever)
	return nil
}

// Destroy signals every worker to stop, joins every worker Thread
// (which waits for a task still in flight), then deallocates. It does
// not drain the free-runner queue first; the queue is destroyed with
// whatever runners it still holds.
// Any errors encountered tearing down a partially-constructed pool are
// logged rather than returned, since callers cannot act on a failure
// that occurs after they've already committed to discarding the pool.
func Destroy(p *ThreadPool) {
	if p == nil {
		return
	}
	if err := p.destroyMembers(); err != nil {
		obs.L().Warnw("threadpool teardown encountered errors", "pool", p.threadName, "error", err)
	}
}

// destroyMembers tears down every backing resource the pool has
// allocated so far, tolerating partial construction (it may be called
// mid-rollback from Create with fewer runners than maxThreads).
// go-multierror.Append aggregates every resource that failed to release
// cleanly rather than stopping at the first, so a caller sees the whole
// picture instead of just whichever failure happened to come first.
func (p *ThreadPool) destroyMembers() error {
	var result *multierror.Error

	for _, r := range p.runners {
		r.requestStop()
	}
	for i, backing := range p.backing {
		if err := destroyThreadSafely(backing); err != nil {
			result = multierror.Append(result, fmt.Errorf("destroying worker %d backing thread: %w", i, err))
		}
	}
	for i, r := range p.runners {
		if err := destroyEventFlagSafely(r.ev); err != nil {
			result = multierror.Append(result, fmt.Errorf("destroying worker %d event flag: %w", i, err))
		}
	}
	if p.freeRunners != nil {
		p.freeRunners.Destroy(poolMutexFactory{}, poolFlagFactory{})
	}

	return result.ErrorOrNil()
}

// destroyThreadSafely and destroyEventFlagSafely recover from a panic
// raised by the backend's Destroy (an internal/assert precondition
// firing on a resource that never finished registering mid-rollback)
// and report it as an error instead, so one bad resource never aborts
// the rest of the teardown sweep.
func destroyThreadSafely(t *thread.Thread) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	thread.Destroy(t)
	return nil
}

func destroyEventFlagSafely(ev eventflag.EventFlag) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	eventflag.Destroy(ev)
	return nil
}

// Start dispatches task on a free worker, blocking until one is
// available. Equivalent to TimedStart(task, errkind.Forever, waiter,
// priority).
func (p *ThreadPool) Start(task thread.Runnable, waiter *WaitGuard, priority int) errkind.Error {
	return p.TimedStart(task, errkind.Forever, waiter, priority)
}

// TryStart dispatches task on a free worker without blocking.
// Equivalent to TimedStart(task, errkind.Polling, waiter, priority).
func (p *ThreadPool) TryStart(task thread.Runnable, waiter *WaitGuard, priority int) errkind.Error {
	return p.TimedStart(task, errkind.Polling, waiter, priority)
}

// TimedStart dispatches task on a free worker, blocking up to t if
// every worker is currently busy. The six-step algorithm unchanged
// from spec.md §4.J:
//  1. Reject a nil task as InvalidParameter.
//  2. Receive a free taskRunner from the bounded queue within t.
//  3. On TimedOut, return TimedOut.
//  4. Retarget the worker's backing Thread to run the task at
//     priority (PriorityInherit resolved against the caller).
//  5. If waiter is non-nil, bind it to the runner so the caller can
//     block on completion later.
//  6. Wake the worker and return OK.
func (p *ThreadPool) TimedStart(task thread.Runnable, t errkind.Timeout, waiter *WaitGuard, priority int) errkind.Error {
	if task == nil {
		return errkind.InvalidParameter
	}

	begin := time.Now()
	r, err := p.freeRunners.Receive(t)
	p.recorder.ObserveDispatchLatency(p.threadName, time.Since(begin))
	if err != errkind.OK {
		return err
	}

	idx := p.runnerIndex(r)
	var backing *thread.Thread
	if idx >= 0 {
		backing = p.backing[idx]
	}

	if waiter != nil {
		waiter.runner = r
	}

	needsWaiting := waiter != nil
	r.startThread(backing, task, priority, needsWaiting)

	p.active.Inc()
	p.free.Dec()
	p.recorder.SetActiveWorkers(p.threadName, int(p.active.Load()))
	p.recorder.SetFreeWorkers(p.threadName, int(p.free.Load()))

	return errkind.OK
}

func (p *ThreadPool) runnerIndex(r *taskRunner) int {
	for i, candidate := range p.runners {
		if candidate == r {
			return i
		}
	}
	return -1
}

// releaseRunner returns a finished runner to the free-runner queue.
func (p *ThreadPool) releaseRunner(r *taskRunner) {
	p.active.Dec()
	p.free.Inc()
	p.recorder.SetActiveWorkers(p.threadName, int(p.active.Load()))
	p.recorder.SetFreeWorkers(p.threadName, int(p.free.Load()))
	p.freeRunners.Send(r, errkind.Forever)
}

// SetUncaughtExceptionHandler installs the handler shared across every
// worker in the pool.
func (p *ThreadPool) SetUncaughtExceptionHandler(h thread.UncaughtExceptionHandler) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.handler = h
}

// UncaughtExceptionHandler returns the pool's shared handler, or nil.
func (p *ThreadPool) UncaughtExceptionHandler() thread.UncaughtExceptionHandler {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	return p.handler
}

// ThreadName returns the name shared by every worker thread.
func (p *ThreadPool) ThreadName() string { return p.threadName }

// Stats reports current pool occupancy.
func (p *ThreadPool) Stats() Stats {
	return Stats{
		Capacity: p.maxThreads,
		Free:     int(p.free.Load()),
		InFlight: int(p.active.Load()),
	}
}

// poolMutexFactory/poolFlagFactory adapt the process-wide mutex/
// eventflag registries into the explicit mutex.Factory/
// eventflag.Factory values msgqueue.New requires for the pool's
// internal free-runner queue.
type poolMutexFactory struct{}

func (poolMutexFactory) Create(priorityCeiling int, hasCeiling bool) (mutex.Mutex, error) {
	if hasCeiling {
		return mutex.CreateWithCeiling(priorityCeiling)
	}
	return mutex.Create()
}

func (poolMutexFactory) Destroy(m mutex.Mutex) { mutex.Destroy(m) }

type poolFlagFactory struct{}

func (poolFlagFactory) Create(autoReset bool) (eventflag.EventFlag, error) {
	return eventflag.Create(autoReset)
}

func (poolFlagFactory) Destroy(e eventflag.EventFlag) { eventflag.Destroy(e) }
