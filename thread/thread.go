// Package thread defines the portable Thread contract (spec.md
// Component F): a Runnable dispatched onto a backend-provided unit of
// execution, with priority, naming, and an uncaught-exception handler
// hook.
package thread

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/internal/assert"
)

// Runnable is the unit of work a Thread executes.
type Runnable interface {
	Run()
}

// UncaughtExceptionHandler is notified when a Runnable panics and the
// panic is not otherwise recovered.
type UncaughtExceptionHandler interface {
	HandleUncaughtException(owner *Thread, message string)
}

// backend is the per-instance operation set a concrete Thread
// implementation (backend/posix, backend/testdouble, ...) supplies at
// Create time. Thread's exported methods are thin dispatchers onto it,
// the same "virtual through a factory-built object" shape as the
// original's Thread/ThreadFactory split.
type backend interface {
	start()
	wait(t errkind.Timeout) errkind.Error
	isFinished() bool
	setPriority(priority int)
	priority() int
	nativeHandle() uint64
}

// Thread is the handle returned by Create. name, the
// uncaught-exception handler, and the immutable creation-time
// attributes (initial priority, stack size) are managed here;
// everything lifecycle-related is delegated to the backend
// implementation.
type Thread struct {
	name            atomic.Pointer[string]
	impl            backend
	exceptionHander atomic.Pointer[UncaughtExceptionHandler]
	initialPriority int
	stackSize       uint
}

// NewHandle is used by backend implementations to build the Thread
// handle returned to callers; it is not part of the public contract
// exercised by application code. initialPriority is the
// already-resolved priority (PriorityInherit having been settled by
// the caller) the thread was created with; it never changes even if
// SetPriority is called later.
func NewHandle(name string, impl backend, initialPriority int, stackSize uint) *Thread {
	t := &Thread{impl: impl, initialPriority: initialPriority, stackSize: stackSize}
	t.name.Store(&name)
	return t
}

// Name returns the thread's current name.
func (t *Thread) Name() string {
	p := t.name.Load()
	if p == nil {
		return ""
	}
	return *p
}

// SetName replaces the thread's name, e.g. when a ThreadPool worker's
// underlying Thread is retargeted to a differently-named task.
func (t *Thread) SetName(name string) { t.name.Store(&name) }

// InitialPriority returns the priority the thread was created with,
// distinct from Priority() once SetPriority has been called.
func (t *Thread) InitialPriority() int { return t.initialPriority }

// StackSize returns the advisory stack size the thread was created
// with. Go backends don't enforce it (goroutines have no fixed
// stack), but backend/testdouble uses it to size its Start-signal
// channel buffer.
func (t *Thread) StackSize() uint { return t.stackSize }

// NativeHandle returns a backend-opaque identifier for the underlying
// unit of execution: the internal/gid-derived goroutine id captured
// during the thread's most recent run, or 0 if it has never run.
// Go has no portable OS-thread handle to expose, so this is the
// closest analogue to the original's native_handle().
func (t *Thread) NativeHandle() uint64 { return t.impl.nativeHandle() }

// Start begins (or resumes, for a pool-reused worker) execution of the
// thread's Runnable.
func (t *Thread) Start() { t.impl.start() }

// Wait blocks until the thread's current run finishes.
func (t *Thread) Wait() errkind.Error { return t.impl.wait(errkind.Forever) }

// TryWait reports immediately whether the thread has finished.
func (t *Thread) TryWait() errkind.Error { return t.impl.wait(errkind.Polling) }

// TimedWait blocks until the thread finishes or t elapses.
func (t *Thread) TimedWait(timeout errkind.Timeout) errkind.Error { return t.impl.wait(timeout) }

// IsFinished reports whether the thread's current run has completed.
func (t *Thread) IsFinished() bool { return t.impl.isFinished() }

// SetPriority changes the thread's priority.
func (t *Thread) SetPriority(priority int) { t.impl.setPriority(priority) }

// Priority returns the thread's current priority.
func (t *Thread) Priority() int { return t.impl.priority() }

// SetUncaughtExceptionHandler installs a per-thread handler, checked
// before the process-wide default.
func (t *Thread) SetUncaughtExceptionHandler(h UncaughtExceptionHandler) {
	if h == nil {
		t.exceptionHander.Store(nil)
		return
	}
	t.exceptionHander.Store(&h)
}

func (t *Thread) uncaughtExceptionHandler() UncaughtExceptionHandler {
	p := t.exceptionHander.Load()
	if p == nil {
		return nil
	}
	return *p
}

// HandleUncaught routes a recovered panic value to t's per-thread
// handler, falling back to the process-wide default, else drops it.
// Exported so backend implementations' entry wrappers can call it
// without duplicating the fallback chain.
func (t *Thread) HandleUncaught(message string) {
	if h := t.uncaughtExceptionHandler(); h != nil {
		h.HandleUncaughtException(t, message)
		return
	}
	if h := DefaultUncaughtExceptionHandler(); h != nil {
		h.HandleUncaughtException(t, message)
		return
	}
}

// Factory creates and destroys Thread instances and exposes the
// per-process thread-control operations (Sleep, Yield, Exit, ...)
// that don't belong to a single Thread instance.
type Factory interface {
	Create(r Runnable, priority int, stackSize uint, name string) (*Thread, error)
	Destroy(*Thread)
	Exit()
	Sleep(d time.Duration)
	Yield()
	CurrentThread() *Thread
	PriorityMax() int
	PriorityMin() int
	HighestPriority() int
	LowestPriority() int
}

var factory atomic.Pointer[Factory]

// RegisterFactory installs f as the process-wide Thread factory.
func RegisterFactory(f Factory) {
	factory.Store(&f)
}

func currentFactory() Factory {
	p := factory.Load()
	assert.Precondition(p != nil, "thread factory must be registered before use")
	return *p
}

// PriorityInherit resolves at Create() to the creating thread's own
// priority (CurrentThread() == nil resolves to PriorityNormal()).
const PriorityInherit = -1

// PriorityNormal is the baseline priority used when no explicit
// priority, and no inheritable creator priority, is available.
func PriorityNormal() int {
	return (currentFactory().PriorityMax() + currentFactory().PriorityMin()) / 2
}

// PriorityMax returns the numerically largest priority value this
// backend accepts. By numeric convention only: if the backend's
// mapping is inverted, the numerically largest value may be the
// semantically lowest-urgency priority. Use HighestPriority for the
// semantic end of the range.
func PriorityMax() int { return currentFactory().PriorityMax() }

// PriorityMin returns the numerically smallest priority value this
// backend accepts. See PriorityMax's note on numeric vs. semantic
// ordering.
func PriorityMin() int { return currentFactory().PriorityMin() }

// HighestPriority returns the semantically most-urgent priority value
// this backend accepts. Unlike PriorityMax, this is correct even when
// the backend's mapping is inverted (its numerically largest value is
// the least urgent).
func HighestPriority() int { return currentFactory().HighestPriority() }

// LowestPriority returns the semantically least-urgent priority value
// this backend accepts. See HighestPriority's note on numeric vs.
// semantic ordering.
func LowestPriority() int { return currentFactory().LowestPriority() }

// Create creates (but does not start) a Thread that will run r.
// priority == PriorityInherit resolves immediately against
// CurrentThread(). An empty name is replaced with a generated
// "thread-<uuid>" so every Thread is identifiable in logs and
// panic/uncaught-exception messages even when the caller didn't
// bother naming it.
func Create(r Runnable, priority int, stackSize uint, name string) (*Thread, error) {
	if name == "" {
		name = "thread-" + uuid.NewString()
	}
	return currentFactory().Create(r, priority, stackSize, name)
}

// Destroy waits for the thread if needed, then reclaims its backend
// resources. Destroy(nil) is a no-op.
func Destroy(t *Thread) {
	if t == nil {
		return
	}
	currentFactory().Destroy(t)
}

// Exit cooperatively ends the calling Thread's Runnable, equivalent to
// the original's special exit sentinel. Only valid when called from
// within a Runnable's Run(); behavior from any other goroutine is
// undefined.
func Exit() {
	currentFactory().Exit()
}

// Sleep suspends the calling goroutine for d.
func Sleep(d time.Duration) {
	currentFactory().Sleep(d)
}

// Yield hints the scheduler to run other goroutines.
func Yield() {
	currentFactory().Yield()
}

// CurrentThread returns the Thread handle for the calling goroutine,
// or nil if the caller is not running inside a Thread-dispatched
// Runnable.
func CurrentThread() *Thread {
	return currentFactory().CurrentThread()
}

var defaultHandler atomic.Pointer[UncaughtExceptionHandler]

// SetDefaultUncaughtExceptionHandler installs the process-wide
// fallback handler used when a Thread has no per-thread handler set.
func SetDefaultUncaughtExceptionHandler(h UncaughtExceptionHandler) {
	if h == nil {
		defaultHandler.Store(nil)
		return
	}
	defaultHandler.Store(&h)
}

// DefaultUncaughtExceptionHandler returns the process-wide fallback
// handler, or nil if none is set.
func DefaultUncaughtExceptionHandler() UncaughtExceptionHandler {
	p := defaultHandler.Load()
	if p == nil {
		return nil
	}
	return *p
}
