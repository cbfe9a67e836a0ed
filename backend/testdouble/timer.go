package testdouble

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/TheEntropyCollective/oswrapper/internal/obs"
	"github.com/TheEntropyCollective/oswrapper/thread"
	"github.com/TheEntropyCollective/oswrapper/timer"
)

// Both timer kinds are grounded the same way backend/posix's are
// (StdCppPeriodicTimerFactory.cpp / StdCppOneShotTimerFactory.cpp): a
// dedicated Thread runs a loop that fires every period or once after
// a delay. The logic is identical to backend/posix's because neither
// implementation reaches into its own backend's internals — both
// compose entirely against the public thread/timer packages, so a
// Periodic or OneShot created while backend/testdouble.Register() is
// active drives its loop Thread through channelThread instead of
// goThread, with no code here needing to know which.

type handlerBox struct {
	mu sync.Mutex
	h  thread.UncaughtExceptionHandler
}

func (b *handlerBox) set(h thread.UncaughtExceptionHandler) {
	b.mu.Lock()
	b.h = h
	b.mu.Unlock()
}

func (b *handlerBox) get() thread.UncaughtExceptionHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.h
}

func (b *handlerBox) dispatch(name, message string) {
	h := b.get()
	if h == nil {
		obs.L().Warnw("uncaught panic in timer task, no handler installed", "timer", name, "panic", message)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			obs.L().Errorw("timer uncaught exception handler itself panicked", "timer", name, "panic", fmt.Sprint(r))
		}
	}()
	h.HandleUncaughtException(nil, message)
}

type runnableFunc func()

func (f runnableFunc) Run() { f() }

// ---- periodic ----

type periodicTimer struct {
	r         thread.Runnable
	periodDur time.Duration
	name      string
	backing   *thread.Thread
	handler   handlerBox

	mu           sync.Mutex
	active       bool
	endRequested bool
	ctrl         chan struct{}
	done         chan struct{}
}

func (t *periodicTimer) signal() {
	select {
	case t.ctrl <- struct{}{}:
	default:
	}
}

func (t *periodicTimer) loop() {
	for {
		t.mu.Lock()
		active := t.active
		end := t.endRequested
		t.mu.Unlock()
		if end {
			close(t.done)
			return
		}
		if !active {
			<-t.ctrl
			continue
		}
		waiter := time.NewTimer(t.periodDur)
		select {
		case <-waiter.C:
			t.fire()
		case <-t.ctrl:
			waiter.Stop()
		}
	}
}

func (t *periodicTimer) fire() {
	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("%v\n%s", r, debug.Stack())
			t.handler.dispatch(t.name, message)
		}
	}()
	if t.r != nil {
		t.r.Run()
	}
}

func (t *periodicTimer) start() {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return
	}
	t.active = true
	t.mu.Unlock()
	t.signal()
}

func (t *periodicTimer) stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()
	t.signal()
}

func (t *periodicTimer) isStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *periodicTimer) period() time.Duration { return t.periodDur }

func (t *periodicTimer) setUncaughtExceptionHandler(h thread.UncaughtExceptionHandler) {
	t.handler.set(h)
}

func (t *periodicTimer) endThread() {
	t.mu.Lock()
	t.endRequested = true
	t.mu.Unlock()
	t.signal()
	<-t.done
	thread.Destroy(t.backing)
}

type periodicTimerFactory struct{}

var periodicRegistry = struct {
	mu sync.Mutex
	m  map[*timer.Periodic]*periodicTimer
}{m: make(map[*timer.Periodic]*periodicTimer)}

func (periodicTimerFactory) Create(r thread.Runnable, period time.Duration, name string) (*timer.Periodic, error) {
	t := &periodicTimer{
		r:         r,
		periodDur: period,
		name:      name,
		ctrl:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	backing, err := thread.Create(runnableFunc(t.loop), thread.HighestPriority(), 0, name)
	if err != nil {
		return nil, err
	}
	t.backing = backing
	backing.Start()

	handle := timer.NewPeriodicHandle(t)
	periodicRegistry.mu.Lock()
	periodicRegistry.m[handle] = t
	periodicRegistry.mu.Unlock()
	return handle, nil
}

func (periodicTimerFactory) Destroy(p *timer.Periodic) {
	if p == nil {
		return
	}
	periodicRegistry.mu.Lock()
	t, ok := periodicRegistry.m[p]
	delete(periodicRegistry.m, p)
	periodicRegistry.mu.Unlock()
	if ok {
		t.endThread()
	}
}

// ---- one-shot ----

type oneShotTimer struct {
	r       thread.Runnable
	name    string
	backing *thread.Thread
	handler handlerBox

	mu           sync.Mutex
	active       bool
	delay        time.Duration
	endRequested bool
	ctrl         chan struct{}
	done         chan struct{}
}

func (t *oneShotTimer) signal() {
	select {
	case t.ctrl <- struct{}{}:
	default:
	}
}

func (t *oneShotTimer) loop() {
	for {
		t.mu.Lock()
		active := t.active
		end := t.endRequested
		delay := t.delay
		t.mu.Unlock()
		if end {
			close(t.done)
			return
		}
		if !active {
			<-t.ctrl
			continue
		}
		waiter := time.NewTimer(delay)
		select {
		case <-waiter.C:
			t.fire()
			t.mu.Lock()
			t.active = false
			t.mu.Unlock()
		case <-t.ctrl:
			waiter.Stop()
		}
	}
}

func (t *oneShotTimer) fire() {
	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("%v\n%s", r, debug.Stack())
			t.handler.dispatch(t.name, message)
		}
	}()
	if t.r != nil {
		t.r.Run()
	}
}

func (t *oneShotTimer) start(delay time.Duration) {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return
	}
	t.delay = delay
	t.active = true
	t.mu.Unlock()
	t.signal()
}

func (t *oneShotTimer) stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()
	t.signal()
}

func (t *oneShotTimer) isStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *oneShotTimer) setUncaughtExceptionHandler(h thread.UncaughtExceptionHandler) {
	t.handler.set(h)
}

func (t *oneShotTimer) endThread() {
	t.mu.Lock()
	t.endRequested = true
	t.mu.Unlock()
	t.signal()
	<-t.done
	thread.Destroy(t.backing)
}

type oneShotTimerFactory struct{}

var oneShotRegistry = struct {
	mu sync.Mutex
	m  map[*timer.OneShot]*oneShotTimer
}{m: make(map[*timer.OneShot]*oneShotTimer)}

func (oneShotTimerFactory) Create(r thread.Runnable, name string) (*timer.OneShot, error) {
	t := &oneShotTimer{
		r:    r,
		name: name,
		ctrl: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	backing, err := thread.Create(runnableFunc(t.loop), thread.HighestPriority(), 0, name)
	if err != nil {
		return nil, err
	}
	t.backing = backing
	backing.Start()

	handle := timer.NewOneShotHandle(t)
	oneShotRegistry.mu.Lock()
	oneShotRegistry.m[handle] = t
	oneShotRegistry.mu.Unlock()
	return handle, nil
}

func (oneShotTimerFactory) Destroy(o *timer.OneShot) {
	if o == nil {
		return
	}
	oneShotRegistry.mu.Lock()
	t, ok := oneShotRegistry.m[o]
	delete(oneShotRegistry.m, o)
	oneShotRegistry.mu.Unlock()
	if ok {
		t.endThread()
	}
}
