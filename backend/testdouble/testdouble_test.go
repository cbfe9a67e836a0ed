package testdouble_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/oswrapper/backend/testdouble"
	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/eventflag"
	"github.com/TheEntropyCollective/oswrapper/fixedpool"
	"github.com/TheEntropyCollective/oswrapper/mutex"
	"github.com/TheEntropyCollective/oswrapper/thread"
	"github.com/TheEntropyCollective/oswrapper/timer"
	"github.com/TheEntropyCollective/oswrapper/varpool"
)

func init() {
	testdouble.Register()
}

func TestMutexRecursiveLockBySameOwner(t *testing.T) {
	m, err := mutex.Create()
	require.NoError(t, err)
	defer mutex.Destroy(m)

	require.Equal(t, errkind.OK, m.Lock())
	require.Equal(t, errkind.OK, m.Lock())
	require.Equal(t, errkind.OK, m.Unlock())
	require.Equal(t, errkind.OK, m.Unlock())
	require.Equal(t, errkind.NotLocked, m.Unlock())
}

// Unlike backend/posix's unrestricted sync.Cond waiters, testdouble's
// EventFlag enforces a single concurrent waiter.
func TestEventFlagSecondConcurrentWaiterGetsOtherThreadWaiting(t *testing.T) {
	ev, err := eventflag.Create(false)
	require.NoError(t, err)
	defer eventflag.Destroy(ev)

	firstWaiting := make(chan struct{})
	var firstResult errkind.Error
	go func() {
		close(firstWaiting)
		firstResult = ev.WaitAny(errkind.Forever)
	}()
	<-firstWaiting
	// Give the first waiter a chance to actually park inside Wait
	// before the second one arrives.
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, errkind.OtherThreadWaiting, ev.WaitAny(errkind.Polling))

	require.Equal(t, errkind.OK, ev.SetAll())
	require.Eventually(t, func() bool { return firstResult == errkind.OK }, time.Second, time.Millisecond)
}

// A wait whose pattern is already set returns OK at once and does not
// leave the flag marked as waited on: a second wait after it also
// returns OK rather than OtherThreadWaiting.
func TestEventFlagImmediateSuccessDoesNotCountAsWaiting(t *testing.T) {
	ev, err := eventflag.Create(false)
	require.NoError(t, err)
	defer eventflag.Destroy(ev)

	require.Equal(t, errkind.OK, ev.SetAll())
	require.Equal(t, errkind.OK, ev.WaitAny(errkind.Polling))
	require.Equal(t, errkind.OK, ev.WaitAny(errkind.Polling))
}

func TestThreadActuallyRunsRunnable(t *testing.T) {
	var ran atomic.Bool
	done := make(chan struct{})
	r := runnableFunc(func() {
		ran.Store(true)
		close(done)
	})

	th, err := thread.Create(r, thread.PriorityNormal(), 0, "")
	require.NoError(t, err)
	defer thread.Destroy(th)

	th.Start()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runnable never ran")
	}
	require.Equal(t, errkind.OK, th.Wait())
	require.True(t, ran.Load())
}

// A Thread can be started again after each Wait, running its Runnable
// once per Start/Wait pair.
func TestThreadRestartsAfterEachWait(t *testing.T) {
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(3)
	r := runnableFunc(func() {
		count.Add(1)
		wg.Done()
	})

	th, err := thread.Create(r, thread.PriorityNormal(), 4, "")
	require.NoError(t, err)
	defer thread.Destroy(th)

	th.Start()
	require.Equal(t, errkind.OK, th.Wait())
	th.Start()
	require.Equal(t, errkind.OK, th.Wait())
	th.Start()
	require.Equal(t, errkind.OK, th.Wait())

	wg.Wait()
	require.Equal(t, int64(3), count.Load())
}

func TestThreadExitEndsRunEarly(t *testing.T) {
	var reachedAfterExit atomic.Bool
	done := make(chan struct{})
	r := runnableFunc(func() {
		defer close(done)
		thread.Exit()
		reachedAfterExit.Store(true)
	})

	th, err := thread.Create(r, thread.PriorityNormal(), 0, "")
	require.NoError(t, err)
	defer thread.Destroy(th)

	th.Start()
	<-done
	require.Equal(t, errkind.OK, th.Wait())
	require.False(t, reachedAfterExit.Load())
}

func TestFixedPoolAllocateDeallocate(t *testing.T) {
	p, err := fixedpool.Create(8, 2, nil)
	require.NoError(t, err)
	defer fixedpool.Destroy(p)

	a := p.Allocate()
	require.False(t, a.IsNil())
	b := p.Allocate()
	require.False(t, b.IsNil())
	require.True(t, p.Allocate().IsNil())

	p.Deallocate(a)
	c := p.Allocate()
	require.False(t, c.IsNil())
}

func TestVarPoolFirstFitAndCoalesce(t *testing.T) {
	p, err := varpool.Create(64, nil)
	require.NoError(t, err)
	defer varpool.Destroy(p)

	a := p.Allocate(16)
	require.False(t, a.IsNil())
	b := p.Allocate(16)
	require.False(t, b.IsNil())

	p.Deallocate(a)
	p.Deallocate(b)

	c := p.Allocate(64)
	require.False(t, c.IsNil())
}

func TestPeriodicTimerFiresRepeatedly(t *testing.T) {
	var fires atomic.Int64
	r := runnableFunc(func() { fires.Add(1) })

	tm, err := timer.CreatePeriodic(r, 10*time.Millisecond, "")
	require.NoError(t, err)
	defer timer.DestroyPeriodic(tm)

	tm.Start()
	require.Eventually(t, func() bool { return fires.Load() >= 3 }, time.Second, 5*time.Millisecond)
	tm.Stop()
}

func TestOneShotTimerFiresOnce(t *testing.T) {
	var fires atomic.Int64
	done := make(chan struct{})
	r := runnableFunc(func() {
		fires.Add(1)
		close(done)
	})

	ts, err := timer.CreateOneShot(r, "")
	require.NoError(t, err)
	defer timer.DestroyOneShot(ts)

	ts.Start(5 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("one-shot timer never fired")
	}
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int64(1), fires.Load())
}

type runnableFunc func()

func (f runnableFunc) Run() { f() }
