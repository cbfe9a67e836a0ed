package threadpool_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/oswrapper/backend/posix"
	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/thread"
	"github.com/TheEntropyCollective/oswrapper/threadpool"
)

func init() {
	posix.Register()
}

type runnableFunc func()

func (f runnableFunc) Run() { f() }

func TestStartAndWaitForCompletion(t *testing.T) {
	p, err := threadpool.Create(2, 0, thread.PriorityNormal(), "pool-basic")
	require.NoError(t, err)
	defer threadpool.Destroy(p)

	var ran atomic.Bool
	var waiter threadpool.WaitGuard
	require.Equal(t, errkind.OK, p.Start(runnableFunc(func() { ran.Store(true) }), &waiter, thread.PriorityNormal()))
	require.True(t, waiter.IsValid())
	require.Equal(t, errkind.OK, waiter.Wait())
	waiter.Release()
	require.False(t, waiter.IsValid())
	require.True(t, ran.Load())
}

func TestNilTaskIsInvalidParameter(t *testing.T) {
	p, err := threadpool.Create(1, 0, thread.PriorityNormal(), "pool-nil")
	require.NoError(t, err)
	defer threadpool.Destroy(p)

	require.Equal(t, errkind.InvalidParameter, p.Start(nil, nil, thread.PriorityNormal()))
}

func TestTryStartFailsWhenAllWorkersBusy(t *testing.T) {
	p, err := threadpool.Create(1, 0, thread.PriorityNormal(), "pool-busy")
	require.NoError(t, err)
	defer threadpool.Destroy(p)

	release := make(chan struct{})
	require.Equal(t, errkind.OK, p.Start(runnableFunc(func() { <-release }), nil, thread.PriorityNormal()))

	require.Equal(t, errkind.TimedOut, p.TryStart(runnableFunc(func() {}), nil, thread.PriorityNormal()))
	close(release)
}

func TestFireAndForgetWithoutWaitGuard(t *testing.T) {
	p, err := threadpool.Create(1, 0, thread.PriorityNormal(), "pool-forget")
	require.NoError(t, err)
	defer threadpool.Destroy(p)

	done := make(chan struct{})
	require.Equal(t, errkind.OK, p.Start(runnableFunc(func() { close(done) }), nil, thread.PriorityNormal()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestUncaughtPanicDoesNotCrashWorker(t *testing.T) {
	p, err := threadpool.Create(1, 0, thread.PriorityNormal(), "pool-panic")
	require.NoError(t, err)
	defer threadpool.Destroy(p)

	var waiter threadpool.WaitGuard
	require.Equal(t, errkind.OK, p.Start(runnableFunc(func() { panic("boom") }), &waiter, thread.PriorityNormal()))
	require.Equal(t, errkind.OK, waiter.Wait())
	waiter.Release()

	var ran atomic.Bool
	var waiter2 threadpool.WaitGuard
	require.Equal(t, errkind.OK, p.Start(runnableFunc(func() { ran.Store(true) }), &waiter2, thread.PriorityNormal()))
	require.Equal(t, errkind.OK, waiter2.Wait())
	require.True(t, ran.Load())
}

func TestStatsReflectOccupancy(t *testing.T) {
	p, err := threadpool.Create(2, 0, thread.PriorityNormal(), "pool-stats")
	require.NoError(t, err)
	defer threadpool.Destroy(p)

	release := make(chan struct{})
	require.Equal(t, errkind.OK, p.Start(runnableFunc(func() { <-release }), nil, thread.PriorityNormal()))

	stats := p.Stats()
	require.Equal(t, 2, stats.Capacity)
	require.Equal(t, 1, stats.InFlight)
	require.Equal(t, 1, stats.Free)
	close(release)
}

// S4 — backpressure under load: 100 tasks dispatched at a pool of 10
// workers via TimedStart, with each task sleeping briefly; no task is
// ever rejected (TimedOut) given a generous enough timeout, and every
// task eventually completes.
func TestScenarioS4BackpressureUnderLoad(t *testing.T) {
	const workers = 10
	const tasks = 100

	p, err := threadpool.Create(workers, 0, thread.PriorityNormal(), "pool-s4")
	require.NoError(t, err)
	defer threadpool.Destroy(p)

	var completed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(tasks)

	for i := 0; i < tasks; i++ {
		go func() {
			defer wg.Done()
			err := p.TimedStart(runnableFunc(func() {
				time.Sleep(2 * time.Millisecond)
				completed.Add(1)
			}), errkind.Millis(2000), nil, thread.PriorityNormal())
			require.Equal(t, errkind.OK, err)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not all dispatch within timeout")
	}

	require.Eventually(t, func() bool {
		return completed.Load() == tasks
	}, 2*time.Second, 10*time.Millisecond)
}
