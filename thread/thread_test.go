package thread_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/oswrapper/backend/posix"
	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/thread"
)

func init() {
	posix.Register()
}

type runnableFunc func()

func (f runnableFunc) Run() { f() }

func TestCreateStartWait(t *testing.T) {
	var ran bool
	var mu sync.Mutex
	tr, err := thread.Create(runnableFunc(func() {
		mu.Lock()
		ran = true
		mu.Unlock()
	}), thread.PriorityNormal(), 0, "worker")
	require.NoError(t, err)
	defer thread.Destroy(tr)

	tr.Start()
	require.Equal(t, errkind.OK, tr.Wait())

	mu.Lock()
	defer mu.Unlock()
	require.True(t, ran)
}

func TestExitStopsRunnableEarly(t *testing.T) {
	var reachedAfterExit bool
	tr, err := thread.Create(runnableFunc(func() {
		thread.Exit()
		reachedAfterExit = true
	}), thread.PriorityNormal(), 0, "exiter")
	require.NoError(t, err)
	defer thread.Destroy(tr)

	tr.Start()
	require.Equal(t, errkind.OK, tr.Wait())
	require.False(t, reachedAfterExit)
}

// S5 — uncaught panic is routed to the per-thread handler rather than
// crashing the process.
type capturingHandler struct {
	mu      sync.Mutex
	message string
	called  bool
}

func (h *capturingHandler) HandleUncaughtException(owner *thread.Thread, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.called = true
	h.message = message
}

func TestScenarioS5UncaughtPanicRoutedToHandler(t *testing.T) {
	h := &capturingHandler{}
	tr, err := thread.Create(runnableFunc(func() {
		panic("boom")
	}), thread.PriorityNormal(), 0, "panicker")
	require.NoError(t, err)
	defer thread.Destroy(tr)
	tr.SetUncaughtExceptionHandler(h)

	tr.Start()
	require.Equal(t, errkind.OK, tr.Wait())

	h.mu.Lock()
	defer h.mu.Unlock()
	require.True(t, h.called)
	require.Contains(t, h.message, "boom")
}

// S6 — priority inheritance: a thread created with PriorityInherit
// from inside another thread observes the creator's priority.
func TestScenarioS6PriorityInheritance(t *testing.T) {
	parentPriority := thread.PriorityNormal() + 1
	observed := make(chan int, 1)

	parent, err := thread.Create(runnableFunc(func() {
		child, cerr := thread.Create(runnableFunc(func() {
			observed <- thread.CurrentThread().Priority()
		}), thread.PriorityInherit, 0, "child")
		if cerr != nil {
			observed <- -1
			return
		}
		child.Start()
		child.Wait()
		thread.Destroy(child)
	}), parentPriority, 0, "parent")
	require.NoError(t, err)
	defer thread.Destroy(parent)

	parent.Start()
	require.Equal(t, errkind.OK, parent.Wait())

	select {
	case got := <-observed:
		require.Equal(t, parentPriority, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for child priority observation")
	}
}

func TestTimedWaitTimesOutWhileRunning(t *testing.T) {
	release := make(chan struct{})
	tr, err := thread.Create(runnableFunc(func() {
		<-release
	}), thread.PriorityNormal(), 0, "slow")
	require.NoError(t, err)
	defer func() {
		close(release)
		thread.Destroy(tr)
	}()

	tr.Start()
	require.Equal(t, errkind.TimedOut, tr.TimedWait(errkind.Millis(20)))
}

// HighestPriority/LowestPriority report the semantic ends of the
// range even when the backend's priority mapping is inverted (the
// numerically largest value configured as the "lowest" end).
func TestHighestLowestPriorityTrackInvertedMapping(t *testing.T) {
	posix.SetPriorityRange(10, 0)
	defer posix.SetPriorityRange(0, 10)

	require.Equal(t, 0, thread.HighestPriority())
	require.Equal(t, 10, thread.LowestPriority())
	require.Equal(t, 10, thread.PriorityMax())
	require.Equal(t, 0, thread.PriorityMin())
}

func TestInitialPriorityStaysFixedAfterSetPriority(t *testing.T) {
	tr, err := thread.Create(runnableFunc(func() {}), thread.PriorityNormal(), 0, "fixed-initial")
	require.NoError(t, err)
	defer thread.Destroy(tr)

	require.Equal(t, thread.PriorityNormal(), tr.InitialPriority())
	tr.SetPriority(thread.PriorityMax())
	require.Equal(t, thread.PriorityMax(), tr.Priority())
	require.Equal(t, thread.PriorityNormal(), tr.InitialPriority())
}

func TestStackSizeReportsCreateTimeValue(t *testing.T) {
	tr, err := thread.Create(runnableFunc(func() {}), thread.PriorityNormal(), 4096, "sized")
	require.NoError(t, err)
	defer thread.Destroy(tr)

	require.Equal(t, uint(4096), tr.StackSize())
}

func TestSetNameChangesObservableName(t *testing.T) {
	tr, err := thread.Create(runnableFunc(func() {}), thread.PriorityNormal(), 0, "before")
	require.NoError(t, err)
	defer thread.Destroy(tr)

	require.Equal(t, "before", tr.Name())
	tr.SetName("after")
	require.Equal(t, "after", tr.Name())
}

func TestNativeHandleReflectsRunningGoroutine(t *testing.T) {
	tr, err := thread.Create(runnableFunc(func() {}), thread.PriorityNormal(), 0, "native")
	require.NoError(t, err)
	defer thread.Destroy(tr)

	require.Equal(t, uint64(0), tr.NativeHandle())
	tr.Start()
	require.Equal(t, errkind.OK, tr.Wait())
	require.NotZero(t, tr.NativeHandle())
}
