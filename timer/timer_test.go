package timer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/oswrapper/backend/posix"
	"github.com/TheEntropyCollective/oswrapper/thread"
	"github.com/TheEntropyCollective/oswrapper/timer"
)

func init() {
	posix.Register()
}

type countingRunnable struct {
	n atomic.Int64
}

func (c *countingRunnable) Run() { c.n.Add(1) }

func TestPeriodicFiresRepeatedlyUntilStopped(t *testing.T) {
	r := &countingRunnable{}
	p, err := timer.CreatePeriodic(r, 10*time.Millisecond, "ticker")
	require.NoError(t, err)
	defer timer.DestroyPeriodic(p)

	p.Start()
	time.Sleep(55 * time.Millisecond)
	p.Stop()
	fired := r.n.Load()
	require.GreaterOrEqual(t, fired, int64(3))

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, fired, r.n.Load())
}

func TestPeriodicStartIsIdempotentWhileRunning(t *testing.T) {
	r := &countingRunnable{}
	p, err := timer.CreatePeriodic(r, 10*time.Millisecond, "ticker2")
	require.NoError(t, err)
	defer timer.DestroyPeriodic(p)

	p.Start()
	p.Start()
	require.True(t, p.IsStarted())
	p.Stop()
	require.False(t, p.IsStarted())
}

// S3 — one-shot timer precision: Start(50ms) must fire within ±20ms of
// the requested delay.
func TestScenarioS3OneShotPrecision(t *testing.T) {
	fired := make(chan time.Time, 1)
	o, err := timer.CreateOneShot(runnableFunc(func() {
		fired <- time.Now()
	}), "oneshot")
	require.NoError(t, err)
	defer timer.DestroyOneShot(o)

	start := time.Now()
	o.Start(50 * time.Millisecond)

	select {
	case at := <-fired:
		elapsed := at.Sub(start)
		require.InDelta(t, 50*time.Millisecond, elapsed, float64(20*time.Millisecond))
	case <-time.After(200 * time.Millisecond):
		t.Fatal("one-shot timer never fired")
	}
}

func TestOneShotStopBeforeFirePreventsRun(t *testing.T) {
	r := &countingRunnable{}
	o, err := timer.CreateOneShot(r, "stoppable")
	require.NoError(t, err)
	defer timer.DestroyOneShot(o)

	o.Start(100 * time.Millisecond)
	o.Stop()
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int64(0), r.n.Load())
}

func TestOneShotPanickingTaskRunsOnceThenTimerIsIdle(t *testing.T) {
	var calls atomic.Int64
	o, err := timer.CreateOneShot(runnableFunc(func() {
		calls.Add(1)
		panic("kaboom")
	}), "panicky")
	require.NoError(t, err)
	defer timer.DestroyOneShot(o)

	o.Start(10 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(1), calls.Load())
	require.False(t, o.IsStarted())
}

type runnableFunc func()

func (f runnableFunc) Run() { f() }

var _ thread.Runnable = runnableFunc(nil)
