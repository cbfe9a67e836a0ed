// Package metrics defines the optional instrumentation collaborator
// consumed by threadpool (via threadpool.CreateWithRecorder); the
// timer package does not report to it. threadpool does not import
// prometheus directly; it depends only on the small Recorder
// interface here, which a host application may satisfy with a
// Prometheus-backed implementation (see NewPrometheusRecorder) or
// leave nil, in which case instrumentation is skipped entirely.
package metrics

import "time"

// Recorder receives ThreadPool and Timer instrumentation events. All
// methods must be safe for concurrent use and must not block.
type Recorder interface {
	// SetActiveWorkers reports the current number of in-flight
	// ThreadPool tasks.
	SetActiveWorkers(poolName string, n int)
	// SetFreeWorkers reports the current size of the free-runner queue.
	SetFreeWorkers(poolName string, n int)
	// ObserveDispatchLatency reports how long TimedStart waited for a
	// free worker before returning.
	ObserveDispatchLatency(poolName string, d time.Duration)
	// ObserveTimerJitter reports the absolute difference between a
	// timer's configured period/delay and its actual fire interval.
	ObserveTimerJitter(timerName string, d time.Duration)
}

// noop is the default Recorder used when a host does not wire one in.
type noop struct{}

func (noop) SetActiveWorkers(string, int)             {}
func (noop) SetFreeWorkers(string, int)                {}
func (noop) ObserveDispatchLatency(string, time.Duration) {}
func (noop) ObserveTimerJitter(string, time.Duration)     {}

// Noop returns a Recorder that discards every event.
func Noop() Recorder { return noop{} }
