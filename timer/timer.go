// Package timer defines PeriodicTimer and OneShotTimer (spec.md
// Components H and I): Runnables dispatched repeatedly at a fixed
// period, or once after a delay, each backed by a dedicated
// highest-priority Thread.
package timer

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TheEntropyCollective/oswrapper/internal/assert"
	"github.com/TheEntropyCollective/oswrapper/thread"
)

// Periodic is the handle returned by CreatePeriodic.
type Periodic struct {
	impl periodicImpl
}

type periodicImpl interface {
	start()
	stop()
	isStarted() bool
	period() time.Duration
	setUncaughtExceptionHandler(thread.UncaughtExceptionHandler)
}

// NewPeriodicHandle is used by backend implementations to build the
// handle returned to callers.
func NewPeriodicHandle(impl periodicImpl) *Periodic { return &Periodic{impl: impl} }

func (p *Periodic) Start()                { p.impl.start() }
func (p *Periodic) Stop()                 { p.impl.stop() }
func (p *Periodic) IsStarted() bool       { return p.impl.isStarted() }
func (p *Periodic) Period() time.Duration { return p.impl.period() }
func (p *Periodic) SetUncaughtExceptionHandler(h thread.UncaughtExceptionHandler) {
	p.impl.setUncaughtExceptionHandler(h)
}

// PeriodicFactory creates and destroys Periodic timers.
type PeriodicFactory interface {
	Create(r thread.Runnable, period time.Duration, name string) (*Periodic, error)
	Destroy(*Periodic)
}

var periodicFactory atomic.Pointer[PeriodicFactory]

// RegisterPeriodicFactory installs f as the process-wide Periodic
// timer factory.
func RegisterPeriodicFactory(f PeriodicFactory) {
	periodicFactory.Store(&f)
}

func currentPeriodicFactory() PeriodicFactory {
	p := periodicFactory.Load()
	assert.Precondition(p != nil, "periodic timer factory must be registered before use")
	return *p
}

// CreatePeriodic creates (and immediately starts the backing thread
// for, though the timer itself is not yet firing until Start()) a
// Periodic timer that runs r every period. An empty name is replaced
// with a generated "periodic-<uuid>".
func CreatePeriodic(r thread.Runnable, period time.Duration, name string) (*Periodic, error) {
	if name == "" {
		name = "periodic-" + uuid.NewString()
	}
	return currentPeriodicFactory().Create(r, period, name)
}

// DestroyPeriodic stops and reclaims t. DestroyPeriodic(nil) is a
// no-op.
func DestroyPeriodic(t *Periodic) {
	if t == nil {
		return
	}
	currentPeriodicFactory().Destroy(t)
}

// OneShot is the handle returned by CreateOneShot.
type OneShot struct {
	impl oneShotImpl
}

type oneShotImpl interface {
	start(delay time.Duration)
	stop()
	isStarted() bool
	setUncaughtExceptionHandler(thread.UncaughtExceptionHandler)
}

// NewOneShotHandle is used by backend implementations to build the
// handle returned to callers.
func NewOneShotHandle(impl oneShotImpl) *OneShot { return &OneShot{impl: impl} }

func (o *OneShot) Start(delay time.Duration) { o.impl.start(delay) }
func (o *OneShot) Stop()                     { o.impl.stop() }
func (o *OneShot) IsStarted() bool           { return o.impl.isStarted() }
func (o *OneShot) SetUncaughtExceptionHandler(h thread.UncaughtExceptionHandler) {
	o.impl.setUncaughtExceptionHandler(h)
}

// OneShotFactory creates and destroys OneShot timers.
type OneShotFactory interface {
	Create(r thread.Runnable, name string) (*OneShot, error)
	Destroy(*OneShot)
}

var oneShotFactory atomic.Pointer[OneShotFactory]

// RegisterOneShotFactory installs f as the process-wide OneShot timer
// factory.
func RegisterOneShotFactory(f OneShotFactory) {
	oneShotFactory.Store(&f)
}

func currentOneShotFactory() OneShotFactory {
	p := oneShotFactory.Load()
	assert.Precondition(p != nil, "one-shot timer factory must be registered before use")
	return *p
}

// CreateOneShot creates a OneShot timer that runs r once, delay after
// each Start() call. An empty name is replaced with a generated
// "oneshot-<uuid>".
func CreateOneShot(r thread.Runnable, name string) (*OneShot, error) {
	if name == "" {
		name = "oneshot-" + uuid.NewString()
	}
	return currentOneShotFactory().Create(r, name)
}

// DestroyOneShot stops and reclaims t. DestroyOneShot(nil) is a
// no-op.
func DestroyOneShot(t *OneShot) {
	if t == nil {
		return
	}
	currentOneShotFactory().Destroy(t)
}
