// Package msgqueue provides Queue[T], the bounded MessageQueue from
// spec.md Component G: a fixed-capacity ring buffer guarded by a
// mutex, with blocking Send/Receive signaled by two EventFlags
// (non-empty, non-full).
//
// Generalized from the original's pointer-only MessageQueue<T*> to
// Queue[T any] — Go generics remove the need for the C++ restriction
// to pointer types, which existed only to keep the ring buffer
// fixed-size without a garbage collector.
package msgqueue

import (
	"errors"

	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/eventflag"
	"github.com/TheEntropyCollective/oswrapper/mutex"
)

const (
	nonEmptyBit = 0
	nonFullBit  = 1
)

// Queue is a bounded FIFO (or, via SendFront, deque-like) queue of T,
// built from exactly the primitives spec.md §4.G names: one Mutex
// guarding the ring buffer, one auto-reset EventFlag for "queue is
// non-empty", one auto-reset EventFlag for "queue has free space".
type Queue[T any] struct {
	m        mutex.Mutex
	nonEmpty eventflag.EventFlag
	nonFull  eventflag.EventFlag

	buf   []T
	head  int
	count int
}

// New creates a Queue of the given capacity using the supplied
// factories (so callers can target a specific backend, or
// backend/testdouble in tests, without going through the package-wide
// registries).
func New[T any](capacity int, mutexFactory mutex.Factory, flagFactory eventflag.Factory) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, errors.New("msgqueue: capacity must be positive")
	}
	m, err := mutexFactory.Create(0, false)
	if err != nil {
		return nil, err
	}
	nonEmpty, err := flagFactory.Create(true)
	if err != nil {
		mutexFactory.Destroy(m)
		return nil, err
	}
	nonFull, err := flagFactory.Create(true)
	if err != nil {
		flagFactory.Destroy(nonEmpty)
		mutexFactory.Destroy(m)
		return nil, err
	}
	nonFull.SetOne(nonFullBit)

	return &Queue[T]{
		m:        m,
		nonEmpty: nonEmpty,
		nonFull:  nonFull,
		buf:      make([]T, capacity),
	}, nil
}

// Cap reports the queue's fixed capacity.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Len reports the number of items currently queued.
func (q *Queue[T]) Len() int {
	guard := mutex.Lock(q.m)
	defer guard.Release()
	return q.count
}

// Send appends v to the back of the queue, blocking up to t if the
// queue is full.
func (q *Queue[T]) Send(v T, t errkind.Timeout) errkind.Error {
	return q.put(v, t, false)
}

// SendFront pushes v to the front of the queue (next to be received),
// blocking up to t if the queue is full.
func (q *Queue[T]) SendFront(v T, t errkind.Timeout) errkind.Error {
	return q.put(v, t, true)
}

func (q *Queue[T]) put(v T, t errkind.Timeout, front bool) errkind.Error {
	var guard *mutex.ScopedLock
	defer func() { guard.Release() }()

	g, err := mutex.TimedLock(q.m, t)
	guard = g
	if err != errkind.OK {
		return err
	}

	for q.count == len(q.buf) {
		guard.Release()
		if werr := q.nonFull.Wait(eventflag.BitAt(nonFullBit), eventflag.OR, nil, t); werr != errkind.OK {
			guard = nil
			return werr
		}
		g2, lerr := mutex.TimedLock(q.m, t)
		guard = g2
		if lerr != errkind.OK {
			return lerr
		}
	}

	if front {
		q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
		q.buf[q.head] = v
	} else {
		tail := (q.head + q.count) % len(q.buf)
		q.buf[tail] = v
	}
	q.count++

	q.nonEmpty.SetOne(nonEmptyBit)
	if q.count < len(q.buf) {
		q.nonFull.SetOne(nonFullBit)
	}
	return errkind.OK
}

// Receive pops the item at the front of the queue, blocking up to t
// if the queue is empty.
func (q *Queue[T]) Receive(t errkind.Timeout) (T, errkind.Error) {
	var zero T
	var guard *mutex.ScopedLock
	defer func() { guard.Release() }()

	g, err := mutex.TimedLock(q.m, t)
	guard = g
	if err != errkind.OK {
		return zero, err
	}

	for q.count == 0 {
		guard.Release()
		if werr := q.nonEmpty.Wait(eventflag.BitAt(nonEmptyBit), eventflag.OR, nil, t); werr != errkind.OK {
			return zero, werr
		}
		g2, lerr := mutex.TimedLock(q.m, t)
		guard = g2
		if lerr != errkind.OK {
			return zero, lerr
		}
	}

	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--

	q.nonFull.SetOne(nonFullBit)
	if q.count > 0 {
		q.nonEmpty.SetOne(nonEmptyBit)
	}
	return v, errkind.OK
}

// Destroy releases the queue's backing mutex and event flags via the
// factories that created them.
func (q *Queue[T]) Destroy(mutexFactory mutex.Factory, flagFactory eventflag.Factory) {
	flagFactory.Destroy(q.nonEmpty)
	flagFactory.Destroy(q.nonFull)
	mutexFactory.Destroy(q.m)
}
