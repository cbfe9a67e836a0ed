package testdouble

import "time"

// stopper mirrors backend/posix's stopper: a time.Timer that invokes
// fn once after d elapses, turning a sync.Cond's unconditional Wait
// into a bounded wait without a separate timer dependency.
type stopper struct {
	timer *time.Timer
}

func newStopper(d time.Duration, fn func()) *stopper {
	return &stopper{timer: time.AfterFunc(d, fn)}
}

func (s *stopper) Stop() {
	s.timer.Stop()
}
