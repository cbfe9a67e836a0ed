package posix

import "time"

// stopper wraps a time.Timer that invokes fn once after d elapses,
// used to turn sync.Cond's unconditional Wait into a bounded wait
// without pulling in a separate timer library for this one concern.
type stopper struct {
	timer *time.Timer
}

func newStopper(d time.Duration, fn func()) *stopper {
	return &stopper{timer: time.AfterFunc(d, fn)}
}

func (s *stopper) Stop() {
	s.timer.Stop()
}
