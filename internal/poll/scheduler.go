package poll

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Scheduler invokes one callback per interval on its own goroutine. Only
// one timer runs at a time.
type Scheduler struct {
	interval time.Duration
	loggers  ldlog.Loggers

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	starts atomic.Int64
	stops  atomic.Int64
}

// NewScheduler creates a stopped scheduler
func NewScheduler(interval time.Duration, loggers ldlog.Loggers) *Scheduler {
	loggers.SetPrefix("[pennant.poll]")
	return &Scheduler{interval: interval, loggers: loggers}
}

// Start stops any running timer and starts a new one invoking fn.
// The first call happens one interval from now. fn must not call back
// into the scheduler.
func (s *Scheduler) Start(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done
	s.starts.Add(1)
	s.loggers.Debugf("Polling every %s", s.interval)

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case <-stop:
					return
				default:
				}
				fn()
			}
		}
	}()
}

// Stop halts the timer. No callback runs after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
	s.stops.Add(1)
	s.loggers.Debug("Polling stopped")
}

// Running reports whether a timer is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Stats returns how many times polling was started and stopped
func (s *Scheduler) Stats() (starts, stops int64) {
	return s.starts.Load(), s.stops.Load()
}
