package executor

import (
	"fmt"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// Serial runs submitted tasks one at a time, in submission order, on a
// single goroutine. The queue is unbounded so Submit never blocks.
type Serial struct {
	name    string
	loggers ldlog.Loggers

	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// NewSerial creates and starts a serial executor
func NewSerial(name string, loggers ldlog.Loggers) *Serial {
	s := &Serial{
		name:    name,
		loggers: loggers,
		tasks:   make([]func(), 0, 16),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Submit queues fn. It returns ErrExecutorClosed after Shutdown.
func (s *Serial) Submit(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%s: %w", s.name, domain.ErrExecutorClosed)
	}
	s.tasks = append(s.tasks, fn)

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return nil
}

// Shutdown rejects further submissions, drops queued tasks and waits for
// the running task to return. It must not be called from a task.
func (s *Serial) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.tasks = nil
	close(s.signal)
	s.mu.Unlock()

	<-s.done
}

// Pending returns the number of queued tasks not yet started
func (s *Serial) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Serial) run() {
	defer close(s.done)

	for range s.signal {
		for {
			fn, ok := s.next()
			if !ok {
				break
			}
			s.execute(fn)
		}
	}
}

func (s *Serial) next() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.tasks) == 0 {
		return nil, false
	}
	fn := s.tasks[0]
	s.tasks[0] = nil
	s.tasks = s.tasks[1:]
	return fn, true
}

func (s *Serial) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.loggers.Errorf("%s: task panicked: %v", s.name, r)
		}
	}()
	fn()
}
