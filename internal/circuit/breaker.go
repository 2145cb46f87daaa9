package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets calls through
	StateClosed State = iota
	// StateOpen fails calls fast
	StateOpen
	// StateHalfOpen lets calls through to probe for recovery
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures int

	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration

	// HalfOpenSuccesses is the number of probe successes needed to close
	HalfOpenSuccesses int

	// IsFailure decides whether an error counts against the circuit.
	// Nil counts every error.
	IsFailure func(error) bool
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		MaxFailures:       5,
		Timeout:           30 * time.Second,
		HalfOpenSuccesses: 1,
	}
}

// Breaker guards calls to the remote evaluation service
type Breaker struct {
	mu      sync.Mutex
	cfg     Config
	loggers ldlog.Loggers
	now     func() time.Time

	state           State
	failures        int
	successes       int
	lastStateChange time.Time
	rejections      int64
}

// New creates a new circuit breaker
func New(cfg Config, loggers ldlog.Loggers) *Breaker {
	def := DefaultConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = def.HalfOpenSuccesses
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	loggers.SetPrefix("[pennant.circuit]")

	return &Breaker{
		cfg:             cfg,
		loggers:         loggers,
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Call runs fn unless the circuit is open
func (b *Breaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.lastStateChange) >= b.cfg.Timeout {
		b.setState(StateHalfOpen)
		return nil
	}

	b.rejections++
	return fmt.Errorf("%w after %d failures", domain.ErrCircuitOpen, b.failures)
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.cfg.IsFailure(err) {
		b.failures++
		switch b.state {
		case StateClosed:
			if b.failures >= b.cfg.MaxFailures {
				b.setState(StateOpen)
			}
		case StateHalfOpen:
			b.successes = 0
			b.setState(StateOpen)
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			b.successes = 0
			b.setState(StateClosed)
		}
	}
}

// setState must be called with b.mu held
func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	b.loggers.Warnf("Circuit %s -> %s", b.state, to)
	b.state = to
	b.lastStateChange = b.now()
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejections returns how many calls were failed fast
func (b *Breaker) Rejections() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejections
}

// Reset closes the circuit
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.successes = 0
	b.setState(StateClosed)
}
