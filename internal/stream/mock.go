package stream

import (
	"sync"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// MockTransport is a Transport driven by tests
type MockTransport struct {
	mu       sync.Mutex
	sink     Sink
	config   Config
	active   bool
	StartErr error

	StartCalls int
	StopCalls  int
}

// NewMockTransport creates an idle mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) Start(cfg Config, sink Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.config = cfg
	m.sink = sink
	m.active = true
	return nil
}

func (m *MockTransport) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StopCalls++
	m.active = false
	m.sink = nil
}

// Emit delivers event to the current sink. It reports false when no
// connection is active.
func (m *MockTransport) Emit(event domain.StatusEvent) bool {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()

	if sink == nil {
		return false
	}
	sink(event)
	return true
}

// Active reports whether the transport is started
func (m *MockTransport) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Config returns the configuration of the last Start
func (m *MockTransport) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Calls returns the Start and Stop call counts
func (m *MockTransport) Calls() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StartCalls, m.StopCalls
}
