package network

import (
	"sync"
)

// Status is a connectivity transition
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "CONNECTED"
	}
	return "DISCONNECTED"
}

// Provider reports network availability and its transitions
type Provider interface {
	IsAvailable() bool
	OnChange(callback func(Status))
	UnregisterAll()
}

// Manual is a Provider driven by explicit calls
type Manual struct {
	mu        sync.Mutex
	available bool
	callbacks []func(Status)
}

// NewManual creates a provider with the given initial availability
func NewManual(available bool) *Manual {
	return &Manual{available: available}
}

func (m *Manual) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *Manual) OnChange(callback func(Status)) {
	if callback == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Manual) UnregisterAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = nil
}

// Set updates availability and notifies on an actual transition
func (m *Manual) Set(available bool) {
	m.mu.Lock()
	changed := m.available != available
	m.available = available
	m.mu.Unlock()

	if changed {
		m.fire(statusOf(available))
	}
}

// Notify updates availability and notifies unconditionally, the way
// platform connectivity callbacks may repeat a status
func (m *Manual) Notify(status Status) {
	m.mu.Lock()
	m.available = status == Connected
	m.mu.Unlock()

	m.fire(status)
}

func (m *Manual) fire(status Status) {
	m.mu.Lock()
	callbacks := make([]func(Status), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(status)
	}
}

func statusOf(available bool) Status {
	if available {
		return Connected
	}
	return Disconnected
}
