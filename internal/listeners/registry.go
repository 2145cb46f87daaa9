package listeners

import (
	"reflect"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// EvaluationListener is told about changes to one flag
type EvaluationListener interface {
	OnEvaluation(evaluation domain.Evaluation)
}

// EventsListener receives every lifecycle and data event
type EventsListener interface {
	OnEventReceived(event domain.StatusEvent)
}

// Registry holds per-flag and global listeners. Notification iterates
// over a snapshot, so listeners may register or unregister concurrently.
type Registry struct {
	mu         sync.RWMutex
	evaluation map[string][]EvaluationListener
	events     []EventsListener
	loggers    ldlog.Loggers
}

// NewRegistry creates an empty registry
func NewRegistry(loggers ldlog.Loggers) *Registry {
	loggers.SetPrefix("[pennant.listeners]")
	return &Registry{
		evaluation: make(map[string][]EvaluationListener),
		loggers:    loggers,
	}
}

// isComparable reports whether l can be compared with ==. Func, map and
// slice listeners cannot be deduplicated.
func isComparable(l interface{}) bool {
	return l != nil && reflect.TypeOf(l).Comparable()
}

// RegisterEvaluation adds l for flag id. It returns false for nil,
// uncomparable or already registered listeners.
func (r *Registry) RegisterEvaluation(id string, l EvaluationListener) bool {
	if !isComparable(l) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.evaluation[id] {
		if existing == l {
			return false
		}
	}
	current := r.evaluation[id]
	next := make([]EvaluationListener, len(current), len(current)+1)
	copy(next, current)
	r.evaluation[id] = append(next, l)
	return true
}

// UnregisterEvaluation removes l for flag id
func (r *Registry) UnregisterEvaluation(id string, l EvaluationListener) bool {
	if !isComparable(l) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.evaluation[id]
	for i, existing := range current {
		if existing != l {
			continue
		}
		next := make([]EvaluationListener, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(r.evaluation, id)
		} else {
			r.evaluation[id] = next
		}
		return true
	}
	return false
}

// RegisterEvents appends l to the global listeners
func (r *Registry) RegisterEvents(l EventsListener) bool {
	if !isComparable(l) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.events {
		if existing == l {
			return false
		}
	}
	next := make([]EventsListener, len(r.events), len(r.events)+1)
	copy(next, r.events)
	r.events = append(next, l)
	return true
}

// UnregisterEvents removes l from the global listeners
func (r *Registry) UnregisterEvents(l EventsListener) bool {
	if !isComparable(l) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.events {
		if existing != l {
			continue
		}
		next := make([]EventsListener, 0, len(r.events)-1)
		next = append(next, r.events[:i]...)
		r.events = append(next, r.events[i+1:]...)
		return true
	}
	return false
}

// EvaluationListeners returns a snapshot of the listeners for id
func (r *Registry) EvaluationListeners(id string) []EvaluationListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evaluation[id]
}

// EventsListeners returns a snapshot of the global listeners in
// registration order
func (r *Registry) EventsListeners() []EventsListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.events
}

// NotifyEvaluation calls every listener registered for e.Flag
func (r *Registry) NotifyEvaluation(e domain.Evaluation) {
	for _, l := range r.EvaluationListeners(e.Flag) {
		r.safely(func() { l.OnEvaluation(e) })
	}
}

// Broadcast calls every global listener in registration order
func (r *Registry) Broadcast(event domain.StatusEvent) {
	for _, l := range r.EventsListeners() {
		r.safely(func() { l.OnEventReceived(event) })
	}
}

// Clear drops every listener
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evaluation = make(map[string][]EvaluationListener)
	r.events = nil
}

func (r *Registry) safely(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.loggers.Errorf("Listener panicked: %v", p)
		}
	}()
	fn()
}
