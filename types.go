package pennant

import (
	"github.com/OrlandoBitencourt/pennant/internal/domain"
	"github.com/OrlandoBitencourt/pennant/internal/listeners"
	"github.com/OrlandoBitencourt/pennant/internal/syncer"
)

type (
	// Target is the subject flags are evaluated for.
	Target = domain.Target

	// Evaluation is the server-computed value of one flag for a target.
	Evaluation = domain.Evaluation

	// Kind tags the type of an evaluation value.
	Kind = domain.Kind

	// AuthInfo describes the authenticated session.
	AuthInfo = domain.AuthInfo

	// StatusEvent is delivered to events listeners.
	StatusEvent = domain.StatusEvent

	// EventType identifies a StatusEvent.
	EventType = domain.EventType

	// State is the lifecycle state of the client.
	State = syncer.State

	// AuthResult is the outcome of Initialize.
	AuthResult = syncer.AuthResult

	// AuthCallback receives the outcome of Initialize exactly once.
	AuthCallback = syncer.AuthCallback

	// EvaluationListener is notified when one evaluation changes.
	EvaluationListener = listeners.EvaluationListener

	// EventsListener is notified of every StatusEvent.
	EventsListener = listeners.EventsListener
)

const (
	KindBoolean = domain.KindBoolean
	KindString  = domain.KindString
	KindInt     = domain.KindInt
	KindNumber  = domain.KindNumber
	KindJSON    = domain.KindJSON
)

const (
	EventStreamStarted     = domain.EventStreamStarted
	EventStreamEnded       = domain.EventStreamEnded
	EventEvaluationChanged = domain.EventEvaluationChanged
	EventEvaluationRemoved = domain.EventEvaluationRemoved
	EventEvaluationReload  = domain.EventEvaluationReload
)

const (
	StateUninitialized    = syncer.StateUninitialized
	StateAuthenticating   = syncer.StateAuthenticating
	StateStreaming        = syncer.StateStreaming
	StatePolling          = syncer.StatePolling
	StateReauthenticating = syncer.StateReauthenticating
	StateDestroyed        = syncer.StateDestroyed
)

// NewTarget creates a target with the given identifier.
func NewTarget(identifier string) Target {
	return Target{
		Identifier: identifier,
		Name:       identifier,
		Attributes: make(map[string]any),
	}
}

// evaluationListener adapts a function to EvaluationListener. Listeners
// are matched by identity, so the adapter is always a pointer.
type evaluationListener struct {
	fn func(Evaluation)
}

func (l *evaluationListener) OnEvaluation(e Evaluation) { l.fn(e) }

// NewEvaluationListener wraps fn as an EvaluationListener. Keep the
// returned value to unregister it later.
func NewEvaluationListener(fn func(Evaluation)) EvaluationListener {
	return &evaluationListener{fn: fn}
}

type eventsListener struct {
	fn func(StatusEvent)
}

func (l *eventsListener) OnEventReceived(event StatusEvent) { l.fn(event) }

// NewEventsListener wraps fn as an EventsListener. Keep the returned
// value to unregister it later.
func NewEventsListener(fn func(StatusEvent)) EventsListener {
	return &eventsListener{fn: fn}
}

// Metrics represents client metrics.
type Metrics struct {
	// State is the current lifecycle state
	State State

	// Ready reports whether the session is authenticated
	Ready bool

	// Evaluations is the number of cached evaluations of the session
	Evaluations int

	// Cache metrics of the evaluation cache
	Cache CacheMetrics

	// FeatureConfigHitRatio is the hit ratio of the feature config cache
	FeatureConfigHitRatio float64

	// Analytics metrics
	Analytics AnalyticsMetrics
}

// CacheMetrics represents evaluation cache metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysDeleted uint64
	WriteErrors uint64

	// HitRatio is the cache hit ratio (0.0 to 1.0)
	HitRatio float64
}

// AnalyticsMetrics represents evaluation analytics counters.
type AnalyticsMetrics struct {
	// Counters is the number of distinct (flag, variation, target) counters
	Counters int

	// Evaluations is the total of all counters
	Evaluations int

	// Dropped is the number of records dropped while the buffer was full
	Dropped int
}
