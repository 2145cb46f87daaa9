package domain

// EventType enumerates the StatusEvent variants
type EventType int

const (
	EventStreamStarted EventType = iota + 1
	EventStreamEnded
	EventEvaluationChanged
	EventEvaluationRemoved
	EventEvaluationReload
)

func (t EventType) String() string {
	switch t {
	case EventStreamStarted:
		return "stream_started"
	case EventStreamEnded:
		return "stream_ended"
	case EventEvaluationChanged:
		return "evaluation_changed"
	case EventEvaluationRemoved:
		return "evaluation_removed"
	case EventEvaluationReload:
		return "evaluation_reload"
	default:
		return "unknown"
	}
}

// StatusEvent is dispatched to lifecycle listeners.
// Evaluation is set for changed/removed events, Evaluations for reloads.
type StatusEvent struct {
	Type        EventType
	Evaluation  *Evaluation
	Evaluations []Evaluation
}

// StreamStarted returns a stream-started event
func StreamStarted() StatusEvent { return StatusEvent{Type: EventStreamStarted} }

// StreamEnded returns a stream-ended event
func StreamEnded() StatusEvent { return StatusEvent{Type: EventStreamEnded} }

// EvaluationChanged returns an evaluation-changed event carrying e
func EvaluationChanged(e Evaluation) StatusEvent {
	return StatusEvent{Type: EventEvaluationChanged, Evaluation: &e}
}

// EvaluationRemoved returns an evaluation-removed event carrying e
func EvaluationRemoved(e Evaluation) StatusEvent {
	return StatusEvent{Type: EventEvaluationRemoved, Evaluation: &e}
}

// EvaluationReload returns a full-reload event. A nil list becomes empty.
func EvaluationReload(list []Evaluation) StatusEvent {
	if list == nil {
		list = []Evaluation{}
	}
	return StatusEvent{Type: EventEvaluationReload, Evaluations: list}
}
