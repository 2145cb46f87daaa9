package pennant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTarget(t *testing.T) {
	target := NewTarget("user-1")

	assert.Equal(t, "user-1", target.Identifier)
	assert.Equal(t, "user-1", target.Name)
	assert.NotNil(t, target.Attributes)
	assert.True(t, target.Valid())
	assert.False(t, Target{}.Valid())
}

func TestListenerAdapters(t *testing.T) {
	var got []string
	evaluation := NewEvaluationListener(func(e Evaluation) { got = append(got, e.Flag) })
	events := NewEventsListener(func(e StatusEvent) { got = append(got, e.Type.String()) })

	evaluation.OnEvaluation(Evaluation{Flag: "flag_a"})
	events.OnEventReceived(StatusEvent{Type: EventStreamStarted})

	assert.Equal(t, []string{"flag_a", "stream_started"}, got)

	// adapters are distinct identities even for the same function
	fn := func(Evaluation) {}
	assert.NotEqual(t, NewEvaluationListener(fn), NewEvaluationListener(fn))
}
