package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCollector(t *testing.T) {
	t.Parallel()

	collector := NewErrorCollector(map[string]string{MessageInvalidEvent: "cannot {event} while {state}"})
	first, second := &vehicle{}, &vehicle{}

	collector.Invalidate(first, "alarm_state", MessageInvalidTransition, map[string]string{"event": "disable alarm"})
	collector.Invalidate(first, "state", MessageInvalidEvent, map[string]string{"event": "ignite", "state": "stalled"})
	collector.Invalidate(second, "state", "is broken", nil)

	assert.Equal(t, "alarm state cannot transition via disable alarm, state cannot ignite while stalled",
		collector.ErrorsFor(first))
	assert.Equal(t, []string{"state is broken"}, collector.Errors(second))

	collector.Reset(first)
	assert.Empty(t, collector.ErrorsFor(first))
	assert.NotEmpty(t, collector.ErrorsFor(second))
}

func TestHumanName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "first gear", HumanName("first_gear"))
	assert.Equal(t, "shift up", HumanName("Shift_Up"))
	assert.Empty(t, HumanName(""))
}
