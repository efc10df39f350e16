package statemachine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransitionMetrics verifies counters recorded while performing transitions.
// Note: Cannot use t.Parallel() because this test reads global Prometheus metrics.
//
//nolint:paralleltest // Test reads global Prometheus metric state
func TestTransitionMetrics(t *testing.T) {
	machine, err := NewMachine("metrics_probe", WithStates(parked, idling), WithAttribute("state"))
	require.NoError(t, err)

	event, err := machine.DefineEvent("ignite")
	require.NoError(t, err)
	_, err = event.Transition(BranchOptions{})
	require.NoError(t, err)

	halts := 0
	_, err = machine.Before(CallbackOptions{}, func(*vehicle) any {
		halts++
		if halts > 1 {
			return Halt
		}

		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	v := &vehicle{State: parked}

	ok, err := event.Fire(ctx, v)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = event.Fire(ctx, v)
	require.NoError(t, err)
	require.False(t, ok)

	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues("metrics_probe", "ignite", outcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues("metrics_probe", "ignite", outcomeFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(callbackHaltsTotal.WithLabelValues("metrics_probe", "before")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rollbacksTotal.WithLabelValues("metrics_probe")), 0)
	assert.Positive(t, testutil.CollectAndCount(performDuration))
}

func TestOutcomeLabels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, outcomeSuccess, outcomeOf(true, nil))
	assert.Equal(t, outcomeFailure, outcomeOf(false, nil))
	assert.Equal(t, outcomeError, outcomeOf(true, errSave))
	assert.Equal(t, "none", sanitizeEvent(""))
	assert.Equal(t, "ignite", sanitizeEvent("ignite"))
}
