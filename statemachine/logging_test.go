package statemachine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var records []map[string]any

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		record := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &record))

		records = append(records, record)
	}

	return records
}

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := NewLogger(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	machine := newStateMachine(t, WithLogger(logger))
	_, err := machine.Before(CallbackOptions{
		BranchOptions: BranchOptions{ExceptFrom: []string{parked}},
	}, func(*vehicle) any { return Halt })
	require.NoError(t, err)

	v := newVehicle(t, machine)
	ctx := context.Background()

	ok, err := mustEvent(t, machine, "ignite").Fire(ctx, v)
	require.NoError(t, err)
	require.True(t, ok)

	records := decodeLines(t, buf)

	messages := make([]string, len(records))
	for i, record := range records {
		messages[i] = record["msg"].(string) //nolint:forcetypeassert
	}

	assert.Equal(t, []string{
		"Transition started",
		"Transition persisted",
		"Action started",
		"Action completed",
		"Transitions finished",
	}, messages)

	assert.Equal(t, "state", records[0]["machine"])
	assert.Equal(t, "ignite", records[0]["event"])
	assert.Equal(t, records[0]["run_id"], records[4]["run_id"])
	assert.Equal(t, true, records[4]["success"])

	buf.Reset()

	ok, err = mustEvent(t, machine, "park").Fire(ctx, v)
	require.NoError(t, err)
	require.False(t, ok)

	records = decodeLines(t, buf)

	var halted map[string]any

	for _, record := range records {
		if record["msg"] == "Callback halted transition" {
			halted = record
		}
	}

	require.NotNil(t, halted)
	assert.Equal(t, "before", halted["callback_type"])
	assert.Equal(t, "park", halted["event"])
}

func TestDefaultLogger_TestOutput(t *testing.T) {
	t.Parallel()

	machine := newStateMachine(t, WithLogger(NewLogger(slogt.New(t))))
	v := newVehicle(t, machine)
	v.saveErr = errSave

	_, err := mustEvent(t, machine, "ignite").Fire(context.Background(), v)
	require.ErrorIs(t, err, errSave)
}

func TestRunID(t *testing.T) {
	t.Parallel()

	_, ok := RunIDFromContext(context.Background())
	assert.False(t, ok)

	runID, ok := RunIDFromContext(WithRunID(context.Background(), "run-1"))
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)

	assert.NotNil(t, NewLogger(nil))
}
