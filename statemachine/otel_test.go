package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer creates a test tracer with an in-memory exporter.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)

	oldProvider := otel.GetTracerProvider()

	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		otel.SetTracerProvider(oldProvider)
	})

	return exporter
}

func spanNamed(spans tracetest.SpanStubs, name string) (tracetest.SpanStub, bool) {
	for _, span := range spans {
		if span.Name == name {
			return span, true
		}
	}

	return tracetest.SpanStub{}, false
}

func attributeValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}

	return attribute.Value{}, false
}

// TestPerformSpans verifies the spans and events recorded while performing transitions.
// Note: Cannot use t.Parallel() because setupTestTracer modifies global OTEL tracer provider.
//
//nolint:paralleltest // Test modifies global OTEL tracer provider
func TestPerformSpans(t *testing.T) {
	exporter := setupTestTracer(t)
	ctx := context.Background()

	//nolint:paralleltest // Subtests share exporter, must run sequentially
	t.Run("successful perform", func(t *testing.T) {
		exporter.Reset()

		machine := newStateMachine(t)
		v := newVehicle(t, machine)

		ok, err := mustEvent(t, machine, "ignite").Fire(ctx, v)
		require.NoError(t, err)
		require.True(t, ok)

		spans := exporter.GetSpans()

		perform, found := spanNamed(spans, "statemachine.perform")
		require.True(t, found)
		assert.Equal(t, codes.Ok, perform.Status.Code)

		runID, found := attributeValue(perform.Attributes, "run_id")
		require.True(t, found)
		assert.NotEmpty(t, runID.AsString())

		transitions, found := attributeValue(perform.Attributes, "transitions")
		require.True(t, found)
		assert.Equal(t, []string{"state.ignite: parked -> idling"}, transitions.AsStringSlice())

		action, found := spanNamed(spans, "action.Save")
		require.True(t, found)
		assert.Equal(t, perform.SpanContext.TraceID(), action.Parent.TraceID())
		assert.Equal(t, perform.SpanContext.SpanID(), action.Parent.SpanID())
	})

	//nolint:paralleltest // Subtests share exporter, must run sequentially
	t.Run("halted perform", func(t *testing.T) {
		exporter.Reset()

		machine := newStateMachine(t)
		_, err := machine.Before(CallbackOptions{}, func(*vehicle) any { return Halt })
		require.NoError(t, err)

		v := newVehicle(t, machine)

		ok, err := mustEvent(t, machine, "ignite").Fire(ctx, v)
		require.NoError(t, err)
		require.False(t, ok)

		perform, found := spanNamed(exporter.GetSpans(), "statemachine.perform")
		require.True(t, found)

		names := make([]string, 0, len(perform.Events))
		for _, event := range perform.Events {
			names = append(names, event.Name)
		}

		assert.Equal(t, []string{"callback.halted", "transition.rolled_back"}, names)

		success, found := attributeValue(perform.Attributes, "success")
		require.True(t, found)
		assert.False(t, success.AsBool())
	})

	//nolint:paralleltest // Subtests share exporter, must run sequentially
	t.Run("failed perform", func(t *testing.T) {
		exporter.Reset()

		machine := newStateMachine(t)
		v := newVehicle(t, machine)
		v.saveErr = errSave

		_, err := mustEvent(t, machine, "ignite").Fire(ctx, v)
		require.ErrorIs(t, err, errSave)

		perform, found := spanNamed(exporter.GetSpans(), "statemachine.perform")
		require.True(t, found)
		assert.Equal(t, codes.Error, perform.Status.Code)

		action, found := spanNamed(exporter.GetSpans(), "action.Save")
		require.True(t, found)
		assert.Equal(t, codes.Error, action.Status.Code)
	})
}

func TestExtractTraceContext(t *testing.T) {
	t.Parallel()

	traceID, spanID := extractTraceContext(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)

	tp := trace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "test")

	defer span.End()

	traceID, spanID = extractTraceContext(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), spanID)
}
