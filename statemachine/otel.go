package statemachine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "statemachine"

// startPerformSpan creates the root span for performing a set of transitions.
// Uses the global tracer initialized by github.com/amp-labs/amp-fsm/telemetry.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startPerformSpan(ctx context.Context, runID string, transitions []*Transition) (context.Context, trace.Span) {
	machines := make([]string, len(transitions))
	events := make([]string, len(transitions))
	summary := make([]string, len(transitions))

	for i, t := range transitions {
		machines[i] = t.machine.name
		events[i] = t.event
		summary[i] = t.String()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "statemachine.perform")
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("transition_count", len(transitions)),
		attribute.StringSlice("machines", machines),
		attribute.StringSlice("events", events),
		attribute.StringSlice("transitions", summary),
	)

	return ctx, span
}

// startActionSpan creates a child span for a machine action.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startActionSpan(ctx context.Context, machine, action string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "action."+action)
	span.SetAttributes(
		attribute.String("machine", machine),
		attribute.String("action", action),
	)

	return ctx, span
}

// finishSpan records the outcome and ends span.
func finishSpan(span trace.Span, success bool, err error) {
	span.SetAttributes(attribute.Bool("success", success))

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case success:
		span.SetStatus(codes.Ok, "completed")
	default:
		span.SetStatus(codes.Unset, "rolled back")
	}

	span.End()
}

func recordHaltEvent(ctx context.Context, t *Transition, callback *Callback) {
	trace.SpanFromContext(ctx).AddEvent("callback.halted", trace.WithAttributes(
		attribute.String("machine", t.machine.name),
		attribute.String("event", t.event),
		attribute.String("callback_type", string(callback.Type())),
		attribute.StringSlice("callback_methods", callback.MethodNames()),
	))
}

func recordRollbackEvent(ctx context.Context, t *Transition) {
	trace.SpanFromContext(ctx).AddEvent("transition.rolled_back", trace.WithAttributes(
		attribute.String("machine", t.machine.name),
		attribute.String("from", t.fromName),
		attribute.String("to", t.toName),
	))
}

// extractTraceContext extracts trace ID and span ID from context for logging.
func extractTraceContext(ctx context.Context) (traceID, spanID string) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()

		return spanCtx.TraceID().String(), spanCtx.SpanID().String()
	}

	return "", ""
}
