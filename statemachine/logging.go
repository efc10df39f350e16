package statemachine

import (
	"context"
	"log/slog"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
)

// Logger provides logging hooks for transition execution.
type Logger interface {
	TransitionStarted(ctx context.Context, t *Transition)
	TransitionPersisted(ctx context.Context, t *Transition)
	TransitionRolledBack(ctx context.Context, t *Transition)
	TransitionPaused(ctx context.Context, t *Transition)
	CallbackHalted(ctx context.Context, t *Transition, callback *Callback)
	ActionStarted(ctx context.Context, action string)
	ActionCompleted(ctx context.Context, action string, duration time.Duration, err error)
	CollectionFinished(
		ctx context.Context,
		runID string,
		transitions []*Transition,
		success bool,
		duration time.Duration,
		err error,
	)
}

type runIDContextKey struct{}

// WithRunID tags ctx with the id of the perform it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey{}, runID)
}

// RunIDFromContext returns the id set by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	runID, ok := ctx.Value(runIDContextKey{}).(string)

	return runID, ok
}

// DefaultLogger implements Logger using slog.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger logs through logger.Get(ctx), honoring muted contexts and
// values attached with logger.With.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{}
}

// NewLogger logs through base.
func NewLogger(base *slog.Logger) *DefaultLogger {
	if base == nil {
		return NewDefaultLogger()
	}

	return &DefaultLogger{logger: base}
}

func (l *DefaultLogger) log(ctx context.Context) *slog.Logger {
	if l.logger != nil {
		return l.logger
	}

	return logger.Get(ctx)
}

func (l *DefaultLogger) TransitionStarted(ctx context.Context, t *Transition) {
	l.log(ctx).DebugContext(ctx, "Transition started", l.fields(ctx, t)...)
}

func (l *DefaultLogger) TransitionPersisted(ctx context.Context, t *Transition) {
	l.log(ctx).DebugContext(ctx, "Transition persisted", l.fields(ctx, t)...)
}

func (l *DefaultLogger) TransitionRolledBack(ctx context.Context, t *Transition) {
	l.log(ctx).InfoContext(ctx, "Transition rolled back", l.fields(ctx, t)...)
}

func (l *DefaultLogger) TransitionPaused(ctx context.Context, t *Transition) {
	l.log(ctx).DebugContext(ctx, "Transition paused", l.fields(ctx, t)...)
}

func (l *DefaultLogger) CallbackHalted(ctx context.Context, t *Transition, callback *Callback) {
	l.log(ctx).InfoContext(ctx, "Callback halted transition", append(l.fields(ctx, t),
		"callback_type", string(callback.Type()),
		"callback_methods", callback.MethodNames(),
	)...)
}

func (l *DefaultLogger) ActionStarted(ctx context.Context, action string) {
	l.log(ctx).DebugContext(ctx, "Action started",
		"action", action,
	)
}

func (l *DefaultLogger) ActionCompleted(ctx context.Context, action string, duration time.Duration, err error) {
	if err != nil {
		l.log(ctx).ErrorContext(ctx, "Action completed with error",
			"action", action,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	} else {
		l.log(ctx).DebugContext(ctx, "Action completed",
			"action", action,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

func (l *DefaultLogger) CollectionFinished(
	ctx context.Context,
	runID string,
	transitions []*Transition,
	success bool,
	duration time.Duration,
	err error,
) {
	summary := make([]string, len(transitions))
	for i, t := range transitions {
		summary[i] = t.String()
	}

	fields := []any{
		"run_id", runID,
		"transitions", summary,
		"success", success,
		"duration_ms", duration.Milliseconds(),
	}

	if traceID, spanID := extractTraceContext(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID, "span_id", spanID)
	}

	if err != nil {
		l.log(ctx).ErrorContext(ctx, "Transitions failed", append(fields, "error", err)...)
	} else {
		l.log(ctx).InfoContext(ctx, "Transitions finished", fields...)
	}
}

func (l *DefaultLogger) fields(ctx context.Context, t *Transition) []any {
	fields := []any{
		"machine", t.machine.name,
		"event", t.event,
		"from", t.fromName,
		"to", t.toName,
	}

	if runID, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, "run_id", runID)
	}

	return fields
}

type nopLogger struct{}

func (nopLogger) TransitionStarted(context.Context, *Transition)                {}
func (nopLogger) TransitionPersisted(context.Context, *Transition)              {}
func (nopLogger) TransitionRolledBack(context.Context, *Transition)             {}
func (nopLogger) TransitionPaused(context.Context, *Transition)                 {}
func (nopLogger) CallbackHalted(context.Context, *Transition, *Callback)        {}
func (nopLogger) ActionStarted(context.Context, string)                         {}
func (nopLogger) ActionCompleted(context.Context, string, time.Duration, error) {}

func (nopLogger) CollectionFinished(context.Context, string, []*Transition, bool, time.Duration, error) {}
