package logger

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"
)

// AnnotateError attaches slog key-value pairs to err. Loggers configured by
// this package log those pairs next to the error. Returns nil if err is nil.
//
//	if err := v.persist(); err != nil {
//	    return AnnotateError(err, "vehicle", v.ID, "state", v.State)
//	}
func AnnotateError(err error, args ...any) error {
	if err == nil {
		return nil
	}

	r := slog.NewRecord(time.Now(), slog.LevelDebug, "", 0)
	r.Add(args...)

	var attrs []slog.Attr

	r.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)

		return true
	})

	return &slogError{err: err, attrs: attrs}
}

// ErrorAttrs returns the attributes attached anywhere in err's chain.
func ErrorAttrs(err error) []slog.Attr {
	var se *slogError
	if !errors.As(err, &se) {
		return nil
	}

	return slices.Concat(se.attrs, ErrorAttrs(se.err))
}

type slogError struct {
	err   error
	attrs []slog.Attr
}

func (s *slogError) Error() string { return s.err.Error() }
func (s *slogError) Unwrap() error { return s.err }

var _ error = (*slogError)(nil)

// slogErrorLogger expands annotated errors into their attributes before
// handing the record to inner.
type slogErrorLogger struct {
	inner slog.Handler
}

var _ slog.Handler = (*slogErrorLogger)(nil)

func (s *slogErrorLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return s.inner.Enabled(ctx, level)
}

func (s *slogErrorLogger) Handle(ctx context.Context, record slog.Record) error {
	var (
		baseAttrs []slog.Attr
		errAttrs  []slog.Attr
	)

	record.Attrs(func(attr slog.Attr) bool {
		baseAttrs = append(baseAttrs, attr)

		if err, ok := attr.Value.Any().(error); ok {
			errAttrs = append(errAttrs, ErrorAttrs(err)...)
		}

		return true
	})

	if len(errAttrs) == 0 {
		return s.inner.Handle(ctx, record)
	}

	r := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	r.AddAttrs(baseAttrs...)
	r.AddAttrs(errAttrs...)

	return s.inner.Handle(ctx, r)
}

func (s *slogErrorLogger) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &slogErrorLogger{inner: s.inner.WithAttrs(attrs)}
}

func (s *slogErrorLogger) WithGroup(name string) slog.Handler {
	return &slogErrorLogger{inner: s.inner.WithGroup(name)}
}
