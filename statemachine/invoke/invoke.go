// Package invoke implements the callable abstraction used by callbacks, guard
// conditions and machine actions.
//
// A callable is either a func value of (almost) any signature or the name of a
// method defined on the host object. Arguments are forwarded by position and
// truncated to the callable's arity, so a condition written as
// func(v *Vehicle) bool and one written as func(v *Vehicle, speed int) bool can
// both be attached to the same event.
//
// Calling convention:
//   - A leading context.Context parameter receives the caller's context.
//   - Unbound funcs receive (object, extra...) positionally.
//   - Bound funcs and method names receive (extra...) only; method names are
//     invoked with the object as receiver.
//   - A trailing func() bool parameter receives the around continuation.
//   - Missing positional arguments are zero values; surplus ones are dropped
//     unless the callable is variadic.
//   - Results may be: none, a value, an error, or (value, error).
package invoke

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

var (
	// ErrNotCallable is returned when a value is neither a func nor a method name.
	ErrNotCallable = errors.New("value is not callable")
	// ErrMethodNotFound is returned when a named method is not defined on the object.
	ErrMethodNotFound = errors.New("method not found")
	// ErrArgumentType is returned when an argument cannot be assigned to a parameter.
	ErrArgumentType = errors.New("argument type mismatch")
	// ErrTooManyResults is returned for callables whose results do not fit the convention.
	ErrTooManyResults = errors.New("callable has an unsupported result signature")
)

var (
	contextType = reflect.TypeFor[context.Context]() //nolint:gochecknoglobals
	errorType   = reflect.TypeFor[error]()           //nolint:gochecknoglobals
	proceedType = reflect.TypeFor[func() bool]()     //nolint:gochecknoglobals
)

// Callable is an invocable unit of work.
type Callable struct {
	name   string
	method string
	fn     reflect.Value
}

// New wraps v as a Callable. v must be a non-nil func, a non-empty method
// name, or an existing *Callable.
func New(v any) (*Callable, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrNotCallable)
	case *Callable:
		if val == nil {
			return nil, fmt.Errorf("%w: nil", ErrNotCallable)
		}

		return val, nil
	case string:
		if val == "" {
			return nil, fmt.Errorf("%w: empty method name", ErrNotCallable)
		}

		return &Callable{name: val, method: val}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, fmt.Errorf("%w: %T", ErrNotCallable, v)
	}

	if err := checkResults(rv.Type()); err != nil {
		return nil, err
	}

	return &Callable{name: FunctionName(v), fn: rv}, nil
}

// Name returns the method name, or the function name for funcs.
func (c *Callable) Name() string {
	return c.name
}

// IsMethod reports whether the callable is resolved by name on the object.
func (c *Callable) IsMethod() bool {
	return c.method != ""
}

// AcceptsProceed reports whether the callable can receive an around
// continuation. Method names are only resolved at call time, so they report true.
func (c *Callable) AcceptsProceed() bool {
	if c.IsMethod() {
		return true
	}

	ft := c.fn.Type()

	return !ft.IsVariadic() && ft.NumIn() > 0 && ft.In(ft.NumIn()-1) == proceedType
}

// Call invokes the callable against obj. proceed is handed to a trailing
// func() bool parameter if one is declared.
func (c *Callable) Call(ctx context.Context, obj any, bound bool, args []any, proceed func() bool) (any, error) {
	fn, candidates, err := c.resolve(obj, bound, args)
	if err != nil {
		return nil, err
	}

	in, err := buildArgs(ctx, fn.Type(), candidates, proceed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}

	return results(fn.Call(in))
}

func (c *Callable) resolve(obj any, bound bool, args []any) (reflect.Value, []any, error) {
	if c.method == "" {
		if bound {
			return c.fn, args, nil
		}

		return c.fn, append([]any{obj}, args...), nil
	}

	if obj == nil {
		return reflect.Value{}, nil, fmt.Errorf("%w: %q on nil object", ErrMethodNotFound, c.method)
	}

	method := reflect.ValueOf(obj).MethodByName(c.method)
	if !method.IsValid() {
		return reflect.Value{}, nil, fmt.Errorf("%w: %T has no method %q", ErrMethodNotFound, obj, c.method)
	}

	if err := checkResults(method.Type()); err != nil {
		return reflect.Value{}, nil, fmt.Errorf("%s: %w", c.method, err)
	}

	return method, args, nil
}

func buildArgs(ctx context.Context, ft reflect.Type, candidates []any, proceed func() bool) ([]reflect.Value, error) {
	numIn := ft.NumIn()
	variadic := ft.IsVariadic()
	in := make([]reflect.Value, 0, numIn+len(candidates))

	first := 0

	if numIn > 0 && ft.In(0) == contextType {
		if ctx == nil {
			ctx = context.Background()
		}

		in = append(in, reflect.ValueOf(ctx))
		first = 1
	}

	fixed := numIn
	hasProceed := false

	switch {
	case variadic:
		fixed = numIn - 1
	case numIn > first && ft.In(numIn-1) == proceedType:
		fixed = numIn - 1
		hasProceed = true
	}

	next := 0

	for i := first; i < fixed; i++ {
		var candidate any
		if next < len(candidates) {
			candidate = candidates[next]
		}

		next++

		val, err := convert(candidate, ft.In(i))
		if err != nil {
			return nil, err
		}

		in = append(in, val)
	}

	if variadic {
		elem := ft.In(numIn - 1).Elem()

		for ; next < len(candidates); next++ {
			val, err := convert(candidates[next], elem)
			if err != nil {
				return nil, err
			}

			in = append(in, val)
		}
	}

	if hasProceed {
		if proceed == nil {
			proceed = func() bool { return true }
		}

		in = append(in, reflect.ValueOf(proceed))
	}

	return in, nil
}

func convert(v any, target reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(target), nil
	}

	val := reflect.ValueOf(v)
	if val.Type().AssignableTo(target) {
		return val, nil
	}

	return reflect.Value{}, fmt.Errorf("%w: cannot use %T as %s", ErrArgumentType, v, target)
}

func checkResults(ft reflect.Type) error {
	switch ft.NumOut() {
	case 0, 1:
		return nil
	case 2: //nolint:mnd
		if ft.Out(1) == errorType {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrTooManyResults, ft)
}

func results(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil //nolint:nilnil
	case 1:
		if out[0].Type() == errorType {
			return nil, asError(out[0])
		}

		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}

	err, _ := v.Interface().(error)

	return err
}

// Truthy reports whether a callable's result counts as true: nil, nil-ish
// references and false are false, everything else is true.
func Truthy(v any) bool {
	if v == nil {
		return false
	}

	if b, ok := v.(bool); ok {
		return b
	}

	val := reflect.ValueOf(v)

	switch val.Kind() { //nolint:exhaustive
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer,
		reflect.UnsafePointer, reflect.Interface, reflect.Slice:
		return !val.IsNil()
	}

	return true
}

// FunctionName returns a short name for a func value, suitable for logs.
func FunctionName(f any) string {
	if f == nil {
		return "<nil>"
	}

	val := reflect.ValueOf(f)
	if val.Kind() != reflect.Func {
		return "<not a function>"
	}

	fn := runtime.FuncForPC(val.Pointer())
	if fn == nil {
		return "<unknown>"
	}

	name := fn.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	return name
}
