package statemachine

import (
	"context"
	"fmt"

	"github.com/amp-labs/amp-fsm/statemachine/invoke"
)

// CallbackType is the phase of a transition a callback runs in.
type CallbackType string

const (
	CallbackBefore  CallbackType = "before"
	CallbackAfter   CallbackType = "after"
	CallbackAround  CallbackType = "around"
	CallbackFailure CallbackType = "failure"
)

func (t CallbackType) valid() bool {
	switch t {
	case CallbackBefore, CallbackAfter, CallbackAround, CallbackFailure:
		return true
	}

	return false
}

// Outcome is the result of running a callback.
type Outcome int

const (
	// Skipped means the callback's branch did not match.
	Skipped Outcome = iota
	// Continued means every method ran.
	Continued
	// Halted means a method stopped the chain.
	Halted
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Continued:
		return "continued"
	case Halted:
		return "halted"
	}

	return fmt.Sprintf("outcome(%d)", int(o))
}

// OK reports whether the chain may go on.
func (o Outcome) OK() bool {
	return o != Halted
}

// HaltSignal is the type of Halt.
type HaltSignal struct{}

// Halt, returned by a callback method, stops the remaining methods and callbacks.
var Halt = HaltSignal{} //nolint:gochecknoglobals

func isHalt(v any) bool {
	_, ok := v.(HaltSignal)

	return ok
}

// CallbackOptions configures a Callback. The embedded BranchOptions decide
// which transitions it applies to; On matches the event name.
type CallbackOptions struct {
	BranchOptions

	// Methods run in order, after any passed to NewCallback directly.
	Methods []any
	// Do is one more method, run last.
	Do any
	// BindToObject overrides the process default captured at construction.
	BindToObject *bool
	// Terminator halts the chain when it returns true for a method's result.
	// It does not apply to around callbacks.
	Terminator func(result any) bool
}

// Callback runs methods around a transition when its branch matches.
//
// Methods receive the object (unless bound), then the transition. A method
// returning Halt, or a result the terminator accepts, halts the chain.
// Around methods must also accept a trailing func() bool; calling it runs
// the rest of the chain and reports whether it completed. An around method
// that never calls it halts the transition.
type Callback struct {
	typ          CallbackType
	branch       *Branch
	methods      []*invoke.Callable
	bindToObject bool
	terminator   func(result any) bool
}

// NewCallback creates a callback of typ that runs methods in order when opts match.
// Around callbacks need methods that accept a func() bool continuation.
func NewCallback(typ CallbackType, opts CallbackOptions, methods ...any) (*Callback, error) {
	if !typ.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCallbackType, typ)
	}

	all := append(append([]any{}, methods...), opts.Methods...)
	if opts.Do != nil {
		all = append(all, opts.Do)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCallbackMethods, typ)
	}

	callables := make([]*invoke.Callable, 0, len(all))

	for _, method := range all {
		callable, err := invoke.New(method)
		if err != nil {
			return nil, fmt.Errorf("%s callback: %w", typ, err)
		}

		if typ == CallbackAround && !callable.AcceptsProceed() {
			return nil, fmt.Errorf("%w: %s", ErrAroundWithoutProceed, callable.Name())
		}

		callables = append(callables, callable)
	}

	branch, err := NewBranch(opts.BranchOptions)
	if err != nil {
		return nil, err
	}

	bind := BindToObjectDefault()
	if opts.BindToObject != nil {
		bind = *opts.BindToObject
	}

	return &Callback{
		typ:          typ,
		branch:       branch,
		methods:      callables,
		bindToObject: bind,
		terminator:   opts.Terminator,
	}, nil
}

// Type returns when the callback runs.
func (c *Callback) Type() CallbackType {
	return c.typ
}

// Branch returns the filter deciding which transitions the callback applies to.
func (c *Callback) Branch() *Branch {
	return c.branch
}

// BindToObject reports whether funcs run without the object as their first argument.
func (c *Callback) BindToObject() bool {
	return c.bindToObject
}

// MethodNames lists the callback's methods in run order.
func (c *Callback) MethodNames() []string {
	names := make([]string, len(c.methods))
	for i, m := range c.methods {
		names[i] = m.Name()
	}

	return names
}

// KnownStates lists the states the callback's branch names.
func (c *Callback) KnownStates() []string {
	return c.branch.KnownStates()
}

// Call runs the callback for obj if its branch matches q. args are passed to
// every method after the object. block is the continuation around callbacks
// wrap; its result is what their proceed function reports.
func (c *Callback) Call(
	ctx context.Context,
	lookup Lookup,
	obj any,
	q Query,
	args []any,
	block func() bool,
) (Outcome, error) {
	ok, err := c.branch.Matches(ctx, lookup, obj, q)
	if err != nil {
		return Skipped, err
	}

	if !ok {
		return Skipped, nil
	}

	if c.typ == CallbackAround {
		outcome, _, err := c.around(ctx, obj, args, 0, block)

		return outcome, err
	}

	for _, method := range c.methods {
		result, err := method.Call(ctx, obj, c.bindToObject, args, nil)
		if err != nil {
			return Continued, fmt.Errorf("%s callback %s: %w", c.typ, method.Name(), err)
		}

		if isHalt(result) || (c.terminator != nil && c.terminator(result)) {
			return Halted, nil
		}
	}

	return Continued, nil
}

// around nests methods[index:] so each one's proceed runs the next, with
// block innermost. The bool reports whether the continuation completed.
func (c *Callback) around(
	ctx context.Context,
	obj any,
	args []any,
	index int,
	block func() bool,
) (Outcome, bool, error) {
	if index == len(c.methods) {
		if block == nil {
			return Continued, true, nil
		}

		return Continued, block(), nil
	}

	var (
		yielded  bool
		inner    = Continued
		innerOK  bool
		innerErr error
	)

	method := c.methods[index]

	result, err := method.Call(ctx, obj, c.bindToObject, args, func() bool {
		if !yielded {
			yielded = true
			inner, innerOK, innerErr = c.around(ctx, obj, args, index+1, block)
		}

		return innerErr == nil && inner != Halted && innerOK
	})

	switch {
	case err != nil:
		return Continued, false, fmt.Errorf("around callback %s: %w", method.Name(), err)
	case innerErr != nil:
		return Continued, false, innerErr
	case !yielded, inner == Halted, isHalt(result):
		return Halted, false, nil
	}

	return Continued, innerOK, nil
}
