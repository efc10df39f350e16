package statemachine

import (
	"context"
	"fmt"
	"iter"
)

// ActionResult is what the block wrapped by a transition's callbacks produced.
type ActionResult struct {
	Result  any
	Success bool
}

// Block is the work a transition's callbacks surround.
type Block func(ctx context.Context) (ActionResult, error)

// RunOptions controls which phases RunCallbacks executes.
type RunOptions struct {
	SkipBefore bool
	// SkipAfter also lets around callbacks pause after yielding, so a later
	// RunCallbacks call can finish them.
	SkipAfter bool
}

// RunAction, passed as the last argument to Perform, overrides whether the
// machine's action runs. A plain bool works too.
type RunAction bool

// suspension is a before chain parked inside an around callback.
type suspension struct {
	next   func() (struct{}, bool)
	stop   func()
	halted bool
	err    error
}

// Transition is one pending change of a machine's attribute on an object.
type Transition struct {
	object   any
	machine  *Machine
	event    string
	from     any
	fromName string
	to       any
	toName   string
	args     []any

	result    any
	success   bool
	transient bool

	beforeRun bool
	afterRun  bool
	persisted bool

	suspended   *suspension
	yield       func(struct{}) bool
	resuming    bool
	resumeBlock Block
	resumeCtx   context.Context //nolint:containedctx
}

// NewTransition builds a transition of machine on obj. When readState is set
// the from value is read from the object rather than taken from the from state.
func NewTransition(obj any, machine *Machine, event, fromName, toName string, readState bool) (*Transition, error) {
	if machine == nil {
		return nil, ErrMachineRequired
	}

	if event != "" {
		if _, ok := machine.Event(event); !ok {
			return nil, fmt.Errorf("%w: %s in %s", ErrEventNotFound, event, machine.name)
		}
	}

	fromState, ok := machine.State(fromName)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrStateNotFound, fromName, machine.name)
	}

	toState, ok := machine.State(toName)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrStateNotFound, toName, machine.name)
	}

	from := fromState.Value()

	if readState {
		value, err := machine.Read(obj)
		if err != nil {
			return nil, err
		}

		from = value
	}

	return &Transition{
		object:   obj,
		machine:  machine,
		event:    event,
		from:     from,
		fromName: fromName,
		to:       toState.Value(),
		toName:   toName,
	}, nil
}

// Object returns the host object.
func (t *Transition) Object() any {
	return t.object
}

// Machine returns the machine the transition belongs to.
func (t *Transition) Machine() *Machine {
	return t.machine
}

// Attribute returns the attribute the transition writes.
func (t *Transition) Attribute() string {
	return t.machine.attribute
}

// Event returns the event name.
func (t *Transition) Event() string {
	return t.event
}

// From returns the state value before the transition.
func (t *Transition) From() any {
	return t.from
}

// FromName returns the from state name.
func (t *Transition) FromName() string {
	return t.fromName
}

// To returns the state value after the transition.
func (t *Transition) To() any {
	return t.to
}

// ToName returns the to state name.
func (t *Transition) ToName() string {
	return t.toName
}

// Args returns the event arguments passed to callbacks and the action.
func (t *Transition) Args() []any {
	return t.args
}

// Result returns what the action produced.
func (t *Transition) Result() any {
	return t.result
}

// Success reports whether the action succeeded.
func (t *Transition) Success() bool {
	return t.success
}

// Persisted reports whether the to value has been written.
func (t *Transition) Persisted() bool {
	return t.persisted
}

// Transient reports the flag set with SetTransient.
func (t *Transition) Transient() bool {
	return t.transient
}

// SetTransient sets a caller-owned flag carried with the transition.
func (t *Transition) SetTransient(v bool) {
	t.transient = v
}

// SetArgs replaces the event arguments.
func (t *Transition) SetArgs(args []any) {
	t.args = args
}

// Loopback reports whether the transition stays in the same state.
func (t *Transition) Loopback() bool {
	return t.fromName == t.toName
}

// Paused reports whether an around callback is suspended after yielding.
func (t *Transition) Paused() bool {
	return t.suspended != nil
}

// Resumable reports whether a later RunCallbacks or Resume can finish the
// paused chain. A suspension is discarded as soon as it can no longer run.
func (t *Transition) Resumable() bool {
	return t.suspended != nil && t.yield != nil
}

// QualifiedEvent returns the event prefixed with the machine name, for
// machines that share event names.
func (t *Transition) QualifiedEvent() string {
	return qualify(t.machine.name, t.event)
}

// QualifiedFromName returns the from state prefixed with the machine name.
func (t *Transition) QualifiedFromName() string {
	return qualify(t.machine.name, t.fromName)
}

// QualifiedToName returns the to state prefixed with the machine name.
func (t *Transition) QualifiedToName() string {
	return qualify(t.machine.name, t.toName)
}

func qualify(machine, name string) string {
	if name == "" {
		return ""
	}

	return machine + "_" + name
}

// Query describes the transition for matching callback branches.
func (t *Transition) Query() Query {
	return NewQuery().WithOn(t.event).WithFrom(t.fromName).WithTo(t.toName)
}

// Attributes summarizes the transition.
func (t *Transition) Attributes() map[string]any {
	return map[string]any{
		"object":    t.object,
		"attribute": t.machine.attribute,
		"event":     t.event,
		"from":      t.from,
		"to":        t.to,
	}
}

func (t *Transition) String() string {
	return fmt.Sprintf("%s.%s: %s -> %s", t.machine.name, t.event, t.fromName, t.toName)
}

// Perform runs the transition on its own. A trailing bool or RunAction in
// args decides whether the machine action runs; the rest become the
// transition's arguments.
func (t *Transition) Perform(ctx context.Context, args ...any) (bool, error) {
	args, runAction := splitRunAction(args)
	t.args = args

	collection, err := NewCollection([]*Transition{t}, CollectionOptions{SkipActions: !runAction})
	if err != nil {
		return false, err
	}

	return collection.Perform(ctx, nil)
}

func splitRunAction(args []any) ([]any, bool) {
	if len(args) == 0 {
		return args, true
	}

	switch v := args[len(args)-1].(type) {
	case bool:
		return args[:len(args)-1], v
	case RunAction:
		return args[:len(args)-1], bool(v)
	}

	return args, true
}

// RunCallbacks runs the before callbacks, block and the after callbacks,
// honouring halts and pauses. It returns whether the before phase completed.
// When a paused transition is run again, its suspended around callbacks are
// resumed (or, with SkipAfter, left alone).
func (t *Transition) RunCallbacks(ctx context.Context, opts RunOptions, block Block) (bool, error) {
	clean := false

	defer func() {
		if !clean {
			t.discardSuspension()
		}
	}()

	var (
		halted bool
		err    error
	)

	if t.suspended != nil {
		if opts.SkipAfter {
			clean = true

			return true, nil
		}

		halted, err = t.resume(ctx, block)
	} else {
		t.success = false

		if !opts.SkipBefore {
			halted, err = t.pausable(ctx, !opts.SkipAfter, block)
		}
	}

	if err != nil {
		return false, err
	}

	if (!(t.beforeRun && halted) || !t.success) && (!opts.SkipAfter || !t.success) {
		if err := t.after(ctx); err != nil {
			return false, err
		}
	}

	clean = true

	return t.beforeRun, nil
}

// Resume finishes a paused transition's around callbacks. It reports false
// if they halted and true when there was nothing to resume.
func (t *Transition) Resume(ctx context.Context, block Block) (bool, error) {
	if t.suspended == nil {
		return true, nil
	}

	halted, err := t.resume(ctx, block)
	if err != nil {
		t.discardSuspension()

		return false, err
	}

	return !halted, nil
}

// Persist writes the to value. Repeated calls write once until Reset.
func (t *Transition) Persist() error {
	if t.persisted {
		return nil
	}

	if err := t.machine.Write(t.object, t.to); err != nil {
		return err
	}

	t.persisted = true

	return nil
}

// Rollback resets the transition and writes the from value back.
func (t *Transition) Rollback() error {
	t.Reset()

	return t.machine.Write(t.object, t.from)
}

// Reset clears progress so the transition can run again. A paused chain is abandoned.
func (t *Transition) Reset() {
	t.beforeRun = false
	t.afterRun = false
	t.persisted = false
	t.discardSuspension()
}

func (t *Transition) discardSuspension() {
	if s := t.suspended; s != nil {
		t.suspended = nil
		s.stop()
	}

	t.yield = nil
	t.resuming = false
	t.resumeBlock = nil
	t.resumeCtx = nil
}

// pausable runs the before chain. Unless complete, it runs inside a
// coroutine that an around callback can park in after yielding.
func (t *Transition) pausable(ctx context.Context, complete bool, block Block) (bool, error) {
	if complete {
		return t.before(ctx, true, 0, block)
	}

	s := &suspension{}

	s.next, s.stop = iter.Pull(func(yield func(struct{}) bool) {
		defer func() {
			if r := recover(); r != nil && r != abandoned {
				panic(r)
			}
		}()

		t.yield = yield
		s.halted, s.err = t.before(ctx, false, 0, block)
	})

	if _, paused := s.next(); paused {
		t.suspended = s
		t.machine.log().TransitionPaused(ctx, t)
		pausesTotal.WithLabelValues(t.machine.name).Inc()

		return false, nil
	}

	s.stop()
	t.yield = nil

	return s.halted, s.err
}

func (t *Transition) resume(ctx context.Context, block Block) (bool, error) {
	s := t.suspended

	t.resuming = true
	t.resumeBlock = block
	t.resumeCtx = ctx

	// pause is a no-op while resuming, so the chain always runs to completion here.
	s.next()

	t.suspended = nil
	s.stop()
	t.yield = nil
	t.resuming = false
	t.resumeBlock = nil
	t.resumeCtx = nil

	return s.halted, s.err
}

// abandoned unwinds a parked chain whose transition was reset.
var abandoned = &struct{ name string }{"paused transition abandoned"} //nolint:gochecknoglobals

// pause parks the before chain until resume. On resume the new block, if
// any, replaces the result of the action.
func (t *Transition) pause() error {
	if t.resuming || t.yield == nil {
		return nil
	}

	if !t.yield(struct{}{}) {
		// Unwinds the parked chain without running the code after proceed.
		panic(abandoned)
	}

	if t.resumeBlock == nil {
		return nil
	}

	res, err := t.resumeBlock(t.resumeCtx)
	if err != nil {
		return err
	}

	t.result, t.success = res.Result, res.Success

	return nil
}

// before runs before and around callbacks from index on, then block. Around
// callbacks wrap everything after them. It reports whether the chain halted.
func (t *Transition) before(ctx context.Context, complete bool, index int, block Block) (bool, error) {
	if !t.beforeRun {
		callbacks := t.machine.beforeChain()
		lookup := t.machine.lookup()
		q := t.Query()
		args := []any{t}

		for index < len(callbacks) {
			callback := callbacks[index]
			index++

			if callback.Type() != CallbackAround {
				outcome, err := callback.Call(ctx, lookup, t.object, q, args, nil)
				if err != nil {
					return false, err
				}

				if outcome == Halted {
					t.logHalt(ctx, callback)

					return true, nil
				}

				continue
			}

			var (
				innerHalted bool
				innerErr    error
			)

			rest := index

			outcome, err := callback.Call(ctx, lookup, t.object, q, args, func() bool {
				innerHalted, innerErr = t.before(ctx, complete, rest, block)
				if innerErr != nil || innerHalted {
					return false
				}

				if t.success && !complete {
					if innerErr = t.pause(); innerErr != nil {
						return false
					}
				}

				return t.success
			})

			switch {
			case err != nil:
				return false, err
			case innerErr != nil:
				return false, innerErr
			case innerHalted:
				return true, nil
			case outcome == Halted:
				t.logHalt(ctx, callback)

				return true, nil
			case outcome == Skipped:
				continue
			}

			// The around callback ran everything after it.
			return false, nil
		}

		t.beforeRun = true
	}

	res := ActionResult{Success: true}

	if block != nil {
		var err error

		res, err = block(ctx)
		if err != nil {
			return false, err
		}
	}

	t.result, t.success = res.Result, res.Success

	return false, nil
}

// after runs after callbacks when the action succeeded and failure callbacks
// otherwise, once per cycle.
func (t *Transition) after(ctx context.Context) error {
	if t.afterRun {
		return nil
	}

	typ := CallbackAfter
	if !t.success {
		typ = CallbackFailure
	}

	lookup := t.machine.lookup()
	q := t.Query()
	args := []any{t}

	for _, callback := range t.machine.Callbacks(typ) {
		outcome, err := callback.Call(ctx, lookup, t.object, q, args, nil)
		if err != nil {
			return err
		}

		if outcome == Halted {
			t.logHalt(ctx, callback)

			break
		}
	}

	t.afterRun = true

	return nil
}

func (t *Transition) logHalt(ctx context.Context, callback *Callback) {
	t.machine.log().CallbackHalted(ctx, t, callback)
	callbackHaltsTotal.WithLabelValues(t.machine.name, string(callback.Type())).Inc()
	recordHaltEvent(ctx, t, callback)
}
