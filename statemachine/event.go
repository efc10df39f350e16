package statemachine

import (
	"context"
	"fmt"
	"slices"

	"github.com/amp-labs/amp-fsm/statemachine/matcher"
)

// Event is a named trigger whose branches decide the target state.
type Event struct {
	machine  *Machine
	name     string
	branches []*Branch
}

// Name returns the event name.
func (e *Event) Name() string {
	return e.name
}

// HumanName returns the name with underscores replaced by spaces.
func (e *Event) HumanName() string {
	return HumanName(e.name)
}

// Machine returns the machine that owns the event.
func (e *Event) Machine() *Machine {
	return e.machine
}

// Branches returns the event branches in priority order.
func (e *Event) Branches() []*Branch {
	return slices.Clone(e.branches)
}

// Transition adds a branch. Branches are tried in the order they were added.
func (e *Event) Transition(opts BranchOptions) (*Branch, error) {
	if opts.On != nil || opts.ExceptOn != nil {
		return nil, fmt.Errorf("%w: on is implied by the event", ErrUnknownKey)
	}

	branch, err := NewBranch(opts)
	if err != nil {
		return nil, err
	}

	for _, name := range branch.KnownStates() {
		if _, ok := e.machine.State(name); !ok {
			return nil, fmt.Errorf("%w: %s in %s", ErrStateNotFound, name, e.machine.name)
		}
	}

	e.branches = append(e.branches, branch)

	return branch, nil
}

// KnownStates lists the states named by the event's branches.
func (e *Event) KnownStates() []string {
	var states []string

	for _, branch := range e.branches {
		for _, name := range branch.KnownStates() {
			if !slices.Contains(states, name) {
				states = append(states, name)
			}
		}
	}

	return states
}

// TransitionFor returns the transition obj would take, or nil when no branch
// matches. q may constrain from, to and guards; from defaults to obj's
// current state. args are passed to if/unless conditions.
func (e *Event) TransitionFor(ctx context.Context, obj any, q Query, args ...any) (*Transition, error) {
	if _, ok := q.On(); ok {
		return nil, fmt.Errorf("%w: on is implied by the event", ErrUnknownKey)
	}

	from, customFrom := q.From()
	if !customFrom {
		state, err := e.machine.StateFor(obj)
		if err != nil {
			return nil, err
		}

		from = state.name
		q = q.WithFrom(from)
	}

	lookup := e.machine.lookup()

	for _, branch := range e.branches {
		match, err := branch.Match(ctx, lookup, obj, q, args...)
		if err != nil {
			return nil, err
		}

		if match == nil {
			continue
		}

		to := from

		if _, loopback := match.To.(*matcher.LoopbackMatcher); !loopback {
			candidates := []string{from}

			if target, ok := q.To(); ok {
				candidates = []string{target}
			} else {
				for _, name := range e.machine.StateNames() {
					if name != from {
						candidates = append(candidates, name)
					}
				}
			}

			targets := match.To.Filter(candidates)
			if len(targets) == 0 {
				return nil, fmt.Errorf("%w: no target for %s from %s", ErrStateNotFound, e.name, from)
			}

			to = targets[0]
		}

		return NewTransition(obj, e.machine, e.name, from, to, !customFrom)
	}

	return nil, nil //nolint:nilnil
}

// CanFire reports whether the event has a transition for obj.
func (e *Event) CanFire(ctx context.Context, obj any, args ...any) (bool, error) {
	transition, err := e.TransitionFor(ctx, obj, NewQuery(), args...)

	return transition != nil, err
}

// Fire performs the event's transition on obj. When none is available the
// object is invalidated, failure callbacks run and Fire reports false.
// A trailing bool or RunAction in args decides whether the machine action runs.
func (e *Event) Fire(ctx context.Context, obj any, args ...any) (bool, error) {
	e.machine.ResetErrors(obj)

	eventArgs, _ := splitRunAction(args)

	transition, err := e.TransitionFor(ctx, obj, NewQuery(), eventArgs...)
	if err != nil {
		return false, err
	}

	if transition == nil {
		return false, e.onFailure(ctx, obj, eventArgs)
	}

	return transition.Perform(ctx, args...)
}

// onFailure marks obj invalid for this event and runs failure callbacks on a
// loopback transition from the current state.
func (e *Event) onFailure(ctx context.Context, obj any, args []any) error {
	state, err := e.machine.StateFor(obj)
	if err != nil {
		return err
	}

	e.machine.Invalidate(obj, MessageInvalidTransition, map[string]string{
		"event": e.HumanName(),
		"state": state.HumanName(),
	})

	transition, err := NewTransition(obj, e.machine, e.name, state.name, state.name, true)
	if err != nil {
		return err
	}

	transition.SetArgs(args)
	transitionsTotal.WithLabelValues(e.machine.name, sanitizeEvent(e.name), outcomeInvalid).Inc()

	_, err = transition.RunCallbacks(ctx, RunOptions{SkipBefore: true}, nil)

	return err
}
