package statemachine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	errs "github.com/amp-labs/amp-fsm/errors"
	"github.com/amp-labs/amp-fsm/statemachine/invoke"
)

// CollectionOptions controls how a Collection performs.
type CollectionOptions struct {
	// SkipActions persists states without running machine actions.
	SkipActions bool
	// SkipAfter defers after callbacks and lets around callbacks pause.
	SkipAfter bool
	// UseTransactions overrides the machines' setting. When nil, every
	// machine involved must agree.
	UseTransactions *bool
}

// Collection performs transitions of different attributes on one object
// atomically: either every transition persists or none does.
type Collection struct {
	transitions     []*Transition
	valid           bool
	skipActions     bool
	skipAfter       bool
	useTransactions bool
	results         map[string]any
	success         bool
}

// NewCollection validates transitions. A nil entry makes the collection
// invalid; performing it then reports false without side effects.
func NewCollection(transitions []*Transition, opts CollectionOptions) (*Collection, error) {
	collection := &Collection{
		valid:       true,
		skipActions: opts.SkipActions,
		skipAfter:   opts.SkipAfter,
		results:     make(map[string]any),
	}

	attributes := make([]string, 0, len(transitions))

	var agreed *bool

	for _, transition := range transitions {
		if transition == nil {
			collection.valid = false

			continue
		}

		if slices.Contains(attributes, transition.Attribute()) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAttribute, transition.Attribute())
		}

		attributes = append(attributes, transition.Attribute())

		use := transition.machine.useTransactions
		if agreed != nil && *agreed != use && opts.UseTransactions == nil {
			return nil, fmt.Errorf("%w: %s", ErrTransactionMismatch, transition.machine.name)
		}

		agreed = &use

		collection.transitions = append(collection.transitions, transition)
	}

	switch {
	case opts.UseTransactions != nil:
		collection.useTransactions = *opts.UseTransactions
	case agreed != nil:
		collection.useTransactions = *agreed
	default:
		collection.useTransactions = UseTransactionsDefault()
	}

	return collection, nil
}

// Transitions returns the transitions in the order they run.
func (c *Collection) Transitions() []*Transition {
	return slices.Clone(c.transitions)
}

// Valid reports whether every transition could be found.
func (c *Collection) Valid() bool {
	return c.valid
}

// UseTransactions reports whether Perform runs inside a transaction.
func (c *Collection) UseTransactions() bool {
	return c.useTransactions
}

// Results maps action names to what the last Perform got back from them.
func (c *Collection) Results() map[string]any {
	return c.results
}

// Success reports whether the last Perform succeeded.
func (c *Collection) Success() bool {
	return c.success
}

// Perform runs every transition's callbacks nested inside each other, then
// persists all of them and runs the action. action replaces the machines'
// actions when non-nil. Anything other than success rolls every transition back.
func (c *Collection) Perform(ctx context.Context, action func(ctx context.Context) (any, error)) (ok bool, err error) {
	c.results = make(map[string]any)
	c.success = false

	if !c.valid {
		return false, nil
	}

	runID := uuid.NewString()
	ctx = WithRunID(ctx, runID)
	ctx, span := startPerformSpan(ctx, runID, c.transitions)
	start := time.Now()

	for _, transition := range c.transitions {
		transition.machine.log().TransitionStarted(ctx, transition)
	}

	defer func() {
		duration := time.Since(start)
		outcome := outcomeOf(ok, err)

		for _, transition := range c.transitions {
			transitionsTotal.WithLabelValues(
				transition.machine.name, sanitizeEvent(transition.event), outcome,
			).Inc()
		}

		performDuration.WithLabelValues(outcome).Observe(duration.Seconds())
		finishSpan(span, ok, err)
		c.logger().CollectionFinished(ctx, runID, c.transitions, ok, duration, err)
	}()

	err = c.withinTransaction(ctx, func(ctx context.Context) (bool, error) {
		if err := c.runCallbacks(ctx, 0, action); err != nil {
			collected := errs.Collection{}
			collected.Add(err)
			collected.Add(c.rollback(ctx))

			return false, collected.GetError()
		}

		if !c.success {
			if err := c.rollback(ctx); err != nil {
				return false, err
			}
		}

		return c.success, nil
	})
	if err != nil {
		return false, err
	}

	return c.success, nil
}

func (c *Collection) withinTransaction(ctx context.Context, fn func(ctx context.Context) (bool, error)) error {
	if !c.useTransactions || len(c.transitions) == 0 {
		_, err := fn(ctx)

		return err
	}

	first := c.transitions[0]

	return first.machine.WithinTransaction(ctx, first.object, fn)
}

// runCallbacks nests transition index's callbacks around the rest. The
// innermost level persists and runs the action. A halt at any level makes
// the enclosing transitions see a failed action.
func (c *Collection) runCallbacks(ctx context.Context, index int, action func(ctx context.Context) (any, error)) error {
	if index >= len(c.transitions) {
		if err := c.persist(ctx); err != nil {
			return err
		}

		return c.runActions(ctx, action)
	}

	transition := c.transitions[index]

	_, err := transition.RunCallbacks(ctx, RunOptions{SkipAfter: c.skipAfter}, func(ctx context.Context) (ActionResult, error) {
		if err := c.runCallbacks(ctx, index+1, action); err != nil {
			return ActionResult{}, err
		}

		return ActionResult{Result: c.results[transition.machine.ActionName()], Success: c.success}, nil
	})
	if err != nil {
		return WrapTransitionError(transition, err)
	}

	return nil
}

func (c *Collection) persist(ctx context.Context) error {
	for _, transition := range c.transitions {
		if err := transition.Persist(); err != nil {
			return WrapTransitionError(transition, err)
		}

		transition.machine.log().TransitionPersisted(ctx, transition)
	}

	return nil
}

func (c *Collection) runActions(ctx context.Context, action func(ctx context.Context) (any, error)) error {
	if action != nil {
		result, err := action(ctx)
		if err != nil {
			return err
		}

		for _, transition := range c.transitions {
			c.results[transition.machine.ActionName()] = result
		}

		c.success = invoke.Truthy(result)

		return nil
	}

	if !c.skipActions {
		for _, transition := range c.transitions {
			machine := transition.machine
			if machine.action == nil {
				continue
			}

			if _, done := c.results[machine.ActionName()]; done {
				continue
			}

			result, err := machine.runAction(ctx, transition.object)
			if err != nil {
				return WrapTransitionError(transition, err)
			}

			c.results[machine.ActionName()] = result
		}
	}

	c.success = true

	for _, result := range c.results {
		if !invoke.Truthy(result) {
			c.success = false
		}
	}

	return nil
}

// rollback restores every transition's from value.
func (c *Collection) rollback(ctx context.Context) error {
	collected := errs.Collection{}

	for _, transition := range c.transitions {
		if err := transition.Rollback(); err != nil {
			collected.Addf(err, "rollback %s", transition)

			continue
		}

		transition.machine.log().TransitionRolledBack(ctx, transition)
		rollbacksTotal.WithLabelValues(transition.machine.name).Inc()
		recordRollbackEvent(ctx, transition)
	}

	return collected.GetError()
}

func (c *Collection) logger() Logger {
	if len(c.transitions) == 0 {
		return nopLogger{}
	}

	return c.transitions[0].machine.log()
}
