package statemachine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/amp-labs/amp-fsm/statemachine/invoke"
	"github.com/amp-labs/amp-fsm/statemachine/matcher"
)

// StatePair is an implicit from/to requirement. A nil side matches every state.
type StatePair struct {
	From matcher.Matcher
	To   matcher.Matcher
}

// Pair is shorthand for a single from state going to a single to state.
func Pair(from, to string) StatePair {
	return StatePair{From: matcher.Whitelist(from), To: matcher.Whitelist(to)}
}

// Lookup resolves machines by name so state guards can inspect other machines.
type Lookup interface {
	Machine(name string) (*Machine, bool)
}

// BranchOptions configures a Branch. Whitelist matchers and their Except
// counterparts are mutually exclusive. If and Unless take anything accepted
// by invoke.New; each is called with the object and the event arguments.
// State guard maps go from machine name to state name.
type BranchOptions struct {
	From matcher.Matcher
	To   matcher.Matcher
	On   matcher.Matcher

	ExceptFrom []string
	ExceptTo   []string
	ExceptOn   []string

	Transitions []StatePair

	If     []any
	Unless []any

	IfState         map[string]string
	UnlessState     map[string]string
	IfAllStates     map[string]string
	UnlessAllStates map[string]string
	IfAnyState      map[string]string
	UnlessAnyState  map[string]string
}

// Match is the set of requirements that satisfied a query.
type Match struct {
	On   matcher.Matcher
	From matcher.Matcher
	To   matcher.Matcher
}

type guardKind int

const (
	guardIfState guardKind = iota
	guardUnlessState
	guardIfAllStates
	guardUnlessAllStates
	guardIfAnyState
	guardUnlessAnyState
)

type stateGuard struct {
	kind   guardKind
	states map[string]string
}

func (g stateGuard) allows(matched, total int) bool {
	switch g.kind {
	case guardIfState, guardIfAllStates:
		return matched == total
	case guardUnlessState, guardUnlessAnyState:
		return matched == 0
	case guardIfAnyState:
		return matched > 0
	case guardUnlessAllStates:
		return matched < total
	}

	return false
}

// Branch is one guarded path an event or callback can take.
type Branch struct {
	eventRequirement  matcher.Matcher
	stateRequirements []StatePair
	ifConditions      []*invoke.Callable
	unlessConditions  []*invoke.Callable
	stateGuards       []stateGuard
	knownStates       []string
}

// NewBranch compiles opts.
func NewBranch(opts BranchOptions) (*Branch, error) {
	on, err := requirement("on", opts.On, opts.ExceptOn)
	if err != nil {
		return nil, err
	}

	branch := &Branch{eventRequirement: on}

	if opts.From != nil || opts.ExceptFrom != nil || opts.To != nil || opts.ExceptTo != nil {
		from, err := requirement("from", opts.From, opts.ExceptFrom)
		if err != nil {
			return nil, err
		}

		to, err := requirement("to", opts.To, opts.ExceptTo)
		if err != nil {
			return nil, err
		}

		branch.stateRequirements = append(branch.stateRequirements, StatePair{From: from, To: to})
	}

	for _, pair := range opts.Transitions {
		branch.stateRequirements = append(branch.stateRequirements, StatePair{
			From: orAll(pair.From),
			To:   orAll(pair.To),
		})
	}

	if len(branch.stateRequirements) == 0 {
		branch.stateRequirements = []StatePair{{From: matcher.All, To: matcher.All}}
	}

	if branch.ifConditions, err = compileConditions("if", opts.If); err != nil {
		return nil, err
	}

	if branch.unlessConditions, err = compileConditions("unless", opts.Unless); err != nil {
		return nil, err
	}

	for kind, states := range []map[string]string{
		guardIfState:         opts.IfState,
		guardUnlessState:     opts.UnlessState,
		guardIfAllStates:     opts.IfAllStates,
		guardUnlessAllStates: opts.UnlessAllStates,
		guardIfAnyState:      opts.IfAnyState,
		guardUnlessAnyState:  opts.UnlessAnyState,
	} {
		if len(states) > 0 {
			branch.stateGuards = append(branch.stateGuards, stateGuard{kind: guardKind(kind), states: maps.Clone(states)})
		}
	}

	for _, req := range branch.stateRequirements {
		for _, name := range append(matcher.ValuesOf(req.From), matcher.ValuesOf(req.To)...) {
			if !slices.Contains(branch.knownStates, name) {
				branch.knownStates = append(branch.knownStates, name)
			}
		}
	}

	return branch, nil
}

func requirement(name string, whitelist matcher.Matcher, blacklist []string) (matcher.Matcher, error) {
	switch {
	case whitelist != nil && blacklist != nil:
		return nil, fmt.Errorf("%w: %s and except_%s", ErrConflictingOptions, name, name)
	case whitelist != nil:
		return whitelist, nil
	case blacklist != nil:
		return matcher.Blacklist(blacklist...), nil
	default:
		return matcher.All, nil
	}
}

func orAll(m matcher.Matcher) matcher.Matcher {
	if m == nil {
		return matcher.All
	}

	return m
}

func compileConditions(kind string, conditions []any) ([]*invoke.Callable, error) {
	compiled := make([]*invoke.Callable, 0, len(conditions))

	for _, condition := range conditions {
		callable, err := invoke.New(condition)
		if err != nil {
			return nil, fmt.Errorf("%s condition: %w", kind, err)
		}

		compiled = append(compiled, callable)
	}

	return compiled, nil
}

// EventRequirement returns the matcher applied to the event name.
func (b *Branch) EventRequirement() matcher.Matcher {
	return b.eventRequirement
}

// StateRequirements returns the from/to pairs in priority order.
func (b *Branch) StateRequirements() []StatePair {
	return slices.Clone(b.stateRequirements)
}

// KnownStates lists every state named explicitly by a requirement, in definition order.
func (b *Branch) KnownStates() []string {
	return slices.Clone(b.knownStates)
}

// Matches reports whether Match would succeed.
func (b *Branch) Matches(ctx context.Context, lookup Lookup, obj any, q Query, args ...any) (bool, error) {
	match, err := b.Match(ctx, lookup, obj, q, args...)

	return match != nil, err
}

// Match checks q against the event requirement and then each state pair in
// order, and finally the conditions. It returns nil when nothing matched.
func (b *Branch) Match(ctx context.Context, lookup Lookup, obj any, q Query, args ...any) (*Match, error) {
	match := b.matchQuery(q)
	if match == nil {
		return nil, nil //nolint:nilnil
	}

	if !q.Guarded() {
		return match, nil
	}

	ok, err := b.matchesConditions(ctx, obj, args)
	if err != nil || !ok {
		return nil, err
	}

	ok, err = b.matchesStateGuards(lookup, obj)
	if err != nil || !ok {
		return nil, err
	}

	return match, nil
}

func (b *Branch) matchQuery(q Query) *Match {
	mctx := q.MatcherContext()

	if on, ok := q.On(); ok && !b.eventRequirement.Matches(on, mctx) {
		return nil
	}

	from, hasFrom := q.From()
	to, hasTo := q.To()

	for _, req := range b.stateRequirements {
		if hasFrom && !req.From.Matches(from, mctx) {
			continue
		}

		if hasTo && !req.To.Matches(to, mctx) {
			continue
		}

		return &Match{On: b.eventRequirement, From: req.From, To: req.To}
	}

	return nil
}

func (b *Branch) matchesConditions(ctx context.Context, obj any, args []any) (bool, error) {
	for _, condition := range b.ifConditions {
		result, err := condition.Call(ctx, obj, false, args, nil)
		if err != nil {
			return false, fmt.Errorf("if condition %s: %w", condition.Name(), err)
		}

		if !invoke.Truthy(result) {
			return false, nil
		}
	}

	for _, condition := range b.unlessConditions {
		result, err := condition.Call(ctx, obj, false, args, nil)
		if err != nil {
			return false, fmt.Errorf("unless condition %s: %w", condition.Name(), err)
		}

		if invoke.Truthy(result) {
			return false, nil
		}
	}

	return true, nil
}

func (b *Branch) matchesStateGuards(lookup Lookup, obj any) (bool, error) {
	for _, guard := range b.stateGuards {
		matched := 0

		for _, machineName := range slices.Sorted(maps.Keys(guard.states)) {
			ok, err := inState(lookup, obj, machineName, guard.states[machineName])
			if err != nil {
				return false, err
			}

			if ok {
				matched++
			}
		}

		if !guard.allows(matched, len(guard.states)) {
			return false, nil
		}
	}

	return true, nil
}

func inState(lookup Lookup, obj any, machineName, stateName string) (bool, error) {
	if lookup == nil {
		return false, fmt.Errorf("%w: %s", ErrMachineNotFound, machineName)
	}

	machine, ok := lookup.Machine(machineName)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMachineNotFound, machineName)
	}

	state, ok := machine.State(stateName)
	if !ok {
		return false, fmt.Errorf("%w: %s in %s", ErrStateNotFound, stateName, machineName)
	}

	value, err := machine.Read(obj)
	if err != nil {
		return false, err
	}

	return state.Matches(value), nil
}
