package statemachine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/amp-labs/amp-fsm/statemachine/matcher"
)

// Query keys accepted by QueryFromMap.
const (
	QueryKeyOn    = "on"
	QueryKeyFrom  = "from"
	QueryKeyTo    = "to"
	QueryKeyGuard = "guard"
)

var queryKeys = []string{QueryKeyOn, QueryKeyFrom, QueryKeyTo, QueryKeyGuard}

// Query describes the event and states a branch is matched against.
// Every field is optional; an absent field is not constrained. Guards run
// unless WithoutGuards is used.
type Query struct {
	on, from, to          string
	hasOn, hasFrom, hasTo bool
	skipGuards            bool
}

// NewQuery returns an empty query that evaluates guards.
func NewQuery() Query {
	return Query{}
}

// QueryFromMap builds a query from loosely typed keys. Unknown keys are rejected.
func QueryFromMap(values map[string]any) (Query, error) {
	query := NewQuery()

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	for _, key := range keys {
		if !slices.Contains(queryKeys, key) {
			return Query{}, fmt.Errorf("%w: %q (valid keys: %s)", ErrUnknownKey, key, strings.Join(queryKeys, ", "))
		}

		value := values[key]

		if key == QueryKeyGuard {
			guard, ok := value.(bool)
			if !ok {
				return Query{}, fmt.Errorf("%w: %s must be a bool, got %T", ErrInvalidQuery, key, value)
			}

			query.skipGuards = !guard

			continue
		}

		name, ok := value.(string)
		if !ok {
			return Query{}, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidQuery, key, value)
		}

		switch key {
		case QueryKeyOn:
			query = query.WithOn(name)
		case QueryKeyFrom:
			query = query.WithFrom(name)
		case QueryKeyTo:
			query = query.WithTo(name)
		}
	}

	return query, nil
}

// WithOn restricts the query to event.
func (q Query) WithOn(event string) Query {
	q.on, q.hasOn = event, true

	return q
}

// WithFrom restricts the query to transitions leaving state.
func (q Query) WithFrom(state string) Query {
	q.from, q.hasFrom = state, true

	return q
}

// WithTo restricts the query to transitions entering state.
func (q Query) WithTo(state string) Query {
	q.to, q.hasTo = state, true

	return q
}

// WithoutGuards disables if/unless conditions and state guards.
func (q Query) WithoutGuards() Query {
	q.skipGuards = true

	return q
}

// On returns the event filter, if any.
func (q Query) On() (string, bool) {
	return q.on, q.hasOn
}

// From returns the from state filter, if any.
func (q Query) From() (string, bool) {
	return q.from, q.hasFrom
}

// To returns the to state filter, if any.
func (q Query) To() (string, bool) {
	return q.to, q.hasTo
}

// Guarded reports whether conditions are evaluated for this query.
func (q Query) Guarded() bool {
	return !q.skipGuards
}

// MatcherContext exposes the query to matchers. Loopback requirements read the from state here.
func (q Query) MatcherContext() matcher.Context {
	ctx := matcher.Context{}

	if q.hasOn {
		ctx[QueryKeyOn] = q.on
	}

	if q.hasFrom {
		ctx[matcher.KeyFrom] = q.from
	}

	if q.hasTo {
		ctx[QueryKeyTo] = q.to
	}

	return ctx
}

// String formats the query for logs.
func (q Query) String() string {
	parts := make([]string, 0, len(queryKeys))

	if q.hasOn {
		parts = append(parts, "on="+q.on)
	}

	if q.hasFrom {
		parts = append(parts, "from="+q.from)
	}

	if q.hasTo {
		parts = append(parts, "to="+q.to)
	}

	if q.skipGuards {
		parts = append(parts, "guard=false")
	}

	return "{" + strings.Join(parts, " ") + "}"
}
