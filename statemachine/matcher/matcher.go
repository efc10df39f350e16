// Package matcher provides the predicate strategies used to test a single state
// or event name against a configured requirement.
//
// There are four strategies:
//   - All matches every value (including the empty name).
//   - Whitelist matches values contained in its set.
//   - Blacklist matches values not contained in its set.
//   - Loopback matches a value equal to the "from" entry of the match context.
package matcher

import (
	"fmt"
	"slices"
	"strings"
)

// KeyFrom is the Context key consulted by the Loopback matcher.
const KeyFrom = "from"

// Context carries the query values a matcher may consult while matching.
// Keys are query keys ("from", "to", "on").
type Context map[string]string

// Matcher tests a single value against a requirement.
type Matcher interface {
	// Matches reports whether the value satisfies the requirement.
	Matches(value string, ctx Context) bool

	// Filter returns the subset of values that this matcher would accept
	// without consulting a context.
	Filter(values []string) []string

	// Values returns the enumerable values of the matcher. All and Loopback
	// have none.
	Values() []string

	// Description renders the matcher for logs and error messages.
	Description() string
}

// AllMatcher matches any value.
type AllMatcher struct{}

// All is the singleton AllMatcher.
var All = &AllMatcher{} //nolint:gochecknoglobals

func (m *AllMatcher) Matches(string, Context) bool { return true }

func (m *AllMatcher) Filter(values []string) []string { return values }

func (m *AllMatcher) Values() []string { return nil }

func (m *AllMatcher) Description() string { return "all" }

// Except builds the "all except ..." requirement, which is a blacklist over
// the given values.
func (m *AllMatcher) Except(values ...string) *BlacklistMatcher {
	return Blacklist(values...)
}

// WhitelistMatcher matches values in a fixed set.
type WhitelistMatcher struct {
	values []string
}

// Whitelist creates a matcher accepting exactly the given values.
func Whitelist(values ...string) *WhitelistMatcher {
	return &WhitelistMatcher{values: dedup(values)}
}

func (m *WhitelistMatcher) Matches(value string, _ Context) bool {
	return slices.Contains(m.values, value)
}

func (m *WhitelistMatcher) Filter(values []string) []string {
	out := make([]string, 0, len(values))

	for _, v := range values {
		if slices.Contains(m.values, v) {
			out = append(out, v)
		}
	}

	return out
}

func (m *WhitelistMatcher) Values() []string { return slices.Clone(m.values) }

func (m *WhitelistMatcher) Description() string {
	if len(m.values) == 1 {
		return fmt.Sprintf("%q", m.values[0])
	}

	return quoteAll(m.values)
}

// BlacklistMatcher matches values outside a fixed set.
type BlacklistMatcher struct {
	values []string
}

// Blacklist creates a matcher rejecting the given values.
func Blacklist(values ...string) *BlacklistMatcher {
	return &BlacklistMatcher{values: dedup(values)}
}

func (m *BlacklistMatcher) Matches(value string, _ Context) bool {
	return !slices.Contains(m.values, value)
}

func (m *BlacklistMatcher) Filter(values []string) []string {
	out := make([]string, 0, len(values))

	for _, v := range values {
		if !slices.Contains(m.values, v) {
			out = append(out, v)
		}
	}

	return out
}

func (m *BlacklistMatcher) Values() []string { return slices.Clone(m.values) }

func (m *BlacklistMatcher) Description() string {
	return "all - " + quoteAll(m.values)
}

// LoopbackMatcher matches the value the transition started from.
type LoopbackMatcher struct{}

// Loopback is the singleton LoopbackMatcher.
var Loopback = &LoopbackMatcher{} //nolint:gochecknoglobals

func (m *LoopbackMatcher) Matches(value string, ctx Context) bool {
	if ctx == nil {
		return false
	}

	from, ok := ctx[KeyFrom]

	return ok && from == value
}

// Filter returns nothing: a loopback has no values of its own.
func (m *LoopbackMatcher) Filter([]string) []string { return nil }

func (m *LoopbackMatcher) Values() []string { return nil }

func (m *LoopbackMatcher) Description() string { return "same" }

// ValuesOf returns the enumerable values of a matcher, tolerating nil.
func ValuesOf(m Matcher) []string {
	if m == nil {
		return nil
	}

	return m.Values()
}

func dedup(values []string) []string {
	out := make([]string, 0, len(values))

	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}

	return out
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}

	return "[" + strings.Join(quoted, " ") + "]"
}
