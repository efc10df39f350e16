package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		matcher  Matcher
		value    string
		ctx      Context
		expected bool
	}{
		{"all matches anything", All, "parked", nil, true},
		{"all matches empty name", All, "", nil, true},
		{"whitelist member", Whitelist("parked", "idling"), "idling", nil, true},
		{"whitelist non-member", Whitelist("parked", "idling"), "first_gear", nil, false},
		{"whitelist single scalar", Whitelist("parked"), "parked", nil, true},
		{"empty whitelist", Whitelist(), "parked", nil, false},
		{"blacklist member", Blacklist("parked"), "parked", nil, false},
		{"blacklist non-member", Blacklist("parked"), "idling", nil, true},
		{"loopback same", Loopback, "parked", Context{KeyFrom: "parked"}, true},
		{"loopback different", Loopback, "idling", Context{KeyFrom: "parked"}, false},
		{"loopback without from", Loopback, "parked", Context{"to": "parked"}, false},
		{"loopback without context", Loopback, "parked", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.matcher.Matches(tt.value, tt.ctx))
		})
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	candidates := []string{"parked", "idling", "first_gear"}

	assert.Equal(t, candidates, All.Filter(candidates))
	assert.Equal(t, []string{"parked", "first_gear"}, Whitelist("first_gear", "parked", "stalled").Filter(candidates))
	assert.Equal(t, []string{"idling", "first_gear"}, Blacklist("parked").Filter(candidates))
	assert.Empty(t, Loopback.Filter(candidates))
}

func TestValuesAreDeduplicated(t *testing.T) {
	t.Parallel()

	m := Whitelist("parked", "idling", "parked")
	assert.Equal(t, []string{"parked", "idling"}, m.Values())

	// Mutating the returned slice must not leak into the matcher.
	vals := m.Values()
	vals[0] = "stalled"
	assert.True(t, m.Matches("parked", nil))

	assert.Nil(t, All.Values())
	assert.Nil(t, Loopback.Values())
	assert.Nil(t, ValuesOf(nil))
}

func TestAllExcept(t *testing.T) {
	t.Parallel()

	m := All.Except("parked", "stalled")

	assert.IsType(t, &BlacklistMatcher{}, m)
	assert.False(t, m.Matches("parked", nil))
	assert.True(t, m.Matches("idling", nil))
	assert.Equal(t, []string{"parked", "stalled"}, m.Values())
}

func TestDescription(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "all", All.Description())
	assert.Equal(t, `"parked"`, Whitelist("parked").Description())
	assert.Equal(t, `["parked" "idling"]`, Whitelist("parked", "idling").Description())
	assert.Equal(t, `all - ["parked"]`, Blacklist("parked").Description())
	assert.Equal(t, "same", Loopback.Description())
}
