package statemachine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Message keys passed to an Invalidator.
const (
	MessageInvalid           = "invalid"
	MessageInvalidEvent      = "invalid_event"
	MessageInvalidTransition = "invalid_transition"
)

// DefaultMessages are the templates ErrorCollector formats. Placeholders look like {event}.
var DefaultMessages = map[string]string{ //nolint:gochecknoglobals
	MessageInvalid:           "is invalid",
	MessageInvalidEvent:      "cannot transition when {state}",
	MessageInvalidTransition: "cannot transition via {event}",
}

// Invalidator records why an object could not transition.
type Invalidator interface {
	Invalidate(obj any, attribute, messageKey string, values map[string]string)
	Reset(obj any)
	ErrorsFor(obj any) string
}

// ErrorCollector is an in-memory Invalidator keyed by object identity.
// Objects must be comparable, which in practice means pointers.
type ErrorCollector struct {
	mu       sync.Mutex
	messages map[string]string
	errs     map[any][]string
}

// NewErrorCollector returns a collector using DefaultMessages overridden by messages.
func NewErrorCollector(messages map[string]string) *ErrorCollector {
	merged := maps.Clone(DefaultMessages)
	maps.Copy(merged, messages)

	return &ErrorCollector{
		messages: merged,
		errs:     make(map[any][]string),
	}
}

// Invalidate records the formatted message for messageKey against obj.
func (c *ErrorCollector) Invalidate(obj any, attribute, messageKey string, values map[string]string) {
	template, ok := c.messages[messageKey]
	if !ok {
		template = messageKey
	}

	keys := slices.Sorted(maps.Keys(values))

	pairs := make([]string, 0, 2*len(keys)) //nolint:mnd
	for _, key := range keys {
		pairs = append(pairs, "{"+key+"}", values[key])
	}

	message := fmt.Sprintf("%s %s", HumanName(attribute), strings.NewReplacer(pairs...).Replace(template))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.errs[obj] = append(c.errs[obj], message)
}

// Reset drops the messages recorded for obj.
func (c *ErrorCollector) Reset(obj any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.errs, obj)
}

// ErrorsFor joins every message recorded for obj.
func (c *ErrorCollector) ErrorsFor(obj any) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return strings.Join(c.errs[obj], ", ")
}

// Errors returns a copy of the messages recorded for obj.
func (c *ErrorCollector) Errors(obj any) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.errs[obj])
}

// HumanName turns an identifier such as first_gear into "first gear".
func HumanName(name string) string {
	return cases.Lower(language.English).String(strings.ReplaceAll(name, "_", " "))
}
