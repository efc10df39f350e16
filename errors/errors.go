// Package errors accumulates the failures of a multi-step operation, such as
// committing or rolling back several state transitions, into one error.
package errors

import (
	"errors"
	"fmt"
)

// Collection gathers errors from independent steps that must all run.
// It is not safe for concurrent use.
type Collection struct {
	errors []error
}

// Add appends err. Nil errors are ignored.
func (c *Collection) Add(err error) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// Addf wraps err with a formatted prefix before appending it. Nil errors are ignored.
func (c *Collection) Addf(err error, format string, args ...any) {
	if err == nil {
		return
	}

	c.errors = append(c.errors, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err))
}

func (c *Collection) Clear() {
	c.errors = nil
}

func (c *Collection) HasError() bool {
	return len(c.errors) > 0
}

func (c *Collection) Len() int {
	return len(c.errors)
}

// GetError returns nil, the only error, or all of them joined.
func (c *Collection) GetError() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	default:
		return errors.Join(c.errors...)
	}
}
