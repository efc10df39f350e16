// Package using scopes a resource to a unit of work and releases it with
// knowledge of how that work ended, in the style of a transaction block:
// commit when the work succeeded, roll back when it failed, errored or panicked.
//
// Example usage:
//
//	ok, err := using.NewResource(begin).UseOutcome(func(tx Tx) (bool, error) {
//	    return performTransitions(tx)
//	})
package using

import (
	"errors"

	errs "github.com/amp-labs/amp-fsm/errors"
)

var (
	// ErrResourceNil is returned when a nil resource is used.
	ErrResourceNil = errors.New("resource is nil")
	// ErrFuncNil is returned when a nil function is passed to Use.
	ErrFuncNil = errors.New("f is nil")
)

// Release frees a resource. failed reports whether the work that used it did not succeed.
type Release func(failed bool) error

// Resource produces a value together with the Release that ends its scope.
type Resource[V any] struct {
	acquire func() (V, Release, error)
}

func NewResource[V any](acquire func() (V, Release, error)) *Resource[V] {
	return &Resource[V]{acquire: acquire}
}

// Use runs f with the value. The value is released as failed when f returns
// an error or panics.
func (r *Resource[V]) Use(f func(value V) error) error {
	if f == nil {
		return ErrFuncNil
	}

	_, err := r.UseOutcome(func(value V) (bool, error) {
		if err := f(value); err != nil {
			return false, err
		}

		return true, nil
	})

	return err
}

// UseOutcome runs f with the value. The value is released as failed unless f
// reports success without an error. Errors from f and from the release are
// returned together.
func (r *Resource[V]) UseOutcome(f func(value V) (bool, error)) (ok bool, errOut error) {
	if r == nil {
		return false, ErrResourceNil
	}

	if f == nil {
		return false, ErrFuncNil
	}

	value, release, err := r.acquire()
	if err != nil {
		return false, err
	}

	collected := errs.Collection{}
	finished := false

	defer func() {
		if release == nil {
			return
		}

		if !finished {
			// f panicked; release as failed and let the panic continue.
			_ = release(true)

			return
		}

		collected.Add(release(!ok || collected.HasError()))
		errOut = collected.GetError()
	}()

	ok, err = f(value)
	collected.Add(err)
	finished = true

	if err != nil {
		ok = false
	}

	return ok, collected.GetError()
}
