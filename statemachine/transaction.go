package statemachine

import (
	"context"
	"fmt"

	"github.com/amp-labs/amp-fsm/using"
)

// Tx is an open transaction around one or more transitions.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactor opens transactions for objects whose machines use them.
type Transactor interface {
	Begin(ctx context.Context, obj any) (Tx, error)
}

// TransactorFunc adapts a function to Transactor.
type TransactorFunc func(ctx context.Context, obj any) (Tx, error)

// Begin calls f.
func (f TransactorFunc) Begin(ctx context.Context, obj any) (Tx, error) {
	return f(ctx, obj)
}

type txContextKey struct{}

// TxFromContext returns the transaction opened for the current perform, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(Tx)

	return tx, ok
}

// WithinTransaction runs fn inside a transaction when the machine has a
// Transactor. The transaction commits when fn reports success and rolls back
// when it reports failure, errors or panics.
func (m *Machine) WithinTransaction(ctx context.Context, obj any, fn func(ctx context.Context) (bool, error)) error {
	if m.transactor == nil {
		_, err := fn(ctx)

		return err
	}

	resource := using.NewResource(func() (Tx, using.Release, error) {
		tx, err := m.transactor.Begin(ctx, obj)
		if err != nil {
			return nil, nil, fmt.Errorf("begin transaction for %s: %w", m.name, err)
		}

		return tx, func(failed bool) error {
			if failed {
				return tx.Rollback(ctx)
			}

			return tx.Commit(ctx)
		}, nil
	})

	_, err := resource.UseOutcome(func(tx Tx) (bool, error) {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})

	return err
}
