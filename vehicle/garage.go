package vehicle

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/atomic"

	"github.com/amp-labs/amp-fsm/statemachine"
)

var (
	ErrNotVehicle = errors.New("object is not a vehicle")
	ErrTxDone     = errors.New("transaction already finished")
)

// Record is what a Garage persists per vehicle.
type Record struct {
	ID         string
	State      string
	AlarmState string
}

// Garage is an in-memory vehicle store. It is a statemachine.Transactor, so
// saves made during a transition are only visible once the transition commits.
type Garage struct {
	mu      sync.RWMutex
	records map[string]Record

	commits   atomic.Int64
	rollbacks atomic.Int64
}

var _ statemachine.Transactor = (*Garage)(nil)

func NewGarage() *Garage {
	return &Garage{records: make(map[string]Record)}
}

func (g *Garage) Begin(_ context.Context, obj any) (statemachine.Tx, error) {
	if _, ok := obj.(*Vehicle); !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotVehicle, obj)
	}

	return &garageTx{garage: g, pending: make(map[string]Record)}, nil
}

// Record returns the committed record for id.
func (g *Garage) Record(id string) (Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	record, ok := g.records[id]

	return record, ok
}

func (g *Garage) Commits() int64   { return g.commits.Load() }
func (g *Garage) Rollbacks() int64 { return g.rollbacks.Load() }

func (g *Garage) store(v *Vehicle) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.records[v.ID] = v.Snapshot()
}

type garageTx struct {
	garage  *Garage
	pending map[string]Record
	done    bool
}

func (tx *garageTx) stage(v *Vehicle) {
	tx.pending[v.ID] = v.Snapshot()
}

func (tx *garageTx) Commit(context.Context) error {
	if tx.done {
		return ErrTxDone
	}

	tx.done = true

	tx.garage.mu.Lock()
	defer tx.garage.mu.Unlock()

	maps.Copy(tx.garage.records, tx.pending)
	tx.garage.commits.Inc()

	return nil
}

func (tx *garageTx) Rollback(context.Context) error {
	if tx.done {
		return ErrTxDone
	}

	tx.done = true
	tx.pending = nil
	tx.garage.rollbacks.Inc()

	return nil
}
