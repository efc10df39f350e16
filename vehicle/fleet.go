package vehicle

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/amp-labs/amp-fsm/bgworker"
	"github.com/amp-labs/amp-fsm/statemachine"
	"github.com/amp-labs/amp-fsm/statemachine/matcher"
)

//go:embed machines.yaml
var definitions []byte

// DefaultConfig returns the bundled machine definitions.
func DefaultConfig() (*statemachine.Config, error) {
	return statemachine.ParseConfig(definitions)
}

// Fleet owns the vehicle machines and the garage their saves go to.
type Fleet struct {
	registry *statemachine.Registry
	state    *statemachine.Machine
	alarm    *statemachine.Machine
	errors   *statemachine.ErrorCollector
	garage   *Garage
	workers  *bgworker.Pool
}

// NewFleet builds the machines from the bundled definitions.
func NewFleet(opts ...statemachine.Option) (*Fleet, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}

	return NewFleetFromConfig(cfg, opts...)
}

// NewFleetFromConfig builds the machines from cfg, which must define the
// "state" and "alarm_state" machines. Guarded events and callbacks are added
// on top of the definitions. opts apply to both machines.
func NewFleetFromConfig(cfg *statemachine.Config, opts ...statemachine.Option) (*Fleet, error) {
	f := &Fleet{
		errors:  statemachine.NewErrorCollector(nil),
		garage:  NewGarage(),
		workers: bgworker.New(0),
	}

	shared := append([]statemachine.Option{
		statemachine.WithAction("Save"),
		statemachine.WithInvalidator(f.errors),
		statemachine.WithTransactor(f.garage),
		statemachine.WithUseTransactions(cfg.UseTransactions),
	}, opts...)

	var err error

	if f.state, err = build(cfg, "state", shared); err != nil {
		return nil, err
	}

	if f.alarm, err = build(cfg, "alarm_state", shared); err != nil {
		return nil, err
	}

	if err := defineStateMachine(f.state); err != nil {
		return nil, err
	}

	if err := defineAlarmMachine(f.alarm); err != nil {
		return nil, err
	}

	if f.registry, err = statemachine.NewRegistry(f.state, f.alarm); err != nil {
		return nil, err
	}

	return f, nil
}

func build(cfg *statemachine.Config, name string, opts []statemachine.Option) (*statemachine.Machine, error) {
	def, ok := cfg.Definition(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", statemachine.ErrMachineNotFound, name)
	}

	return def.Build(opts...)
}

func defineStateMachine(m *statemachine.Machine) error {
	crash, err := m.DefineEvent("crash")
	if err != nil {
		return err
	}

	if _, err := crash.Transition(statemachine.BranchOptions{
		ExceptFrom: []string{Parked, Stalled},
		To:         matcher.Whitelist(Stalled),
		Unless:     []any{"PassedInspection"},
	}); err != nil {
		return err
	}

	repair, err := m.DefineEvent("repair")
	if err != nil {
		return err
	}

	if _, err := repair.Transition(statemachine.BranchOptions{
		Transitions: []statemachine.StatePair{statemachine.Pair(Stalled, Parked)},
		If:          []any{"AutoShopAvailable"},
	}); err != nil {
		return err
	}

	return defineCallbacks(m,
		callback{typ: statemachine.CallbackBefore, method: "PutOnSeatbelt", opts: statemachine.BranchOptions{
			From: matcher.Whitelist(Parked), ExceptTo: []string{Parked},
		}},
		callback{typ: statemachine.CallbackBefore, method: "CheckSeatbelt", opts: statemachine.BranchOptions{
			On: matcher.Whitelist("shift_up", "shift_down"),
		}},
		callback{typ: statemachine.CallbackAround, method: "TrackTime"},
		callback{typ: statemachine.CallbackAfter, method: "RecordTransition"},
		callback{typ: statemachine.CallbackAfter, method: "Tow", opts: statemachine.BranchOptions{
			On: matcher.Whitelist("crash"),
		}},
		callback{typ: statemachine.CallbackAfter, method: "Fix", opts: statemachine.BranchOptions{
			On: matcher.Whitelist("repair"),
		}},
		callback{typ: statemachine.CallbackFailure, method: "RecordFailure"},
	)
}

// The alarm can only be armed while the car is parked.
func defineAlarmMachine(m *statemachine.Machine) error {
	enable, err := m.DefineEvent("enable_alarm")
	if err != nil {
		return err
	}

	if _, err := enable.Transition(statemachine.BranchOptions{
		To:      matcher.Whitelist(AlarmActive),
		IfState: map[string]string{"state": Parked},
	}); err != nil {
		return err
	}

	return defineCallbacks(m,
		callback{typ: statemachine.CallbackAfter, method: "RecordTransition"},
		callback{typ: statemachine.CallbackFailure, method: "RecordFailure"},
	)
}

type callback struct {
	typ    statemachine.CallbackType
	method string
	opts   statemachine.BranchOptions
}

func defineCallbacks(m *statemachine.Machine, callbacks ...callback) error {
	for _, cb := range callbacks {
		created, err := statemachine.NewCallback(cb.typ, statemachine.CallbackOptions{
			BranchOptions: cb.opts,
		}, cb.method)
		if err != nil {
			return fmt.Errorf("%s callback %s: %w", m.Name(), cb.method, err)
		}

		m.AddCallback(created)
	}

	return nil
}

func (f *Fleet) Registry() *statemachine.Registry { return f.registry }
func (f *Fleet) Garage() *Garage                  { return f.garage }

// NewVehicle creates a vehicle in its initial states and saves it. An empty id
// gets a random one.
func (f *Fleet) NewVehicle(ctx context.Context, id string) (*Vehicle, error) {
	v := newVehicle(id, f.garage)

	if err := f.registry.Initialize(v); err != nil {
		return nil, err
	}

	if _, err := v.Save(ctx); err != nil {
		return nil, err
	}

	return v, nil
}

// Fire fires events on v together. Either all of them transition or none do.
func (f *Fleet) Fire(ctx context.Context, v *Vehicle, events ...string) (bool, error) {
	return f.registry.FireEvents(ctx, v, events...)
}

// FireAll fires events on every vehicle concurrently. Each vehicle's events
// commit or roll back on their own; the result reports success per vehicle.
func (f *Fleet) FireAll(ctx context.Context, vehicles []*Vehicle, events ...string) ([]bool, error) {
	results := make([]bool, len(vehicles))

	err := f.workers.Each(ctx, len(vehicles), func(ctx context.Context, i int) error {
		ok, err := f.Fire(ctx, vehicles[i], events...)
		if err != nil {
			return fmt.Errorf("vehicle %s: %w", vehicles[i].ID, err)
		}

		results[i] = ok

		return nil
	})

	return results, err
}

// Close stops the worker pool used by FireAll.
func (f *Fleet) Close(ctx context.Context) {
	f.workers.Stop(ctx)
}

// Available lists the events v can fire right now.
func (f *Fleet) Available(ctx context.Context, v *Vehicle) ([]string, error) {
	var names []string

	for _, machine := range f.registry.Machines() {
		for _, event := range machine.Events() {
			ok, err := event.CanFire(ctx, v)
			if err != nil {
				return nil, err
			}

			if ok {
				names = append(names, event.Name())
			}
		}
	}

	return names, nil
}

// Errors describes why the last fire on v failed.
func (f *Fleet) Errors(v *Vehicle) string {
	return f.errors.ErrorsFor(v)
}
