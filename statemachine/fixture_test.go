package statemachine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amp-labs/amp-fsm/statemachine/matcher"
)

var (
	errSave  = errors.New("save failed")  //nolint:err113
	errBegin = errors.New("begin failed") //nolint:err113
)

const (
	parked    = "parked"
	idling    = "idling"
	firstGear = "first_gear"
	stalled   = "stalled"
)

type vehicle struct {
	State      string
	AlarmState string `statemachine:"alarm_state"`
	Seatbelt   bool

	saves    int
	failSave bool
	saveErr  error
	events   []string
}

func (v *vehicle) Save() (bool, error) {
	v.saves++
	v.record("save")

	if v.saveErr != nil {
		return false, v.saveErr
	}

	return !v.failSave, nil
}

func (v *vehicle) SeatbeltOn() bool {
	return v.Seatbelt
}

func (v *vehicle) record(event string) {
	v.events = append(v.events, event)
}

// recorder returns a callback method that appends name to the vehicle's event log.
func recorder(name string) func(v *vehicle) {
	return func(v *vehicle) {
		v.record(name)
	}
}

// aroundRecorder wraps the rest of the chain with pre and post entries.
func aroundRecorder(name string) func(v *vehicle, proceed func() bool) {
	return func(v *vehicle, proceed func() bool) {
		v.record(name + ":pre")
		proceed()
		v.record(name + ":post")
	}
}

func newStateMachine(t *testing.T, opts ...Option) *Machine {
	t.Helper()

	machine, err := NewMachine("state", append([]Option{
		WithStates(parked, idling, firstGear, stalled),
		WithInitialState(parked),
		WithAction("Save"),
	}, opts...)...)
	require.NoError(t, err)

	ignite, err := machine.DefineEvent("ignite")
	require.NoError(t, err)
	_, err = ignite.Transition(BranchOptions{From: matcher.Whitelist(parked), To: matcher.Whitelist(idling)})
	require.NoError(t, err)

	shiftUp, err := machine.DefineEvent("shift_up")
	require.NoError(t, err)
	_, err = shiftUp.Transition(BranchOptions{
		From: matcher.Whitelist(idling),
		To:   matcher.Whitelist(firstGear),
		If:   []any{"SeatbeltOn"},
	})
	require.NoError(t, err)

	park, err := machine.DefineEvent("park")
	require.NoError(t, err)
	_, err = park.Transition(BranchOptions{From: matcher.Whitelist(idling, firstGear), To: matcher.Whitelist(parked)})
	require.NoError(t, err)

	idle, err := machine.DefineEvent("idle")
	require.NoError(t, err)
	_, err = idle.Transition(BranchOptions{From: matcher.Whitelist(idling), To: matcher.Loopback})
	require.NoError(t, err)
	_, err = idle.Transition(BranchOptions{From: matcher.Whitelist(firstGear), To: matcher.Whitelist(idling)})
	require.NoError(t, err)

	return machine
}

func newAlarmMachine(t *testing.T, opts ...Option) *Machine {
	t.Helper()

	machine, err := NewMachine("alarm_state", append([]Option{
		WithStates("active", "off"),
		WithInitialState("active"),
		WithAction("Save"),
	}, opts...)...)
	require.NoError(t, err)

	enable, err := machine.DefineEvent("enable_alarm")
	require.NoError(t, err)
	_, err = enable.Transition(BranchOptions{To: matcher.Whitelist("active")})
	require.NoError(t, err)

	disable, err := machine.DefineEvent("disable_alarm")
	require.NoError(t, err)
	_, err = disable.Transition(BranchOptions{To: matcher.Whitelist("off")})
	require.NoError(t, err)

	return machine
}

func newVehicle(t *testing.T, machines ...*Machine) *vehicle {
	t.Helper()

	v := &vehicle{}

	for _, machine := range machines {
		require.NoError(t, machine.Initialize(v))
	}

	return v
}

func transitionFor(t *testing.T, machine *Machine, obj any, event string) *Transition {
	t.Helper()

	ev, ok := machine.Event(event)
	require.True(t, ok, "event %s", event)

	transition, err := ev.TransitionFor(context.Background(), obj, NewQuery())
	require.NoError(t, err)
	require.NotNil(t, transition, "no transition for %s", event)

	return transition
}

type fakeTx struct {
	committed  int
	rolledBack int
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed++

	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack++

	return nil
}

func (f *fakeTx) transactor() Transactor {
	return TransactorFunc(func(context.Context, any) (Tx, error) {
		return f, nil
	})
}
