package vehicle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/statemachine"
)

var errDisk = errors.New("disk full") //nolint:err113

func newFleetVehicle(t *testing.T) (*Fleet, *Vehicle) {
	t.Helper()

	fleet, err := NewFleet()
	require.NoError(t, err)

	v, err := fleet.NewVehicle(t.Context(), "")
	require.NoError(t, err)

	return fleet, v
}

func fire(t *testing.T, fleet *Fleet, v *Vehicle, events ...string) bool {
	t.Helper()

	ok, err := fleet.Fire(t.Context(), v, events...)
	require.NoError(t, err)

	return ok
}

func TestNewVehicle(t *testing.T) {
	t.Parallel()

	fleet, v := newFleetVehicle(t)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, Parked, v.State)
	assert.Equal(t, AlarmActive, v.AlarmState)

	record, ok := fleet.Garage().Record(v.ID)
	require.True(t, ok)
	assert.Equal(t, Record{ID: v.ID, State: Parked, AlarmState: AlarmActive}, record)

	named, err := fleet.NewVehicle(context.Background(), "car-1")
	require.NoError(t, err)
	assert.Equal(t, "car-1", named.ID)
}

func TestFleet_Fire(t *testing.T) {
	t.Parallel()

	t.Run("ignite puts the seatbelt on and commits", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)

		require.True(t, fire(t, fleet, v, "ignite"))
		assert.Equal(t, Idling, v.State)
		assert.True(t, v.Seatbelt)
		assert.Equal(t, []string{"state.ignite: parked -> idling"}, v.History)

		record, _ := fleet.Garage().Record(v.ID)
		assert.Equal(t, Idling, record.State)
		assert.EqualValues(t, 1, fleet.Garage().Commits())
	})

	t.Run("a missing seatbelt halts gear changes", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)
		require.True(t, fire(t, fleet, v, "ignite"))

		v.Seatbelt = false

		assert.False(t, fire(t, fleet, v, "shift_up"))
		assert.Equal(t, Idling, v.State)
		assert.Equal(t, []string{"failed to shift_up"}, v.LastEntries(1))
		assert.EqualValues(t, 1, fleet.Garage().Rollbacks())

		record, _ := fleet.Garage().Record(v.ID)
		assert.Equal(t, Idling, record.State)
	})

	t.Run("events on both machines commit together", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)

		require.True(t, fire(t, fleet, v, "ignite", "disable_alarm"))
		assert.Equal(t, Idling, v.State)
		assert.Equal(t, AlarmOff, v.AlarmState)
		assert.ElementsMatch(t, []string{
			"state.ignite: parked -> idling",
			"alarm_state.disable_alarm: active -> off",
		}, v.History)

		record, _ := fleet.Garage().Record(v.ID)
		assert.Equal(t, Record{ID: v.ID, State: Idling, AlarmState: AlarmOff}, record)
	})

	t.Run("one impossible event blocks the others", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)

		assert.False(t, fire(t, fleet, v, "shift_up", "disable_alarm"))
		assert.Equal(t, Parked, v.State)
		assert.Equal(t, AlarmActive, v.AlarmState)
		assert.Equal(t, "state cannot transition via shift up", fleet.Errors(v))
		assert.Equal(t, []string{"failed to shift_up"}, v.History)
	})

	t.Run("save errors roll back and keep their attributes", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)
		v.SaveErr = errDisk

		ok, err := fleet.Fire(t.Context(), v, "ignite")
		require.ErrorIs(t, err, errDisk)
		assert.False(t, ok)
		assert.Equal(t, Parked, v.State)
		assert.EqualValues(t, 1, fleet.Garage().Rollbacks())

		keys := make([]string, 0)
		for _, attr := range logger.ErrorAttrs(err) {
			keys = append(keys, attr.Key)
		}

		assert.Equal(t, []string{"vehicle", "state"}, keys)
	})

	t.Run("unknown events", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)

		_, err := fleet.Fire(t.Context(), v, "fly")
		require.ErrorIs(t, err, statemachine.ErrEventNotFound)
	})
}

func TestFleet_Guards(t *testing.T) {
	t.Parallel()

	t.Run("the alarm arms only while parked", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)

		require.True(t, fire(t, fleet, v, "disable_alarm"))
		require.True(t, fire(t, fleet, v, "ignite"))
		assert.False(t, fire(t, fleet, v, "enable_alarm"))
		assert.Equal(t, AlarmOff, v.AlarmState)

		require.True(t, fire(t, fleet, v, "park"))
		require.True(t, fire(t, fleet, v, "enable_alarm"))
		assert.Equal(t, AlarmActive, v.AlarmState)
	})

	t.Run("crash and repair", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)

		require.True(t, fire(t, fleet, v, "ignite"))
		require.True(t, fire(t, fleet, v, "shift_up"))
		require.True(t, fire(t, fleet, v, "crash"))
		assert.Equal(t, Stalled, v.State)
		assert.Equal(t, []string{"state.crash: first_gear -> stalled", "towed"}, v.LastEntries(2))

		require.True(t, fire(t, fleet, v, "ignite"), "ignite loops back while stalled")
		assert.Equal(t, Stalled, v.State)

		v.AutoShopBusy = true
		assert.False(t, fire(t, fleet, v, "repair"))

		v.AutoShopBusy = false
		require.True(t, fire(t, fleet, v, "repair"))
		assert.Equal(t, Parked, v.State)
		assert.Equal(t, "fixed", v.LastEntries(1)[0])
	})

	t.Run("inspected cars do not crash", func(t *testing.T) {
		t.Parallel()

		fleet, v := newFleetVehicle(t)
		v.InspectionPassed = true

		require.True(t, fire(t, fleet, v, "ignite"))
		assert.False(t, fire(t, fleet, v, "crash"))
	})
}

func TestFleet_Available(t *testing.T) {
	t.Parallel()

	fleet, v := newFleetVehicle(t)

	events, err := fleet.Available(t.Context(), v)
	require.NoError(t, err)
	assert.Equal(t, []string{"ignite", "disable_alarm", "enable_alarm"}, events)

	require.True(t, fire(t, fleet, v, "ignite"))

	events, err = fleet.Available(t.Context(), v)
	require.NoError(t, err)
	assert.Equal(t, []string{"park", "shift_up", "crash", "disable_alarm"}, events)
}

func TestNewFleetFromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := statemachine.ParseConfig([]byte("machines:\n  - name: state\n    states: [parked]\n"))
	require.NoError(t, err)

	_, err = NewFleetFromConfig(cfg)
	require.ErrorIs(t, err, statemachine.ErrMachineNotFound)

	cfg, err = DefaultConfig()
	require.NoError(t, err)

	cfg.UseTransactions = false

	fleet, err := NewFleetFromConfig(cfg)
	require.NoError(t, err)

	v, err := fleet.NewVehicle(t.Context(), "")
	require.NoError(t, err)
	require.True(t, fire(t, fleet, v, "ignite"))
	assert.Zero(t, fleet.Garage().Commits())

	record, _ := fleet.Garage().Record(v.ID)
	assert.Equal(t, Idling, record.State, "saves go straight to the garage")
}

func TestFleet_FireAll(t *testing.T) {
	t.Parallel()

	fleet, err := NewFleet()
	require.NoError(t, err)
	t.Cleanup(func() { fleet.Close(context.Background()) })

	vehicles := make([]*Vehicle, 6)

	for i := range vehicles {
		vehicles[i], err = fleet.NewVehicle(t.Context(), "")
		require.NoError(t, err)
	}

	require.True(t, fire(t, fleet, vehicles[0], "ignite"))

	results, err := fleet.FireAll(t.Context(), vehicles, "ignite")
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, true, true, true}, results)

	for _, v := range vehicles {
		assert.Equal(t, Idling, v.State)
	}

	vehicles[2].SaveErr = errDisk

	_, err = fleet.FireAll(t.Context(), vehicles, "park")
	require.ErrorIs(t, err, errDisk)
	assert.Contains(t, err.Error(), vehicles[2].ID)
	assert.Equal(t, Idling, vehicles[2].State)
	assert.Equal(t, Parked, vehicles[3].State)
}
