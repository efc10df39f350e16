// Package vehicle models a car with two state machines: the engine state and
// the alarm. It is the worked example for the statemachine package.
package vehicle

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/statemachine"
)

// Engine states.
const (
	Parked     = "parked"
	Idling     = "idling"
	FirstGear  = "first_gear"
	SecondGear = "second_gear"
	ThirdGear  = "third_gear"
	Stalled    = "stalled"
)

// Alarm states.
const (
	AlarmActive = "active"
	AlarmOff    = "off"
)

type Vehicle struct {
	ID         string
	State      string
	AlarmState string `statemachine:"alarm_state"`

	Seatbelt         bool
	InspectionPassed bool
	AutoShopBusy     bool

	// Time spent inside transitions.
	TimeUsed time.Duration
	History  []string

	// SaveErr makes the next saves fail.
	SaveErr error

	garage *Garage
}

func newVehicle(id string, garage *Garage) *Vehicle {
	if id == "" {
		id = uuid.NewString()
	}

	return &Vehicle{ID: id, garage: garage}
}

// Save stores the vehicle in its garage. Inside a transaction the write is
// staged until the transaction commits.
func (v *Vehicle) Save(ctx context.Context) (bool, error) {
	if v.SaveErr != nil {
		return false, logger.AnnotateError(v.SaveErr, "vehicle", v.ID, "state", v.State)
	}

	if tx, ok := statemachine.TxFromContext(ctx); ok {
		if staged, ok := tx.(*garageTx); ok {
			staged.stage(v)

			return true, nil
		}
	}

	if v.garage != nil {
		v.garage.store(v)
	}

	return true, nil
}

func (v *Vehicle) PutOnSeatbelt() {
	v.Seatbelt = true
}

// CheckSeatbelt halts gear changes while the seatbelt is off.
func (v *Vehicle) CheckSeatbelt() any {
	if !v.Seatbelt {
		return statemachine.Halt
	}

	return nil
}

func (v *Vehicle) PassedInspection() bool {
	return v.InspectionPassed
}

func (v *Vehicle) AutoShopAvailable() bool {
	return !v.AutoShopBusy
}

func (v *Vehicle) TrackTime(proceed func() bool) {
	start := time.Now()

	proceed()

	v.TimeUsed += time.Since(start)
}

func (v *Vehicle) Tow() {
	v.record("towed")
}

func (v *Vehicle) Fix() {
	v.record("fixed")
}

func (v *Vehicle) RecordTransition(t *statemachine.Transition) {
	v.record(t.String())
}

func (v *Vehicle) RecordFailure(t *statemachine.Transition) {
	v.record("failed to " + t.Event())
}

func (v *Vehicle) record(entry string) {
	v.History = append(v.History, entry)
}

// Snapshot returns the persisted view of the vehicle.
func (v *Vehicle) Snapshot() Record {
	return Record{ID: v.ID, State: v.State, AlarmState: v.AlarmState}
}

// LastEntries returns up to n of the most recent history entries.
func (v *Vehicle) LastEntries(n int) []string {
	return slices.Clone(v.History[max(len(v.History)-n, 0):])
}
