package statemachine

import (
	"context"
	"fmt"
	"slices"
)

// Registry holds the machines defined for one kind of object. It resolves
// machines for state guards and fires events across machines together.
type Registry struct {
	machines []*Machine
}

// NewRegistry groups machines that share host objects. Names and attributes must be unique.
func NewRegistry(machines ...*Machine) (*Registry, error) {
	registry := &Registry{}

	for _, machine := range machines {
		if err := registry.Add(machine); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Add registers machine. Names and attributes must be unique.
func (r *Registry) Add(machine *Machine) error {
	for _, existing := range r.machines {
		if existing.name == machine.name || existing.attribute == machine.attribute {
			return fmt.Errorf("%w: %s", ErrDuplicateMachine, machine.name)
		}
	}

	machine.registry = r
	r.machines = append(r.machines, machine)

	return nil
}

// Machine returns the named machine.
func (r *Registry) Machine(name string) (*Machine, bool) {
	for _, machine := range r.machines {
		if machine.name == name {
			return machine, true
		}
	}

	return nil, false
}

// Machines returns the machines in registration order.
func (r *Registry) Machines() []*Machine {
	return slices.Clone(r.machines)
}

// Event finds an event by name, looking through machines in registration order.
func (r *Registry) Event(name string) (*Event, bool) {
	for _, machine := range r.machines {
		if event, ok := machine.Event(name); ok {
			return event, true
		}
	}

	return nil, false
}

// Initialize writes every machine's initial state to obj where unset.
func (r *Registry) Initialize(obj any) error {
	for _, machine := range r.machines {
		if err := machine.Initialize(obj); err != nil {
			return err
		}
	}

	return nil
}

// FireEvents fires several events on obj as one atomic collection, running
// machine actions.
func (r *Registry) FireEvents(ctx context.Context, obj any, events ...string) (bool, error) {
	return r.fireEvents(ctx, obj, true, events)
}

// FireEventsWithoutAction is FireEvents without running machine actions.
func (r *Registry) FireEventsWithoutAction(ctx context.Context, obj any, events ...string) (bool, error) {
	return r.fireEvents(ctx, obj, false, events)
}

// fireEvents builds a transition for every event. Each event without one
// gets its failure handling, and then nothing is performed.
func (r *Registry) fireEvents(ctx context.Context, obj any, runAction bool, events []string) (bool, error) {
	transitions := make([]*Transition, 0, len(events))
	missing := false

	for _, machine := range r.machines {
		machine.ResetErrors(obj)
	}

	for _, name := range events {
		event, ok := r.Event(name)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrEventNotFound, name)
		}

		transition, err := event.TransitionFor(ctx, obj, NewQuery())
		if err != nil {
			return false, err
		}

		if transition == nil {
			if err := event.onFailure(ctx, obj, nil); err != nil {
				return false, err
			}

			missing = true

			continue
		}

		transitions = append(transitions, transition)
	}

	if missing {
		return false, nil
	}

	collection, err := NewCollection(transitions, CollectionOptions{SkipActions: !runAction})
	if err != nil {
		return false, err
	}

	return collection.Perform(ctx, nil)
}
