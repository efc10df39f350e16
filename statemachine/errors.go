package statemachine

import (
	"errors"
	"fmt"
)

// Predefined error types.
var (
	// ErrUnknownKey indicates that a query or option used a key the engine does not understand.
	ErrUnknownKey = errors.New("unknown key")
	// ErrInvalidQuery indicates that a query value had the wrong type.
	ErrInvalidQuery = errors.New("invalid query value")
	// ErrConflictingOptions indicates that both a whitelist and a blacklist were given for one requirement.
	ErrConflictingOptions = errors.New("conflicting options")

	// ErrInvalidCallbackType indicates an unknown callback phase.
	ErrInvalidCallbackType = errors.New("invalid callback type")
	// ErrNoCallbackMethods indicates that a callback was defined without any methods.
	ErrNoCallbackMethods = errors.New("callback requires at least one method")
	// ErrAroundWithoutProceed indicates that an around callback method cannot yield.
	ErrAroundWithoutProceed = errors.New("around callback method must accept a func() bool continuation")

	// ErrMachineRequired indicates that a transition was built without a machine.
	ErrMachineRequired = errors.New("state machine is required")
	// ErrMachineNotFound indicates a lookup for a machine that is not defined.
	ErrMachineNotFound = errors.New("state machine not defined")
	// ErrDuplicateMachine indicates that a registry already holds a machine of the same name.
	ErrDuplicateMachine = errors.New("duplicate state machine")
	// ErrStateNotFound indicates a lookup for a state that is not defined.
	ErrStateNotFound = errors.New("state not defined")
	// ErrDuplicateState indicates that a state name was defined twice.
	ErrDuplicateState = errors.New("duplicate state")
	// ErrInvalidState indicates that an object's attribute value matches no known state.
	ErrInvalidState = errors.New("value does not match any known state")
	// ErrEventNotFound indicates a lookup for an event that is not defined.
	ErrEventNotFound = errors.New("event not defined")
	// ErrDuplicateEvent indicates that an event name was defined twice.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrDuplicateAttribute indicates two transitions in one collection share a state attribute.
	ErrDuplicateAttribute = errors.New(
		"cannot perform multiple transitions in parallel for the same state machine attribute",
	)
	// ErrTransactionMismatch indicates that transitions in one collection disagree on transaction use.
	ErrTransactionMismatch = errors.New("transitions disagree on transaction use")

	// ErrAttributeNotFound indicates that the object exposes no readable or writable attribute of that name.
	ErrAttributeNotFound = errors.New("attribute not found")
	// ErrAttributeType indicates that a state value cannot be stored in the attribute.
	ErrAttributeType = errors.New("attribute type mismatch")

	// ErrInvalidConfig indicates that configuration could not be loaded.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// TransitionError carries the transition a failure happened in.
type TransitionError struct {
	Machine string
	Event   string
	From    string
	To      string
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s from %s to %s: %v", e.Machine, e.Event, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// WrapTransitionError attaches transition details to err. A nil err stays nil
// and errors that already carry transition details are returned unchanged.
func WrapTransitionError(t *Transition, err error) error {
	if err == nil || t == nil {
		return err
	}

	var te *TransitionError
	if errors.As(err, &te) {
		return err
	}

	return &TransitionError{
		Machine: t.Machine().Name(),
		Event:   t.Event(),
		From:    t.FromName(),
		To:      t.ToName(),
		Err:     err,
	}
}
