package statemachine

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/amp-labs/amp-fsm/statemachine/invoke"
)

// State is a named value a machine's attribute can hold.
type State struct {
	machine *Machine
	name    string
	value   any
}

// Name returns the state name.
func (s *State) Name() string {
	return s.name
}

// Value is what gets written to the attribute. It defaults to the name.
func (s *State) Value() any {
	return s.value
}

// Machine returns the machine the state belongs to.
func (s *State) Machine() *Machine {
	return s.machine
}

// HumanName returns the name with underscores replaced by spaces.
func (s *State) HumanName() string {
	return HumanName(s.name)
}

// Initial reports whether this is the machine's initial state.
func (s *State) Initial() bool {
	return s.machine.initial == s.name
}

// Matches reports whether an attribute value represents this state.
func (s *State) Matches(value any) bool {
	if reflect.DeepEqual(s.value, value) {
		return true
	}

	// Attributes declared with a named string type still match plain string values.
	sv, vv := reflect.ValueOf(s.value), reflect.ValueOf(value)
	if sv.IsValid() && vv.IsValid() && sv.Kind() == reflect.String && vv.Kind() == reflect.String {
		return sv.String() == vv.String()
	}

	return false
}

// Option configures a Machine.
type Option func(*Machine) error

// WithAttribute sets the attribute the state is stored in.
func WithAttribute(attribute string) Option {
	return func(m *Machine) error {
		m.attribute = attribute

		return nil
	}
}

// WithStates defines states whose values are their names.
func WithStates(names ...string) Option {
	return func(m *Machine) error {
		for _, name := range names {
			if _, err := m.AddState(name, name); err != nil {
				return err
			}
		}

		return nil
	}
}

// WithState defines a state with an explicit value.
func WithState(name string, value any) Option {
	return func(m *Machine) error {
		_, err := m.AddState(name, value)

		return err
	}
}

// WithInitialState sets the state Initialize writes.
func WithInitialState(name string) Option {
	return func(m *Machine) error {
		m.initial = name

		return nil
	}
}

// WithAction sets the method run on the object after transitions persist.
// It accepts anything invoke.New does, typically a method name such as "Save".
func WithAction(action any) Option {
	return func(m *Machine) error {
		callable, err := invoke.New(action)
		if err != nil {
			return fmt.Errorf("action: %w", err)
		}

		m.action = callable

		return nil
	}
}

// WithUseTransactions overrides UseTransactionsDefault for this machine.
func WithUseTransactions(use bool) Option {
	return func(m *Machine) error {
		m.useTransactions = use

		return nil
	}
}

// WithAccessor sets how the attribute is read and written. FieldAccessor is the default.
func WithAccessor(accessor Accessor) Option {
	return func(m *Machine) error {
		m.accessor = accessor

		return nil
	}
}

// WithTransactor wraps performs in transactions begun by transactor.
func WithTransactor(transactor Transactor) Option {
	return func(m *Machine) error {
		m.transactor = transactor

		return nil
	}
}

// WithInvalidator sets where invalid transition messages go.
func WithInvalidator(invalidator Invalidator) Option {
	return func(m *Machine) error {
		m.invalidator = invalidator

		return nil
	}
}

// WithLogger sets the logger. Machines log nothing by default.
func WithLogger(logger Logger) Option {
	return func(m *Machine) error {
		m.logger = logger

		return nil
	}
}

// Machine defines the states, events and callbacks of one attribute.
type Machine struct {
	name            string
	attribute       string
	states          []*State
	initial         string
	events          []*Event
	callbacks       map[CallbackType][]*Callback
	action          *invoke.Callable
	useTransactions bool
	accessor        Accessor
	transactor      Transactor
	invalidator     Invalidator
	logger          Logger
	registry        *Registry
}

// NewMachine creates a machine. The attribute defaults to the machine name.
func NewMachine(name string, opts ...Option) (*Machine, error) {
	machine := &Machine{
		name:            name,
		attribute:       name,
		callbacks:       make(map[CallbackType][]*Callback),
		useTransactions: UseTransactionsDefault(),
		accessor:        FieldAccessor{},
	}

	for _, opt := range opts {
		if err := opt(machine); err != nil {
			return nil, fmt.Errorf("machine %s: %w", name, err)
		}
	}

	if machine.initial != "" {
		if _, ok := machine.State(machine.initial); !ok {
			return nil, fmt.Errorf("machine %s: initial %w: %s", name, ErrStateNotFound, machine.initial)
		}
	}

	return machine, nil
}

// Name returns the machine name.
func (m *Machine) Name() string {
	return m.name
}

// Attribute returns the attribute holding the state. It defaults to the machine name.
func (m *Machine) Attribute() string {
	return m.attribute
}

// UseTransactions reports whether performs run inside a transaction.
func (m *Machine) UseTransactions() bool {
	return m.useTransactions
}

// ActionName is the name results of the machine's action are stored under.
func (m *Machine) ActionName() string {
	if m.action == nil {
		return ""
	}

	return m.action.Name()
}

// Registry returns the registry the machine was added to, if any.
func (m *Machine) Registry() *Registry {
	return m.registry
}

// AddState defines a state. A nil value uses the name.
func (m *Machine) AddState(name string, value any) (*State, error) {
	if _, ok := m.State(name); ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateState, name)
	}

	if value == nil {
		value = name
	}

	state := &State{machine: m, name: name, value: value}
	m.states = append(m.states, state)

	return state, nil
}

// State returns the named state.
func (m *Machine) State(name string) (*State, bool) {
	for _, state := range m.states {
		if state.name == name {
			return state, true
		}
	}

	return nil, false
}

// States returns the states in definition order.
func (m *Machine) States() []*State {
	return slices.Clone(m.states)
}

// StateNames lists states in definition order.
func (m *Machine) StateNames() []string {
	names := make([]string, len(m.states))
	for i, state := range m.states {
		names[i] = state.name
	}

	return names
}

// InitialState returns the configured initial state.
func (m *Machine) InitialState() (*State, bool) {
	if m.initial == "" {
		return nil, false
	}

	return m.State(m.initial)
}

// DefineEvent returns a new event of the machine.
func (m *Machine) DefineEvent(name string) (*Event, error) {
	if _, ok := m.Event(name); ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEvent, name)
	}

	event := &Event{machine: m, name: name}
	m.events = append(m.events, event)

	return event, nil
}

// Event returns the named event.
func (m *Machine) Event(name string) (*Event, bool) {
	for _, event := range m.events {
		if event.name == name {
			return event, true
		}
	}

	return nil, false
}

// Events returns the events in definition order.
func (m *Machine) Events() []*Event {
	return slices.Clone(m.events)
}

// AddCallback appends callback to its phase. Around callbacks share the
// before list so the two run interleaved in definition order.
func (m *Machine) AddCallback(callback *Callback) {
	typ := callback.Type()
	if typ == CallbackAround {
		typ = CallbackBefore
	}

	m.callbacks[typ] = append(m.callbacks[typ], callback)
}

// Before registers callbacks that run before matching transitions.
func (m *Machine) Before(opts CallbackOptions, methods ...any) (*Callback, error) {
	return m.define(CallbackBefore, opts, methods)
}

// After registers callbacks that run after matching transitions succeed.
func (m *Machine) After(opts CallbackOptions, methods ...any) (*Callback, error) {
	return m.define(CallbackAfter, opts, methods)
}

// Around registers callbacks that wrap matching transitions.
func (m *Machine) Around(opts CallbackOptions, methods ...any) (*Callback, error) {
	return m.define(CallbackAround, opts, methods)
}

// AfterFailure registers callbacks for transitions whose action failed or
// that could not be found.
func (m *Machine) AfterFailure(opts CallbackOptions, methods ...any) (*Callback, error) {
	return m.define(CallbackFailure, opts, methods)
}

func (m *Machine) define(typ CallbackType, opts CallbackOptions, methods []any) (*Callback, error) {
	callback, err := NewCallback(typ, opts, methods...)
	if err != nil {
		return nil, err
	}

	m.AddCallback(callback)

	return callback, nil
}

// Callbacks returns the callbacks of one phase. Asking for CallbackBefore
// includes around callbacks in their definition order.
func (m *Machine) Callbacks(typ CallbackType) []*Callback {
	if typ != CallbackAround {
		return slices.Clone(m.callbacks[typ])
	}

	var around []*Callback

	for _, callback := range m.callbacks[CallbackBefore] {
		if callback.Type() == CallbackAround {
			around = append(around, callback)
		}
	}

	return around
}

func (m *Machine) beforeChain() []*Callback {
	return m.callbacks[CallbackBefore]
}

// Read returns the attribute value stored on obj.
func (m *Machine) Read(obj any) (any, error) {
	value, err := m.accessor.Read(obj, m.attribute)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.attribute, err)
	}

	return value, nil
}

// Write stores value in obj's attribute.
func (m *Machine) Write(obj any, value any) error {
	if err := m.accessor.Write(obj, m.attribute, value); err != nil {
		return fmt.Errorf("write %s: %w", m.attribute, err)
	}

	return nil
}

// StateFor returns the state obj is currently in.
func (m *Machine) StateFor(obj any) (*State, error) {
	value, err := m.Read(obj)
	if err != nil {
		return nil, err
	}

	for _, state := range m.states {
		if state.Matches(value) {
			return state, nil
		}
	}

	return nil, fmt.Errorf("%w: %v for %s", ErrInvalidState, value, m.name)
}

// Initialize writes the initial state to obj when its attribute is unset.
func (m *Machine) Initialize(obj any) error {
	state, ok := m.InitialState()
	if !ok {
		return nil
	}

	value, err := m.Read(obj)
	if err != nil {
		return err
	}

	if value != nil && !reflect.ValueOf(value).IsZero() {
		return nil
	}

	return m.Write(obj, state.value)
}

// Invalidate records why obj could not transition, when an Invalidator is configured.
func (m *Machine) Invalidate(obj any, messageKey string, values map[string]string) {
	if m.invalidator != nil {
		m.invalidator.Invalidate(obj, m.attribute, messageKey, values)
	}
}

// ResetErrors clears recorded errors for obj.
func (m *Machine) ResetErrors(obj any) {
	if m.invalidator != nil {
		m.invalidator.Reset(obj)
	}
}

// ErrorsFor returns recorded errors for obj.
func (m *Machine) ErrorsFor(obj any) string {
	if m.invalidator == nil {
		return ""
	}

	return m.invalidator.ErrorsFor(obj)
}

// runAction calls the machine's action on obj.
func (m *Machine) runAction(ctx context.Context, obj any) (any, error) {
	name := m.action.Name()

	m.log().ActionStarted(ctx, name)

	actionCtx, span := startActionSpan(ctx, m.name, name)

	start := time.Now()
	result, err := m.action.Call(actionCtx, obj, false, nil, nil)
	duration := time.Since(start)

	if err != nil {
		err = fmt.Errorf("action %s: %w", name, err)
	}

	finishSpan(span, err == nil, err)
	m.log().ActionCompleted(ctx, name, duration, err)
	actionDuration.WithLabelValues(m.name, name).Observe(duration.Seconds())

	return result, err
}

func (m *Machine) log() Logger {
	if m.logger == nil {
		return nopLogger{}
	}

	return m.logger
}

func (m *Machine) lookup() Lookup {
	if m.registry != nil {
		return m.registry
	}

	return soleMachine{m}
}

type soleMachine struct {
	machine *Machine
}

func (s soleMachine) Machine(name string) (*Machine, bool) {
	if s.machine.name == name {
		return s.machine, true
	}

	return nil, false
}
