package statemachine

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"

	"github.com/amp-labs/amp-fsm/statemachine/matcher"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "STATEMACHINE_"

var (
	bindToObjectDefault    = atomic.NewBool(false) //nolint:gochecknoglobals
	useTransactionsDefault = atomic.NewBool(true)  //nolint:gochecknoglobals
)

// SetBindToObjectDefault sets whether callbacks created afterwards run bound to the object.
func SetBindToObjectDefault(bind bool) {
	bindToObjectDefault.Store(bind)
}

// BindToObjectDefault reports the bind flag given to new callbacks.
func BindToObjectDefault() bool {
	return bindToObjectDefault.Load()
}

// SetUseTransactionsDefault sets whether machines created afterwards wrap performs in transactions.
func SetUseTransactionsDefault(use bool) {
	useTransactionsDefault.Store(use)
}

// UseTransactionsDefault reports the transaction flag given to new machines.
func UseTransactionsDefault() bool {
	return useTransactionsDefault.Load()
}

// Config holds engine-wide defaults and, optionally, declarative machine definitions.
type Config struct {
	BindToObject    bool                `env:"BIND_TO_OBJECT"   envDefault:"false" yaml:"bindToObject"`
	UseTransactions bool                `env:"USE_TRANSACTIONS" envDefault:"true"  yaml:"useTransactions"`
	Machines        []MachineDefinition `yaml:"machines"`
}

// MachineDefinition declares a machine's states and events.
type MachineDefinition struct {
	Name         string            `yaml:"name"`
	Attribute    string            `yaml:"attribute"`
	InitialState string            `yaml:"initialState"`
	States       []string          `yaml:"states"`
	Events       []EventDefinition `yaml:"events"`
}

// EventDefinition declares an event and its branches in priority order.
type EventDefinition struct {
	Name        string                 `yaml:"name"`
	Transitions []TransitionDefinition `yaml:"transitions"`
}

// TransitionDefinition declares one branch. An empty From matches any state
// and an empty To loops back to the from state.
type TransitionDefinition struct {
	From       []string `yaml:"from"`
	ExceptFrom []string `yaml:"exceptFrom"`
	To         string   `yaml:"to"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{UseTransactions: true}
}

// ParseConfig reads YAML. Omitted fields keep their defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidConfig, err)
	}

	return &cfg, nil
}

// LoadConfig reads a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Intentional path-based loading
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	return ParseConfig(data)
}

// LoadConfigFromEnv reads STATEMACHINE_BIND_TO_OBJECT and STATEMACHINE_USE_TRANSACTIONS.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &cfg, nil
}

// ApplyConfig installs cfg's engine defaults.
func ApplyConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	SetBindToObjectDefault(cfg.BindToObject)
	SetUseTransactionsDefault(cfg.UseTransactions)
}

// Definition returns the named machine definition.
func (c *Config) Definition(name string) (MachineDefinition, bool) {
	for _, def := range c.Machines {
		if def.Name == name {
			return def, true
		}
	}

	return MachineDefinition{}, false
}

// Build creates a machine from the definition. opts are applied after the
// definition, so they can add actions, callbacks and integrations.
func (d MachineDefinition) Build(opts ...Option) (*Machine, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: machine name is required", ErrInvalidConfig)
	}

	defOpts := []Option{WithStates(d.States...)}

	if d.Attribute != "" {
		defOpts = append(defOpts, WithAttribute(d.Attribute))
	}

	if d.InitialState != "" {
		defOpts = append(defOpts, WithInitialState(d.InitialState))
	}

	machine, err := NewMachine(d.Name, append(defOpts, opts...)...)
	if err != nil {
		return nil, err
	}

	for _, evDef := range d.Events {
		event, err := machine.DefineEvent(evDef.Name)
		if err != nil {
			return nil, err
		}

		for _, tr := range evDef.Transitions {
			if _, err := event.Transition(tr.branchOptions()); err != nil {
				return nil, fmt.Errorf("event %s: %w", evDef.Name, err)
			}
		}
	}

	return machine, nil
}

func (d TransitionDefinition) branchOptions() BranchOptions {
	opts := BranchOptions{To: matcher.Loopback}

	if len(d.From) > 0 {
		opts.From = matcher.Whitelist(d.From...)
	}

	if d.ExceptFrom != nil {
		opts.ExceptFrom = d.ExceptFrom
	}

	if d.To != "" {
		opts.To = matcher.Whitelist(d.To)
	}

	return opts
}
