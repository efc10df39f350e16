// Command vehicle drives a vehicle through its state machines interactively.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/manifoldco/promptui"

	"github.com/amp-labs/amp-fsm/cli"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/shutdown"
	"github.com/amp-labs/amp-fsm/statemachine"
	"github.com/amp-labs/amp-fsm/telemetry"
	"github.com/amp-labs/amp-fsm/vehicle"
)

const (
	appName       = "vehicle"
	fireSeveral   = "[fire several]"
	quit          = "[quit]"
	shutdownGrace = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "YAML file with machine definitions (defaults to the bundled ones)")
	flag.Parse()

	ctx := shutdown.SetupHandler(context.Background())

	if _, err := logger.ConfigureLogging(appName); err != nil {
		logger.Fatal("failed to configure logging", "error", err)
	}

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, promptui.ErrInterrupt) {
		logger.Fatal("vehicle demo failed", "error", err)
	}

	shutdown.RunHooks(ctx)
}

func run(ctx context.Context, configPath string) error {
	otelCfg, err := telemetry.LoadConfigFromEnv(ctx)
	if err != nil {
		return err
	}

	if err := telemetry.Initialize(ctx, otelCfg); err != nil {
		return err
	}

	shutdown.BeforeShutdown(func(ctx context.Context) {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()

		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Get(ctx).Error("failed to shut down telemetry", "error", err)
		}
	})

	envCfg, err := statemachine.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	statemachine.ApplyConfig(envCfg)

	fleet, err := newFleet(configPath)
	if err != nil {
		return err
	}

	shutdown.BeforeShutdown(fleet.Close)

	name, err := cli.PromptString("Vehicle name")
	if err != nil {
		return err
	}

	v, err := fleet.NewVehicle(ctx, name)
	if err != nil {
		return err
	}

	return drive(ctx, fleet, v)
}

func newFleet(configPath string) (*vehicle.Fleet, error) {
	transitionLogger := statemachine.NewDefaultLogger()
	if otelLogger, ok := telemetry.Logger("statemachine"); ok {
		transitionLogger = statemachine.NewLogger(otelLogger)
	}

	if configPath == "" {
		return vehicle.NewFleet(statemachine.WithLogger(transitionLogger))
	}

	cfg, err := statemachine.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	return vehicle.NewFleetFromConfig(cfg, statemachine.WithLogger(transitionLogger))
}

func drive(ctx context.Context, fleet *vehicle.Fleet, v *vehicle.Vehicle) error {
	for ctx.Err() == nil {
		fmt.Println(cli.BannerAutoWidth(describe(v), cli.AlignLeft)) //nolint:forbidigo

		available, err := fleet.Available(ctx, v)
		if err != nil {
			return err
		}

		choice, err := cli.Select("Event", append(available, fireSeveral, quit)...)
		if err != nil {
			return err
		}

		var events []string

		switch choice {
		case quit:
			done, err := cli.PromptConfirm("Park and quit")
			if err != nil {
				return err
			}

			if done {
				return nil
			}

			continue
		case fireSeveral:
			all := eventNames(fleet)

			if events, err = cli.MultiSelect("Events to fire together", all...); err != nil {
				return err
			}
		default:
			events = []string{choice}
		}

		if len(events) == 0 {
			continue
		}

		ok, err := fleet.Fire(ctx, v, events...)
		if err != nil {
			logger.Get(ctx).Error("transition failed", "events", events, "error", err)

			continue
		}

		if !ok {
			fmt.Printf("Could not fire %s: %s\n", strings.Join(events, ", "), fleet.Errors(v)) //nolint:forbidigo
		}
	}

	return ctx.Err()
}

func eventNames(fleet *vehicle.Fleet) []string {
	var names []string

	for _, machine := range fleet.Registry().Machines() {
		for _, event := range machine.Events() {
			names = append(names, event.Name())
		}
	}

	return names
}

func describe(v *vehicle.Vehicle) string {
	lines := []string{
		"Vehicle " + v.ID,
		fmt.Sprintf("state: %s  alarm: %s  seatbelt: %t", v.State, v.AlarmState, v.Seatbelt),
		fmt.Sprintf("time in transitions: %s", v.TimeUsed),
	}

	for _, entry := range v.LastEntries(3) { //nolint:mnd
		lines = append(lines, "  "+entry)
	}

	return strings.Join(lines, "\n")
}
