// Command coopvmd is the cooperative VM daemon's entry point: thin glue
// wiring the configuration loader, the command-line surface, and the
// core Runtime together.
package main

import (
	"fmt"
	"os"

	"github.com/vmhostd/coopvm"
	"github.com/vmhostd/coopvm/internal/cliapp"
	"github.com/vmhostd/coopvm/internal/config"
	"github.com/vmhostd/coopvm/internal/constants"
	"github.com/vmhostd/coopvm/internal/logging"
	"github.com/vmhostd/coopvm/internal/reactor"
	"github.com/vmhostd/coopvm/internal/svc"
)

func main() {
	logging.Default().Infof("coopvmd starting")

	cmd := cliapp.New(runDaemon)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runDaemon loads configuration, opens the device, and drives the
// Runtime until stop is raised.
func runDaemon(configPath string, stop *svc.StopFlag) error {
	logger := logging.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("coopvmd: %w", err)
	}

	dev, err := reactor.OpenDevice(constants.DevicePath)
	if err != nil {
		return fmt.Errorf("coopvmd: open device: %w", err)
	}

	rt := coopvm.Open(dev, coopvm.Config{
		MemoryMB:       cfg.MemoryMB,
		VBLKBacking:    cfg.VBLKBacking,
		VBLKQueueDepth: cfg.VBLKQueueDepth,
		TickBudget:     cfg.TickBudget,
	}, logger)

	if err := rt.Start(); err != nil {
		return fmt.Errorf("coopvmd: start: %w", err)
	}

	// The daemon shuts down on whichever comes first: an external stop
	// request, or the Tick Loop exiting on its own because run_tick
	// failed (§7 treats persistent tick failure as fatal).
	var tickErr error
	select {
	case <-stop.Done():
	case tickErr = <-rt.Done():
		if tickErr != nil {
			logger.Errorf("coopvmd: tick loop terminated: %v", tickErr)
		}
	}

	if err := rt.Stop(); err != nil {
		return fmt.Errorf("coopvmd: stop: %w", err)
	}
	if tickErr != nil {
		return fmt.Errorf("coopvmd: fatal tick failure: %w", tickErr)
	}
	return nil
}
