//go:build windows

package svc

import (
	"fmt"
	"os"
	"time"

	wsvc "golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/eventlog"
	"golang.org/x/sys/windows/svc/mgr"
)

// Install registers the daemon with the SCM, launched with
// --service-run, started automatically (delayed) at boot.
func Install(binPath string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("svc: connect to SCM: %w", err)
	}
	defer m.Disconnect()

	if s, err := m.OpenService(Name); err == nil {
		s.Close()
		return fmt.Errorf("svc: %s already installed", Name)
	}

	s, err := m.CreateService(Name, binPath, mgr.Config{
		DisplayName:      DisplayName,
		StartType:        mgr.StartAutomatic,
		DelayedAutoStart: true,
	}, "--service-run")
	if err != nil {
		return fmt.Errorf("svc: create service: %w", err)
	}
	defer s.Close()

	if err := eventlog.InstallAsEventCreate(Name, eventlog.Error|eventlog.Warning|eventlog.Info); err != nil {
		// Non-fatal: the service is installed either way.
		fmt.Fprintf(os.Stderr, "svc: event log registration failed: %v\n", err)
	}
	return nil
}

// Uninstall stops (if running) and removes the service, and deregisters
// its event log source.
func Uninstall() error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("svc: connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(Name)
	if err != nil {
		return fmt.Errorf("svc: open service: %w", err)
	}
	defer s.Close()

	if status, err := s.Query(); err == nil && status.State != wsvc.Stopped {
		s.Control(wsvc.Stop)
	}
	if err := s.Delete(); err != nil {
		return fmt.Errorf("svc: delete service: %w", err)
	}
	_ = eventlog.Remove(Name)
	return nil
}

// RunAsService dispatches to the SCM and blocks until the service stops.
// Call only after confirming wsvc.IsWindowsService (or an equivalent
// --service-run flag check); the SCM expects this call within a few
// seconds of process start.
func RunAsService(run RunFunc) error {
	return wsvc.Run(Name, &handler{run: run})
}

type handler struct {
	run RunFunc
}

func (h *handler) Execute(args []string, r <-chan wsvc.ChangeRequest, changes chan<- wsvc.Status) (bool, uint32) {
	elog, err := eventlog.Open(Name)
	if err == nil {
		defer elog.Close()
	}

	const accepted = wsvc.AcceptStop | wsvc.AcceptShutdown
	changes <- wsvc.Status{State: wsvc.StartPending}

	stop := NewStopFlag()
	done := make(chan error, 1)
	go func() { done <- h.run(stop) }()

	changes <- wsvc.Status{State: wsvc.Running, Accepts: accepted}

loop:
	for {
		select {
		case err := <-done:
			if err != nil && elog != nil {
				elog.Error(1, fmt.Sprintf("fatal: %v", err))
			}
			break loop
		case req := <-r:
			switch req.Cmd {
			case wsvc.Interrogate:
				changes <- req.CurrentStatus
			case wsvc.Stop, wsvc.Shutdown:
				changes <- wsvc.Status{State: wsvc.StopPending}
				stop.Raise()
				select {
				case <-done:
				case <-time.After(5 * time.Second):
				}
				break loop
			}
		}
	}

	changes <- wsvc.Status{State: wsvc.Stopped}
	return false, 0
}

// IsWindowsService reports whether the process was started by the SCM.
func IsWindowsService() bool {
	is, err := wsvc.IsWindowsService()
	return err == nil && is
}
