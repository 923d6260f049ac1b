// Package svc wraps Windows service-controller install/uninstall and
// lifecycle signalling (§6, external collaborator). The core's only
// coupling to it is a stop flag it polls; install/uninstall and SCM
// dispatch never touch the daemon's subsystems directly.
package svc

const (
	// Name is the service name registered with the SCM.
	Name = "coopvmd"

	// DisplayName is the service's friendly name.
	DisplayName = "Cooperative VM Daemon"

	// EventSource is the Windows event log source used for fatal errors
	// surfaced while running under the SCM.
	EventSource = "coopvmd"
)

// RunFunc is the daemon's main loop. It must return once StopFlag is
// observed; the SCM dispatcher runs it on its own goroutine and reports
// the service as Stopped once it returns, or 5 seconds after a Stop or
// Shutdown request if it has not returned by then.
type RunFunc func(stopFlag *StopFlag) error

// StopFlag is a polled, concurrency-safe stop signal shared between a
// service controller and the core's main loop.
type StopFlag struct {
	ch chan struct{}
}

// NewStopFlag returns a StopFlag that has not yet been raised.
func NewStopFlag() *StopFlag {
	return &StopFlag{ch: make(chan struct{})}
}

// Raise signals the flag. Safe to call more than once.
func (f *StopFlag) Raise() {
	select {
	case <-f.ch:
	default:
		close(f.ch)
	}
}

// Raised reports whether Raise has been called.
func (f *StopFlag) Raised() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the flag is raised, for use in a
// select alongside other wakeups.
func (f *StopFlag) Done() <-chan struct{} {
	return f.ch
}
