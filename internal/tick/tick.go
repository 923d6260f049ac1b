// Package tick implements the Tick Loop (§4.G): the daemon's top-level
// driver, alternating run_tick calls with periodic Shared Ring and Queue
// servicing, until told to stop.
package tick

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/vmhostd/coopvm/internal/constants"
)

// Ticker is the subset of the Device Facade the loop needs.
type Ticker interface {
	RunTick(budget uint32) error
}

// Pumper services the Shared Ring; Drainer services the Queue. Both are
// cheap to call when there is nothing to do.
type Pumper interface {
	Pump()
}

type Drainer interface {
	DrainCompletions()
}

// Logger is the narrow logging surface the loop needs.
type Logger interface {
	Errorf(format string, args ...any)
}

// Loop owns one iteration of the daemon's cooperative main loop.
type Loop struct {
	ticker  Ticker
	pumper  Pumper
	drainer Drainer
	logger  Logger
	budget  uint32

	stop atomic.Bool
}

// New builds a Loop with the given tick budget.
func New(ticker Ticker, pumper Pumper, drainer Drainer, logger Logger, budget uint32) *Loop {
	return &Loop{ticker: ticker, pumper: pumper, drainer: drainer, logger: logger, budget: budget}
}

// Stop requests the loop exit at the next iteration boundary.
func (l *Loop) Stop() {
	l.stop.Store(true)
}

// Run drives the loop until Stop is called or run_tick fails. A failing
// run_tick is fatal (§7): Run logs it and returns the error to its
// caller rather than continuing, mirroring the reference daemon's
// `dev.run_tick_sync(...)?` propagating straight out of its main loop.
// Callers typically run it on a dedicated goroutine and shut the daemon
// down when it returns a non-nil error.
func (l *Loop) Run() error {
	lastPump := time.Now()
	for !l.stop.Load() {
		if err := l.ticker.RunTick(l.budget); err != nil {
			l.logger.Errorf("tick loop: run_tick failed: %v", err)
			return err
		}

		if time.Since(lastPump) >= constants.PumpMinInterval {
			l.pumper.Pump()
			l.drainer.DrainCompletions()
			lastPump = time.Now()
		}

		runtime.Gosched()
	}
	return nil
}
