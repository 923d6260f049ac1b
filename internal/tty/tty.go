// Package tty bridges host stdio to the virtual TTY device (§4.F): one
// goroutine streams stdin in through vtty_push, another streams vtty_pull
// output to stdout. Both run until a shared stop flag is set.
package tty

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmhostd/coopvm/internal/constants"
)

// Pusher is the subset of the Device Facade the input streamer needs.
type Pusher interface {
	VTTYPush(data []byte) (uint32, error)
}

// Puller is the subset of the Device Facade the output streamer needs.
type Puller interface {
	VTTYPull(cap uint32) ([]byte, error)
}

// Logger is the narrow logging surface the bridge needs.
type Logger interface {
	Warnf(format string, args ...any)
}

// Bridge owns the two streamer goroutines and their shared stop flag.
type Bridge struct {
	in  io.Reader
	out io.Writer

	pusher Pusher
	puller Puller
	logger Logger

	stop    atomic.Bool
	wg      sync.WaitGroup
	started bool
	restore func()

	// rawStdin is overridden in tests to avoid touching the real
	// process's stdin; production callers get RawStdin via New.
	rawStdin func() (func(), error)
}

// New builds a Bridge reading from in and writing to out.
func New(in io.Reader, out io.Writer, pusher Pusher, puller Puller, logger Logger) *Bridge {
	return &Bridge{in: in, out: out, pusher: pusher, puller: puller, logger: logger, rawStdin: RawStdin}
}

// Start puts the process's stdin into raw mode (a no-op if os.Stdin isn't
// a terminal, whatever reader the Bridge was built with) and launches the
// input and output streamer goroutines.
func (b *Bridge) Start() {
	if b.started {
		return
	}
	b.started = true

	restore, err := b.rawStdin()
	if err != nil {
		if b.logger != nil {
			b.logger.Warnf("tty: failed to put stdin in raw mode: %v", err)
		}
		restore = func() {}
	}
	b.restore = restore

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.runInput()
	}()
	go func() {
		defer b.wg.Done()
		b.runOutput()
	}()
}

// Stop signals both streamers, waits for them to exit, and restores
// stdin's original terminal mode.
func (b *Bridge) Stop() {
	b.stop.Store(true)
	b.wg.Wait()
	if b.restore != nil {
		b.restore()
	}
}

// runInput reads 4 KiB chunks from stdin and pushes them to the guest,
// retrying a chunk across multiple vtty_push calls until fully accepted.
func (b *Bridge) runInput() {
	buf := make([]byte, constants.TTYChunkSize)
	for !b.stop.Load() {
		n, err := b.in.Read(buf)
		if n > 0 {
			off := 0
			for off < n {
				written, perr := b.pusher.VTTYPush(buf[off:n])
				switch {
				case perr != nil:
					time.Sleep(constants.TTYErrorSleep)
				case written > 0:
					off += int(written)
				default:
					time.Sleep(constants.TTYZeroAcceptSleep)
				}
				if b.stop.Load() {
					return
				}
			}
		}
		if err == io.EOF {
			time.Sleep(constants.TTYEOFSleep)
			continue
		}
		if err != nil {
			time.Sleep(constants.TTYErrorSleep)
		}
	}
}

// runOutput pulls available guest output and writes it to stdout. The
// pull call's own deadline paces the loop; an empty result needs no sleep.
func (b *Bridge) runOutput() {
	for !b.stop.Load() {
		data, err := b.puller.VTTYPull(constants.TTYPullCapacity)
		if err == nil && len(data) > 0 {
			_, _ = b.out.Write(data)
			if f, ok := b.out.(interface{ Flush() error }); ok {
				_ = f.Flush()
			}
		}
	}
}
