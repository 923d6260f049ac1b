// Package coopvm wires the daemon's subsystems — the IOCP Reactor, the
// Device Facade, the VBLK Queue and Shared Ring, the TTY Bridge, and the
// Tick Loop — into one Runtime, and provides the structured Error type
// and Metrics/Observer surface shared across them.
package coopvm

import (
	"os"
	"unsafe"

	"github.com/vmhostd/coopvm/internal/facade"
	"github.com/vmhostd/coopvm/internal/layout"
	"github.com/vmhostd/coopvm/internal/logging"
	"github.com/vmhostd/coopvm/internal/reactor"
	"github.com/vmhostd/coopvm/internal/tick"
	"github.com/vmhostd/coopvm/internal/tty"
	"github.com/vmhostd/coopvm/internal/vblk"
)

// Config holds the parameters needed to bring up a Runtime, mirroring
// the daemon's YAML configuration file (memory_mb, vblk_backing,
// vblk_queue_depth, tick_budget).
type Config struct {
	// MemoryMB sizes the shared window requested from map_shared.
	MemoryMB uint32

	// VBLKBacking is the path to the backing store the kernel driver
	// opens on vblk_set_backing.
	VBLKBacking string

	// VBLKQueueDepth bounds the VBLK Queue's inflight submissions.
	VBLKQueueDepth int

	// TickBudget is the cooperative progress budget passed to run_tick.
	TickBudget uint32
}

// DefaultConfig returns a Config with the spec's default tunables.
func DefaultConfig() Config {
	return Config{
		MemoryMB:       64,
		VBLKQueueDepth: DefaultQueueDepth,
		TickBudget:     100,
	}
}

// Runtime owns one daemon session: a Reactor driving a single opened
// Device, the typed Facade over it, the VBLK Queue and Shared Ring, the
// TTY Bridge, and the Tick Loop that drives all of them forward.
type Runtime struct {
	cfg     Config
	logger  *logging.Logger
	metrics *Metrics

	dev     reactor.Device
	reactor *reactor.Reactor
	facade  *facade.Client

	queue  *vblk.Queue
	ring   *vblk.Ring
	window *layout.Window
	bridge *tty.Bridge
	loop   *tick.Loop
	done   chan error
}

// Open wires a Runtime around an already-opened Device. Production
// callers pass the result of reactor.OpenDevice; tests pass a
// MockDevice.
func Open(dev reactor.Device, cfg Config, logger *logging.Logger) *Runtime {
	if logger == nil {
		logger = logging.Default()
	}
	r := reactor.New(dev)
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: NewMetrics(),
		dev:     dev,
		reactor: r,
		facade:  facade.New(r),
	}
}

// Start binds the backing store, maps the shared window, and launches
// the TTY Bridge and Tick Loop. It blocks until the shared window is
// mapped and the backing store is bound; the Tick Loop itself runs on
// its own goroutine.
func (rt *Runtime) Start() error {
	if err := rt.facade.VBLKSetBacking(rt.cfg.VBLKBacking); err != nil {
		return WrapError("runtime", "vblk_set_backing", err)
	}

	pages := rt.cfg.MemoryMB * 1024 * 1024 / 4096
	info, err := rt.facade.MapShared(pages)
	if err != nil {
		return WrapError("runtime", "map_shared", err)
	}
	rt.window = layout.NewWindow(mapWindowBytes(info))
	rt.logger.Infof("mapped shared window: host_base=0x%x size=%d", info.HostBase, info.Size)

	rt.queue = vblk.NewQueue(rt.cfg.VBLKQueueDepth, rt.facade, rt.logger)
	rt.ring = vblk.NewRing(rt.facade)
	rt.bridge = tty.New(os.Stdin, os.Stdout, rt.facade, rt.facade, rt.logger)
	rt.loop = tick.New(rt.facade, ringPumper{ring: rt.ring, window: rt.window}, rt.queue, rt.logger, rt.cfg.TickBudget)

	rt.bridge.Start()

	rt.done = make(chan error, 1)
	go func() {
		rt.done <- rt.loop.Run()
	}()
	return nil
}

// Done returns a channel that receives the Tick Loop's exit error once it
// stops: nil after a clean Stop, non-nil if run_tick failed (§7 treats
// persistent tick failure as fatal and the daemon must shut down). Callers
// should select on Done alongside their own stop signal and call Stop as
// soon as either fires.
func (rt *Runtime) Done() <-chan error {
	return rt.done
}

// Stop halts the Tick Loop and TTY Bridge and closes the Reactor (and
// through it, the Device). Safe to call after the Tick Loop has already
// exited on its own (e.g. following a fatal run_tick failure observed via
// Done).
func (rt *Runtime) Stop() error {
	if rt.loop != nil {
		rt.loop.Stop()
	}
	if rt.bridge != nil {
		rt.bridge.Stop()
	}
	rt.metrics.Stop()
	return rt.reactor.Close()
}

// Metrics returns the Runtime's metrics.
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// MetricsSnapshot returns a point-in-time snapshot of the Runtime's
// metrics.
func (rt *Runtime) MetricsSnapshot() MetricsSnapshot { return rt.metrics.Snapshot() }

// Facade exposes the typed Device Facade client for callers that need
// direct access beyond what the Queue/Ring/Bridge/Loop wire up.
func (rt *Runtime) Facade() *facade.Client { return rt.facade }

// ringPumper adapts a *vblk.Ring bound to a specific window into the
// Tick Loop's no-argument Pumper interface.
type ringPumper struct {
	ring   *vblk.Ring
	window *layout.Window
}

func (p ringPumper) Pump() { p.ring.Pump(p.window) }

// mapWindowBytes turns the host-visible base address and size returned
// by map_shared into a Go byte slice. The driver has already mapped this
// region into the daemon's address space; this is a view over memory we
// do not own, not a fresh allocation.
func mapWindowBytes(info layout.MapInfo) []byte {
	if info.HostBase == 0 || info.Size == 0 {
		return make([]byte, 0)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(info.HostBase))), info.Size)
}
