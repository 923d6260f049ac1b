package coopvm

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/vmhostd/coopvm/internal/backingstore"
	"github.com/vmhostd/coopvm/internal/layout"
	"github.com/vmhostd/coopvm/internal/reactor"
)

// MockDevice is an in-memory implementation of the reactor.Device
// interface. It answers every control operation from §6 synchronously
// (always ok=true, never pending), backing VBLK reads/writes with an
// in-memory store and VTTY push/pull with plain byte queues. Library
// consumers can use it to exercise Runtime without a real kernel driver.
type MockDevice struct {
	mu sync.Mutex

	backing     *backingstore.Memory
	backingPath string

	guestOutput []byte // bytes queued for the next vtty_pull
	hostInput   []byte // bytes accepted by the last vtty_push calls

	mapInfo     layout.MapInfo
	closed      bool
	failRunTick bool
}

// errSimulatedRunTickFailure is what a MockDevice reports once
// FailRunTick(true) has been called, letting tests exercise the Tick
// Loop's fatal-failure path without a real kernel device.
var errSimulatedRunTickFailure = errors.New("mock device: simulated run_tick failure")

// NewMockDevice creates a MockDevice with a backing store of the given
// size in bytes, used to service VBLK reads and writes.
func NewMockDevice(backingSize int64) *MockDevice {
	return &MockDevice{
		backing: backingstore.New(backingSize),
		mapInfo: layout.MapInfo{
			HostBase:   0x10000,
			KernelBase: 0x20000,
			Size:       4096,
			Version:    1,
		},
	}
}

// SetMapInfo overrides the descriptor returned by map_shared. Tests that
// exercise the Shared Ring (which reads real memory at HostBase) must
// point this at an actual allocation before Start-ing a Runtime.
func (d *MockDevice) SetMapInfo(info layout.MapInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mapInfo = info
}

// FailRunTick makes every subsequent run_tick operation fail, so tests
// can drive the Tick Loop's fatal-failure path.
func (d *MockDevice) FailRunTick(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failRunTick = fail
}

// QueueGuestOutput appends bytes a subsequent vtty_pull will return.
func (d *MockDevice) QueueGuestOutput(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.guestOutput = append(d.guestOutput, data...)
}

// HostInput returns everything accepted via vtty_push so far.
func (d *MockDevice) HostInput() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.hostInput...)
}

// BackingPath returns the path last set via vblk_set_backing.
func (d *MockDevice) BackingPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backingPath
}

// Submit implements reactor.Device.
func (d *MockDevice) Submit(op uint32, in []byte, out []byte, token uint64) (reactor.SubmitResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch op {
	case layout.OpMapShared:
		binary.LittleEndian.PutUint64(out[0:8], d.mapInfo.HostBase)
		binary.LittleEndian.PutUint64(out[8:16], d.mapInfo.KernelBase)
		binary.LittleEndian.PutUint64(out[16:24], d.mapInfo.Size)
		binary.LittleEndian.PutUint32(out[24:28], d.mapInfo.Version)
		binary.LittleEndian.PutUint32(out[28:32], d.mapInfo.Flags)
		return reactor.SubmitResult{BytesReturned: 32}, true

	case layout.OpRunTick:
		if d.failRunTick {
			return reactor.SubmitResult{Err: errSimulatedRunTickFailure}, true
		}
		return reactor.SubmitResult{}, true

	case layout.OpVBLKSetBacking:
		units := make([]uint16, len(in)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(in[i*2:])
		}
		d.backingPath = string(utf16.Decode(units))
		return reactor.SubmitResult{}, true

	case layout.OpVBLKRead:
		lba := binary.LittleEndian.Uint64(in[0:8])
		length := binary.LittleEndian.Uint32(in[8:12])
		n, _ := d.backing.ReadAt(out[:length], int64(lba)*512)
		return reactor.SubmitResult{BytesReturned: uint32(n)}, true

	case layout.OpVBLKWrite:
		lba := binary.LittleEndian.Uint64(in[0:8])
		n, _ := d.backing.WriteAt(out, int64(lba)*512)
		return reactor.SubmitResult{BytesReturned: uint32(n)}, true

	case layout.OpVTTYPush:
		d.hostInput = append(d.hostInput, in...)
		binary.LittleEndian.PutUint32(out, uint32(len(in)))
		return reactor.SubmitResult{BytesReturned: 4}, true

	case layout.OpVTTYPull:
		n := len(d.guestOutput)
		if n > len(out) {
			n = len(out)
		}
		copy(out[:n], d.guestOutput[:n])
		d.guestOutput = d.guestOutput[n:]
		return reactor.SubmitResult{BytesReturned: uint32(n)}, true

	default:
		return reactor.SubmitResult{}, true
	}
}

// Wait implements reactor.Device. MockDevice never leaves an operation
// pending, so Wait always times out.
func (d *MockDevice) Wait(timeout time.Duration) (uint64, reactor.SubmitResult, bool) {
	time.Sleep(timeout)
	return 0, reactor.SubmitResult{}, false
}

// Close implements reactor.Device.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (d *MockDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

var _ reactor.Device = (*MockDevice)(nil)
