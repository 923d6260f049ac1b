//go:build windows

package reactor

import (
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// completionKeyIOCTL is the fixed completion key all overlapped control
// operations are bound to.
const completionKeyIOCTL = 1

// container is the per-request heap-stable handle (§9 Design Notes): its
// first field is the overlapped structure at a fixed address, so the
// pointer GetQueuedCompletionStatus hands back can be reinterpreted as a
// *container. The token rides along so the Reactor's own in-flight map
// does not need a second lookup table here.
type container struct {
	ov    windows.Overlapped
	token uint64
}

// WindowsDevice drives the kernel device through real overlapped I/O and a
// Windows completion port.
type WindowsDevice struct {
	handle windows.Handle
	iocp   windows.Handle

	mu         sync.Mutex
	containers map[*container]struct{} // keeps containers reachable for the GC while pending
}

// OpenDevice opens path with overlapped semantics and binds it to a fresh
// completion port under completionKeyIOCTL.
func OpenDevice(path string) (*WindowsDevice, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(
		p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return nil, err
	}

	iocp, err := windows.CreateIoCompletionPort(h, 0, completionKeyIOCTL, 0)
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}

	return &WindowsDevice{
		handle:     h,
		iocp:       iocp,
		containers: make(map[*container]struct{}),
	}, nil
}

func (d *WindowsDevice) Submit(op uint32, in []byte, out []byte, token uint64) (SubmitResult, bool) {
	c := &container{token: token}
	d.mu.Lock()
	d.containers[c] = struct{}{}
	d.mu.Unlock()

	var bytesReturned uint32
	var inPtr, outPtr *byte
	if len(in) > 0 {
		inPtr = &in[0]
	}
	if len(out) > 0 {
		outPtr = &out[0]
	}

	err := windows.DeviceIoControl(d.handle, op, inPtr, uint32(len(in)), outPtr, uint32(len(out)), &bytesReturned, &c.ov)
	runtime.KeepAlive(in)
	runtime.KeepAlive(out)

	if err == nil {
		d.release(c)
		return SubmitResult{BytesReturned: bytesReturned}, true
	}
	if err == windows.ERROR_IO_PENDING {
		// Ownership transfers to the completion port until Wait recovers
		// it via the overlapped pointer.
		return SubmitResult{}, false
	}

	d.release(c)
	return SubmitResult{Err: err}, true
}

func (d *WindowsDevice) release(c *container) {
	d.mu.Lock()
	delete(d.containers, c)
	d.mu.Unlock()
}

func (d *WindowsDevice) Wait(timeout time.Duration) (uint64, SubmitResult, bool) {
	var bytesReturned uint32
	var key uintptr
	var ov *windows.Overlapped

	ms := uint32(timeout / time.Millisecond)
	if ms == 0 && timeout > 0 {
		ms = 1
	}

	err := windows.GetQueuedCompletionStatus(d.iocp, &bytesReturned, &key, &ov, ms)
	if ov == nil {
		return 0, SubmitResult{}, false
	}

	c := (*container)(unsafe.Pointer(ov))
	d.release(c)

	result := SubmitResult{BytesReturned: bytesReturned}
	if err != nil {
		result.Err = err
	}
	return c.token, result, true
}

func (d *WindowsDevice) Close() error {
	windows.CloseHandle(d.iocp)
	return windows.CloseHandle(d.handle)
}
