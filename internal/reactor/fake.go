package reactor

import (
	"sync"
	"time"
)

// FakeDevice is an in-memory Device used by tests. It is built on every
// platform. Each Submit call looks up a scripted or default outcome; tests
// drive pending/completion ordering explicitly via CompletePending.
type FakeDevice struct {
	mu      sync.Mutex
	pending map[uint64]pendingOp
	done    chan completion
	closed  bool

	// Handler, if set, computes the outcome for a submission. Return
	// ok=false to make the operation pending; call CompletePending later
	// to deliver its result.
	Handler func(op uint32, in []byte, out []byte, token uint64) (result SubmitResult, ok bool)
}

type pendingOp struct {
	op  uint32
	in  []byte
	out []byte
}

type completion struct {
	token  uint64
	result SubmitResult
}

// NewFakeDevice creates a FakeDevice that completes every submission
// immediately with a zero-length success unless a Handler is installed.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		pending: make(map[uint64]pendingOp),
		done:    make(chan completion, 1024),
	}
}

func (f *FakeDevice) Submit(op uint32, in []byte, out []byte, token uint64) (SubmitResult, bool) {
	if f.Handler != nil {
		result, ok := f.Handler(op, in, out, token)
		if !ok {
			f.mu.Lock()
			f.pending[token] = pendingOp{op: op, in: in, out: out}
			f.mu.Unlock()
		}
		return result, ok
	}
	return SubmitResult{BytesReturned: 0}, true
}

func (f *FakeDevice) Wait(timeout time.Duration) (uint64, SubmitResult, bool) {
	select {
	case c := <-f.done:
		return c.token, c.result, true
	case <-time.After(timeout):
		return 0, SubmitResult{}, false
	}
}

// CompletePending delivers the outcome for a token previously left pending
// by Handler, simulating the completion facility waking with it.
func (f *FakeDevice) CompletePending(token uint64, result SubmitResult) {
	f.mu.Lock()
	delete(f.pending, token)
	f.mu.Unlock()
	f.done <- completion{token: token, result: result}
}

// PendingOutput returns the output buffer registered for a still-pending
// token, so a test's Handler-driven completion can fill it before calling
// CompletePending.
func (f *FakeDevice) PendingOutput(token uint64) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[token].out
}

func (f *FakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeDevice) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
