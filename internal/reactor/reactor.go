// Package reactor multiplexes overlapped control operations to a kernel
// device through a completion facility, preserving per-request buffers
// through pending completion.
package reactor

import (
	"sync"
	"time"

	"github.com/vmhostd/coopvm/internal/constants"
)

// Request is one control-operation submission (§3 Request).
type Request struct {
	Op      uint32
	Input   []byte
	OutCap  int
	Prefill []byte // prefilled output buffer for in-direct operations

	reply chan Reply
}

// Reply is delivered exactly once to a Request's single-shot endpoint.
type Reply struct {
	Data []byte
	Err  error
}

// NewRequest builds a Request with its reply endpoint ready to receive.
func NewRequest(op uint32, input []byte, outCap int, prefill []byte) (*Request, <-chan Reply) {
	ch := make(chan Reply, 1)
	return &Request{Op: op, Input: input, OutCap: outCap, Prefill: prefill, reply: ch}, ch
}

// SubmitResult is the outcome of one control operation, as reported by a
// Device either immediately or via a later completion.
type SubmitResult struct {
	BytesReturned uint32
	Err           error
}

// Device is the low-level surface the Reactor drives. A real implementation
// opens the kernel device with overlapped semantics and binds it to a host
// completion facility; a fake implementation (used in tests) simulates both
// without any OS dependency.
//
// Submit posts one control operation tagged with token. If the device can
// answer synchronously, ok is true and result is final. If the device
// reports the operation is pending, ok is false; the eventual outcome
// arrives from Wait carrying the same token.
type Device interface {
	Submit(op uint32, in []byte, out []byte, token uint64) (result SubmitResult, ok bool)
	Wait(timeout time.Duration) (token uint64, result SubmitResult, ok bool)
	Close() error
}

// inflight is the in-flight record (§3): the stable handle tying one
// outstanding request to its per-request memory and reply endpoint.
type inflight struct {
	req *Request
	out []byte
}

// Reactor owns a Device handle and demultiplexes completions back to
// per-request reply channels.
type Reactor struct {
	dev Device

	submitCh chan *Request
	wg       sync.WaitGroup

	mu       sync.Mutex
	nextTok  uint64
	inflight map[uint64]*inflight

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts a Reactor worker over the given Device.
func New(dev Device) *Reactor {
	r := &Reactor{
		dev:      dev,
		submitCh: make(chan *Request, constants.ReactorSubmitQueueDepth),
		inflight: make(map[uint64]*inflight),
		closed:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Submit enqueues req on the Reactor's internal bounded channel. It does
// not block on completion; the caller receives the reply from the channel
// returned by NewRequest.
func (r *Reactor) Submit(req *Request) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}
	select {
	case r.submitCh <- req:
		return nil
	case <-r.closed:
		return ErrClosed
	}
}

// Close stops accepting new submissions and waits for the worker to finish
// any post already in progress. Outstanding completions that arrive after
// the worker exits are dropped silently — acceptable because the caller is
// also expected to close the underlying device, which abandons pending
// kernel-side work.
func (r *Reactor) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		close(r.submitCh)
		r.wg.Wait()
		err = r.dev.Close()
	})
	return err
}

func (r *Reactor) run() {
	defer r.wg.Done()
	for {
		r.postPhase()
		r.drainPhase()

		select {
		case <-r.closed:
			if len(r.submitCh) == 0 {
				return
			}
		default:
		}
	}
}

func (r *Reactor) postPhase() {
	select {
	case req, ok := <-r.submitCh:
		if !ok {
			return
		}
		r.post(req)
	case <-time.After(constants.ReactorSubmitTimeout):
	}
}

func (r *Reactor) post(req *Request) {
	out := make([]byte, req.OutCap)
	if len(req.Prefill) > 0 {
		copy(out, req.Prefill)
	}

	r.mu.Lock()
	token := r.nextTok
	r.nextTok++
	r.inflight[token] = &inflight{req: req, out: out}
	r.mu.Unlock()

	result, ok := r.dev.Submit(req.Op, req.Input, out, token)
	if ok {
		r.complete(token, result)
	}
	// else: ownership of the in-flight record transfers to the
	// completion facility until Wait() reports it in drainPhase.
}

func (r *Reactor) drainPhase() {
	token, result, ok := r.dev.Wait(constants.ReactorDrainTimeout)
	if !ok {
		return
	}
	r.complete(token, result)
}

func (r *Reactor) complete(token uint64, result SubmitResult) {
	r.mu.Lock()
	in, ok := r.inflight[token]
	if ok {
		delete(r.inflight, token)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	reply := Reply{Err: result.Err}
	if result.Err == nil {
		n := result.BytesReturned
		if int(n) > len(in.out) {
			n = uint32(len(in.out))
		}
		reply.Data = in.out[:n]
	}

	select {
	case in.req.reply <- reply:
	default:
		// Closed or already-delivered endpoint: per §9, late completions
		// on a timed-out caller are a no-op.
	}
}

// InflightCount reports the number of in-flight records. Exposed for tests
// verifying the Reactor does not leak containers.
func (r *Reactor) InflightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// ErrClosed is returned by Submit once the Reactor has been closed.
var ErrClosed = closedError{}

type closedError struct{}

func (closedError) Error() string { return "reactor: closed" }
