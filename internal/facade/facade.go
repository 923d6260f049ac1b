// Package facade provides a thin typed synchronous surface over the
// Reactor: it encodes request payloads, decodes replies, and gives every
// operation a deadline.
package facade

import (
	"encoding/binary"
	"errors"
	"time"
	"unicode/utf16"

	"github.com/vmhostd/coopvm/internal/constants"
	"github.com/vmhostd/coopvm/internal/layout"
	"github.com/vmhostd/coopvm/internal/reactor"
)

// ErrTimeout is returned when a synchronous call's deadline elapses with
// no reply. The underlying in-flight record is not cancelled; per §9 its
// buffers are released only when the (now ignored) reply eventually
// arrives.
var ErrTimeout = errors.New("facade: timeout")

// Submitter is the subset of *reactor.Reactor the facade depends on.
type Submitter interface {
	Submit(req *reactor.Request) error
}

// Client is a stateless wrapper around a Reactor.
type Client struct {
	r Submitter
}

// New builds a Client over the given Reactor.
func New(r Submitter) *Client {
	return &Client{r: r}
}

func (c *Client) call(op uint32, input []byte, outCap int, prefill []byte, deadline time.Duration) ([]byte, error) {
	req, reply := reactor.NewRequest(op, input, outCap, prefill)
	if err := c.r.Submit(req); err != nil {
		return nil, err
	}
	select {
	case rep := <-reply:
		return rep.Data, rep.Err
	case <-time.After(deadline):
		return nil, ErrTimeout
	}
}

// MapShared maps the shared window once per daemon run.
func (c *Client) MapShared(pages uint32) (layout.MapInfo, error) {
	in := make([]byte, 4)
	binary.LittleEndian.PutUint32(in, pages)
	out, err := c.call(layout.OpMapShared, in, 32, nil, constants.MapSharedDeadline)
	if err != nil {
		return layout.MapInfo{}, err
	}
	return layout.DecodeMapInfo(out), nil
}

// RunTick gives the kernel/guest budget units of cooperative progress.
func (c *Client) RunTick(budget uint32) error {
	in := make([]byte, 4)
	binary.LittleEndian.PutUint32(in, budget)
	_, err := c.call(layout.OpRunTick, in, 0, nil, constants.RunTickDeadline)
	return err
}

// VBLKSetBacking opens/rebinds the backing store at path.
func (c *Client) VBLKSetBacking(path string) error {
	units := utf16.Encode([]rune(path))
	in := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(in[i*2:], u)
	}
	_, err := c.call(layout.OpVBLKSetBacking, in, 0, nil, constants.VBLKSetBackingDeadline)
	return err
}

// VBLKRead reads length bytes at lba. Length must be a positive multiple
// of 512; callers (the VBLK Queue / Shared Ring) are responsible for
// validating this before calling.
func (c *Client) VBLKRead(lba uint64, length uint32) ([]byte, error) {
	in := make([]byte, 12)
	binary.LittleEndian.PutUint64(in[0:8], lba)
	binary.LittleEndian.PutUint32(in[8:12], length)
	return c.call(layout.OpVBLKRead, in, int(length), nil, constants.VBLKReadDeadline)
}

// VBLKWrite writes payload at lba. This is the direct-in variant: the
// kernel reads the prefilled output buffer as its input.
func (c *Client) VBLKWrite(lba uint64, payload []byte) error {
	in := make([]byte, 12)
	binary.LittleEndian.PutUint64(in[0:8], lba)
	binary.LittleEndian.PutUint32(in[8:12], uint32(len(payload)))
	_, err := c.call(layout.OpVBLKWrite, in, len(payload), payload, constants.VBLKWriteDeadline)
	return err
}

// VTTYPush pushes data to the virtual TTY and returns the number of bytes
// actually accepted.
func (c *Client) VTTYPush(data []byte) (uint32, error) {
	out, err := c.call(layout.OpVTTYPush, data, 4, nil, constants.TTYPushDeadline)
	if err != nil {
		return 0, err
	}
	if len(out) < 4 {
		return 0, nil
	}
	return binary.LittleEndian.Uint32(out), nil
}

// VTTYPull pulls up to cap bytes from the virtual TTY. A zero-length
// result means no data is available right now.
func (c *Client) VTTYPull(cap uint32) ([]byte, error) {
	return c.call(layout.OpVTTYPull, nil, int(cap), nil, constants.TTYPullDeadline)
}
