package facade

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/vmhostd/coopvm/internal/layout"
	"github.com/vmhostd/coopvm/internal/reactor"
)

func newTestClient(t *testing.T, handler func(op uint32, in, out []byte) (reactor.SubmitResult, bool)) (*Client, *reactor.FakeDevice, *reactor.Reactor) {
	t.Helper()
	dev := reactor.NewFakeDevice()
	dev.Handler = func(op uint32, in, out []byte, token uint64) (reactor.SubmitResult, bool) {
		return handler(op, in, out)
	}
	r := reactor.New(dev)
	t.Cleanup(func() { r.Close() })
	return New(r), dev, r
}

func TestMapShared_EncodesPagesAndDecodesDescriptor(t *testing.T) {
	var gotOp uint32
	var gotPages uint32
	client, _, _ := newTestClient(t, func(op uint32, in, out []byte) (reactor.SubmitResult, bool) {
		gotOp = op
		gotPages = binary.LittleEndian.Uint32(in)
		binary.LittleEndian.PutUint64(out[0:8], 0x1000)
		binary.LittleEndian.PutUint64(out[8:16], 0x2000)
		binary.LittleEndian.PutUint64(out[16:24], 4096)
		binary.LittleEndian.PutUint32(out[24:28], 1)
		binary.LittleEndian.PutUint32(out[28:32], 0)
		return reactor.SubmitResult{BytesReturned: 32}, true
	})

	info, err := client.MapShared(16)
	if err != nil {
		t.Fatalf("MapShared: %v", err)
	}
	if gotOp != layout.OpMapShared {
		t.Fatalf("op = %#x, want %#x", gotOp, layout.OpMapShared)
	}
	if gotPages != 16 {
		t.Fatalf("pages = %d, want 16", gotPages)
	}
	if info.HostBase != 0x1000 || info.KernelBase != 0x2000 || info.Size != 4096 {
		t.Fatalf("unexpected MapInfo: %+v", info)
	}
}

func TestRunTick_EncodesBudget(t *testing.T) {
	var gotBudget uint32
	client, _, _ := newTestClient(t, func(op uint32, in, out []byte) (reactor.SubmitResult, bool) {
		gotBudget = binary.LittleEndian.Uint32(in)
		return reactor.SubmitResult{}, true
	})
	if err := client.RunTick(250); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if gotBudget != 250 {
		t.Fatalf("budget = %d, want 250", gotBudget)
	}
}

func TestVBLKSetBacking_EncodesUTF16LENoTerminator(t *testing.T) {
	var gotIn []byte
	client, _, _ := newTestClient(t, func(op uint32, in, out []byte) (reactor.SubmitResult, bool) {
		gotIn = append([]byte(nil), in...)
		return reactor.SubmitResult{}, true
	})
	if err := client.VBLKSetBacking("C:\\vm\\disk.img"); err != nil {
		t.Fatalf("VBLKSetBacking: %v", err)
	}
	if len(gotIn) != len("C:\\vm\\disk.img")*2 {
		t.Fatalf("encoded length = %d, want %d", len(gotIn), len("C:\\vm\\disk.img")*2)
	}
	if gotIn[len(gotIn)-1] == 0 && gotIn[len(gotIn)-2] == 0 {
		t.Fatalf("unexpected trailing zero code unit")
	}
}

func TestVBLKRead_ReturnsPayload(t *testing.T) {
	client, _, _ := newTestClient(t, func(op uint32, in, out []byte) (reactor.SubmitResult, bool) {
		for i := range out {
			out[i] = 0xAB
		}
		return reactor.SubmitResult{BytesReturned: uint32(len(out))}, true
	})
	data, err := client.VBLKRead(0x100, 512)
	if err != nil {
		t.Fatalf("VBLKRead: %v", err)
	}
	if len(data) != 512 || data[0] != 0xAB {
		t.Fatalf("unexpected data: len=%d first=%#x", len(data), data[0])
	}
}

func TestVBLKWrite_PrefillsOutputBuffer(t *testing.T) {
	var gotPrefill []byte
	client, _, _ := newTestClient(t, func(op uint32, in, out []byte) (reactor.SubmitResult, bool) {
		gotPrefill = append([]byte(nil), out...)
		return reactor.SubmitResult{}, true
	})
	payload := []byte{1, 2, 3, 4}
	if err := client.VBLKWrite(0x200, payload); err != nil {
		t.Fatalf("VBLKWrite: %v", err)
	}
	if string(gotPrefill) != string(payload) {
		t.Fatalf("prefill = %v, want %v", gotPrefill, payload)
	}
}

func TestVTTYPush_DecodesAcceptedCount(t *testing.T) {
	client, _, _ := newTestClient(t, func(op uint32, in, out []byte) (reactor.SubmitResult, bool) {
		binary.LittleEndian.PutUint32(out, uint32(len(in)))
		return reactor.SubmitResult{BytesReturned: 4}, true
	})
	n, err := client.VTTYPush([]byte("hello"))
	if err != nil {
		t.Fatalf("VTTYPush: %v", err)
	}
	if n != 5 {
		t.Fatalf("accepted = %d, want 5", n)
	}
}

func TestVTTYPull_ZeroLengthMeansNoData(t *testing.T) {
	client, _, _ := newTestClient(t, func(op uint32, in, out []byte) (reactor.SubmitResult, bool) {
		return reactor.SubmitResult{BytesReturned: 0}, true
	})
	data, err := client.VTTYPull(4096)
	if err != nil {
		t.Fatalf("VTTYPull: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected zero-length result, got %d bytes", len(data))
	}
}

func TestCall_TimesOutWhenNoReply(t *testing.T) {
	dev := reactor.NewFakeDevice()
	dev.Handler = func(op uint32, in, out []byte, token uint64) (reactor.SubmitResult, bool) {
		return reactor.SubmitResult{}, false // pending forever
	}
	r := reactor.New(dev)
	defer r.Close()
	client := New(r)

	start := time.Now()
	_, err := client.call(layout.OpRunTick, nil, 0, nil, 20*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("took too long: %v", elapsed)
	}
}
