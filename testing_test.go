package coopvm

import (
	"testing"

	"github.com/vmhostd/coopvm/internal/facade"
	"github.com/vmhostd/coopvm/internal/reactor"
)

func TestMockDevice_FullRoundTrip(t *testing.T) {
	dev := NewMockDevice(1 << 20)
	r := reactor.New(dev)
	defer r.Close()
	client := facade.New(r)

	if err := client.VBLKSetBacking("C:\\vm\\disk.img"); err != nil {
		t.Fatalf("VBLKSetBacking: %v", err)
	}
	if got := dev.BackingPath(); got != "C:\\vm\\disk.img" {
		t.Fatalf("BackingPath = %q, want %q", got, "C:\\vm\\disk.img")
	}

	payload := []byte("sector-one-payload..............")
	if err := client.VBLKWrite(0, payload); err != nil {
		t.Fatalf("VBLKWrite: %v", err)
	}
	data, err := client.VBLKRead(0, uint32(len(payload)))
	if err != nil {
		t.Fatalf("VBLKRead: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("read back %q, want %q", data, payload)
	}

	info, err := client.MapShared(16)
	if err != nil {
		t.Fatalf("MapShared: %v", err)
	}
	if info.Size != 4096 {
		t.Fatalf("MapInfo.Size = %d, want 4096", info.Size)
	}

	if err := client.RunTick(100); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	n, err := client.VTTYPush([]byte("echo hi\n"))
	if err != nil {
		t.Fatalf("VTTYPush: %v", err)
	}
	if n != uint32(len("echo hi\n")) {
		t.Fatalf("accepted = %d, want %d", n, len("echo hi\n"))
	}
	if string(dev.HostInput()) != "echo hi\n" {
		t.Fatalf("host input = %q", dev.HostInput())
	}

	dev.QueueGuestOutput([]byte("guest reply\n"))
	out, err := client.VTTYPull(4096)
	if err != nil {
		t.Fatalf("VTTYPull: %v", err)
	}
	if string(out) != "guest reply\n" {
		t.Fatalf("pulled %q, want %q", out, "guest reply\n")
	}
}
