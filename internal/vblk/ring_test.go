package vblk

import (
	"encoding/binary"
	"testing"

	"github.com/vmhostd/coopvm/internal/layout"
)

// slotArrayBase mirrors the ring control block layout: producer(4) +
// consumer(4) + capacity(4) + slot_stride(4) precede the slot array.
const slotArrayBase = layout.RingOffset + 16

func newTestWindow(t *testing.T, capacity uint32) (*layout.Window, []byte) {
	t.Helper()
	size := layout.DataOffset + int(capacity)*layout.SlotDataStride
	mem := make([]byte, size)
	w := layout.NewWindow(mem)
	w.SetCapacity(capacity)
	w.SetSlotStride(layout.SlotSize)
	return w, mem
}

func writeSlot(mem []byte, index uint32, id uint64, opcode, status uint8, lba uint64, length, dataOffset uint32) {
	base := slotArrayBase + int(index)*layout.SlotSize
	binary.LittleEndian.PutUint64(mem[base+0:], id)
	mem[base+8] = opcode
	mem[base+9] = status
	binary.LittleEndian.PutUint64(mem[base+16:], lba)
	binary.LittleEndian.PutUint32(mem[base+24:], length)
	binary.LittleEndian.PutUint32(mem[base+28:], dataOffset)
}

type recordingFacade struct {
	reads  []uint64
	writes []uint64
	fail   bool
}

func (f *recordingFacade) VBLKRead(lba uint64, length uint32) ([]byte, error) {
	f.reads = append(f.reads, lba)
	if f.fail {
		return nil, errFacadeFailure
	}
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = 0xCD
	}
	return buf, nil
}

func (f *recordingFacade) VBLKWrite(lba uint64, payload []byte) error {
	f.writes = append(f.writes, lba)
	if f.fail {
		return errFacadeFailure
	}
	return nil
}

var errFacadeFailure = &ringTestError{"facade failure"}

type ringTestError struct{ msg string }

func (e *ringTestError) Error() string { return e.msg }

func TestRing_ServicesSlotsInStrictConsOrder(t *testing.T) {
	w, _ := newTestWindow(t, 4)
	writeSlot(w.Bytes(), 0, 1, layout.OpcodeRead, 0, 0x100, 1024, 0)
	writeSlot(w.Bytes(), 1, 2, layout.OpcodeRead, 0, 0x200, 1024, 2048)
	w.SetProducer(2)

	facade := &recordingFacade{}
	ring := NewRing(facade)
	ring.Pump(w)

	if w.Consumer() != 2 {
		t.Fatalf("consumer = %d, want 2", w.Consumer())
	}
	if len(facade.reads) != 2 || facade.reads[0] != 0x100 || facade.reads[1] != 0x200 {
		t.Fatalf("unexpected read order: %v", facade.reads)
	}
	if got := w.StatusForSlot(0); got != layout.StatusOK {
		t.Fatalf("slot 0 status = %d, want StatusOK", got)
	}
	if got := w.StatusForSlot(1); got != layout.StatusOK {
		t.Fatalf("slot 1 status = %d, want StatusOK", got)
	}

	first := w.DataSlice(0, 1024)
	for i, b := range first {
		if b != 0xCD {
			t.Fatalf("data window byte %d = %#x, want 0xCD (fake device's read output)", i, b)
		}
	}
	second := w.DataSlice(2048, 1024)
	for i, b := range second {
		if b != 0xCD {
			t.Fatalf("data window byte %d (slot 1) = %#x, want 0xCD", i, b)
		}
	}
}

func TestRing_MisalignedLengthRejectedAsEINVAL(t *testing.T) {
	w, _ := newTestWindow(t, 4)
	writeSlot(w.Bytes(), 0, 1, layout.OpcodeRead, 0, 0x100, 513, 0)
	w.SetProducer(1)

	facade := &recordingFacade{}
	ring := NewRing(facade)
	ring.Pump(w)

	if got := w.StatusForSlot(0); got != layout.StatusEINVAL {
		t.Fatalf("status = %d, want StatusEINVAL", got)
	}
	if len(facade.reads) != 0 {
		t.Fatalf("expected no dispatch for invalid slot, got %d reads", len(facade.reads))
	}
	if w.Consumer() != 1 {
		t.Fatalf("consumer = %d, want 1 (invalid slot still retires)", w.Consumer())
	}
}

func TestRing_DataOffsetOutsideWindowRejectedAsEINVAL(t *testing.T) {
	w, _ := newTestWindow(t, 2)
	outOfWindow := uint32(2 * layout.SlotDataStride)
	writeSlot(w.Bytes(), 0, 1, layout.OpcodeWrite, 0, 0x100, 512, outOfWindow)
	w.SetProducer(1)

	facade := &recordingFacade{}
	ring := NewRing(facade)
	ring.Pump(w)

	if got := w.StatusForSlot(0); got != layout.StatusEINVAL {
		t.Fatalf("status = %d, want StatusEINVAL", got)
	}
	if len(facade.writes) != 0 {
		t.Fatalf("expected no dispatch, got %d writes", len(facade.writes))
	}
}

func TestRing_NoOpWhenProducerEqualsConsumer(t *testing.T) {
	w, _ := newTestWindow(t, 4)

	facade := &recordingFacade{}
	ring := NewRing(facade)
	ring.Pump(w)

	if len(facade.reads)+len(facade.writes) != 0 {
		t.Fatalf("expected no dispatch when prod == cons")
	}
	if w.Consumer() != 0 {
		t.Fatalf("consumer = %d, want 0", w.Consumer())
	}
}

func TestRing_FacadeErrorYieldsEIOStatus(t *testing.T) {
	w, _ := newTestWindow(t, 4)
	writeSlot(w.Bytes(), 0, 1, layout.OpcodeWrite, 0, 0x100, 512, 0)
	w.SetProducer(1)

	facade := &recordingFacade{fail: true}
	ring := NewRing(facade)
	ring.Pump(w)

	if got := w.StatusForSlot(0); got != layout.StatusEIO {
		t.Fatalf("status = %d, want StatusEIO", got)
	}
}
