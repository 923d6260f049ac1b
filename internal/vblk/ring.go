package vblk

import "github.com/vmhostd/coopvm/internal/layout"

// Ring services I/O whose slots live in the shared memory window (§4.E).
// Unlike Queue, it has no reply endpoints: status is the only return
// channel, written directly into the slot.
type Ring struct {
	facade Facade
}

// NewRing builds a Ring over the given window's facade.
func NewRing(facade Facade) *Ring {
	return &Ring{facade: facade}
}

// Pump services every slot between the window's consumer index and its
// producer index, strictly in cons-order, one slot at a time.
func (r *Ring) Pump(w *layout.Window) {
	cap := w.Capacity()
	if cap == 0 {
		return
	}

	for {
		prod := w.Producer()
		cons := w.Consumer()
		if prod == cons {
			return
		}

		index := cons % cap
		slot := w.ReadSlot(index)

		if !validSlot(slot, cap) {
			w.SetSlotStatus(index, layout.StatusEINVAL)
			w.SetConsumer(cons + 1)
			continue
		}

		data := w.DataSlice(slot.DataOffset, slot.Length)
		status := r.dispatch(slot, data)

		w.SetSlotStatus(index, status)
		w.SetConsumer(cons + 1)
	}
}

// validSlot checks a slot record against §4.E's per-slot invariants. The
// data window's extent is capacity slots of the fixed 128 KiB data stride,
// not the ring control block's slot-array record stride (a distinct,
// much smaller quantity used only to locate Slot records themselves).
func validSlot(slot layout.Slot, capacity uint32) bool {
	if slot.Length == 0 {
		return false
	}
	if slot.Length%layout.SectorSize != 0 {
		return false
	}
	if slot.Length > layout.SlotDataStride {
		return false
	}
	windowSize := uint64(capacity) * uint64(layout.SlotDataStride)
	if uint64(slot.DataOffset)+uint64(slot.Length) > windowSize {
		return false
	}
	return true
}

func (r *Ring) dispatch(slot layout.Slot, data []byte) uint8 {
	switch slot.Opcode {
	case layout.OpcodeRead:
		result, err := r.facade.VBLKRead(slot.LBA, slot.Length)
		if err != nil {
			return layout.StatusEIO
		}
		n := len(result)
		if uint32(n) > slot.Length {
			n = int(slot.Length)
		}
		copy(data[:n], result[:n])
		return layout.StatusOK
	case layout.OpcodeWrite:
		if err := r.facade.VBLKWrite(slot.LBA, data); err != nil {
			return layout.StatusEIO
		}
		return layout.StatusOK
	default:
		return layout.StatusEINVAL
	}
}
