// Package layout defines the bit-exact shared-memory contract between the
// daemon and the kernel side: the ring header, the VBLK ring control block
// and slot array, and the mapping descriptor returned by map_shared.
//
// Offsets and field widths here are an external contract and must not
// change without coordinating the kernel-side driver.
package layout

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Shared-window region offsets (also mirrored in internal/constants for
// non-layout consumers that only need the numbers).
const (
	HeaderOffset = 0x0000
	RingOffset   = 0x1000
	DataOffset   = 0x4000

	SlotSize       = 32
	SlotDataStride = 128 * 1024
	SectorSize     = 512

	headerVersionOff  = 0
	headerFlagsOff    = 4
	headerTickOff     = 8
	headerPingReqOff  = 16
	headerPingRespOff = 20

	ringProducerOff   = 0
	ringConsumerOff   = 4
	ringCapacityOff   = 8
	ringSlotStrideOff = 12
	ringSlotArrayOff  = 16
)

// VBLK slot opcodes.
const (
	OpcodeRead  uint8 = 0
	OpcodeWrite uint8 = 1
)

// VBLK slot status codes (§3, §9 Open Question resolved to the multi-slot
// form: {0=OK, 1=EINVAL, 5=EIO}).
const (
	StatusOK     uint8 = 0
	StatusEINVAL uint8 = 1
	StatusEIO    uint8 = 5
)

// MapInfo is the decoded 32-byte map_shared reply descriptor.
type MapInfo struct {
	HostBase   uint64
	KernelBase uint64
	Size       uint64
	Version    uint32
	Flags      uint32
}

var _ [32]byte = [unsafe.Sizeof(MapInfo{})]byte{}

// DecodeMapInfo parses the 32-byte map_shared output buffer.
func DecodeMapInfo(buf []byte) MapInfo {
	return MapInfo{
		HostBase:   binary.LittleEndian.Uint64(buf[0:8]),
		KernelBase: binary.LittleEndian.Uint64(buf[8:16]),
		Size:       binary.LittleEndian.Uint64(buf[16:24]),
		Version:    binary.LittleEndian.Uint32(buf[24:28]),
		Flags:      binary.LittleEndian.Uint32(buf[28:32]),
	}
}

// Window wraps the mapped shared-memory region. Field accesses that are
// shared with the kernel (or guest) go through atomic loads/stores at
// explicit byte offsets rather than a Go struct overlay, so the contract
// does not depend on compiler struct layout.
type Window struct {
	mem []byte
}

// NewWindow wraps an existing byte slice as the shared window. The slice
// must be at least DataOffset + capacity*SlotDataStride bytes long for the
// ring it will host (the slot array itself ends below DataOffset).
func NewWindow(mem []byte) *Window {
	return &Window{mem: mem}
}

// Bytes returns the backing slice (for mmap teardown, tests, etc.).
func (w *Window) Bytes() []byte { return w.mem }

func (w *Window) u32ptr(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&w.mem[off]))
}

func (w *Window) u64ptr(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&w.mem[off]))
}

// --- Ring header (§4.H) ---

func (w *Window) HeaderVersion() uint32 { return atomic.LoadUint32(w.u32ptr(HeaderOffset + headerVersionOff)) }
func (w *Window) SetHeaderVersion(v uint32) {
	atomic.StoreUint32(w.u32ptr(HeaderOffset+headerVersionOff), v)
}

func (w *Window) HeaderFlags() uint32 { return atomic.LoadUint32(w.u32ptr(HeaderOffset + headerFlagsOff)) }
func (w *Window) SetHeaderFlags(v uint32) {
	atomic.StoreUint32(w.u32ptr(HeaderOffset+headerFlagsOff), v)
}

func (w *Window) Tick() uint64 { return atomic.LoadUint64(w.u64ptr(HeaderOffset + headerTickOff)) }
func (w *Window) SetTick(v uint64) {
	atomic.StoreUint64(w.u64ptr(HeaderOffset+headerTickOff), v)
}

func (w *Window) PingReq() uint32 { return atomic.LoadUint32(w.u32ptr(HeaderOffset + headerPingReqOff)) }
func (w *Window) SetPingReq(v uint32) {
	atomic.StoreUint32(w.u32ptr(HeaderOffset+headerPingReqOff), v)
}

func (w *Window) PingResp() uint32 {
	return atomic.LoadUint32(w.u32ptr(HeaderOffset + headerPingRespOff))
}
func (w *Window) SetPingResp(v uint32) {
	atomic.StoreUint32(w.u32ptr(HeaderOffset+headerPingRespOff), v)
}

// --- VBLK ring control block + slot array (§3, §4.E) ---

func (w *Window) Producer() uint32 { return atomic.LoadUint32(w.u32ptr(RingOffset + ringProducerOff)) }
func (w *Window) SetProducer(v uint32) {
	atomic.StoreUint32(w.u32ptr(RingOffset+ringProducerOff), v)
}

func (w *Window) Consumer() uint32 { return atomic.LoadUint32(w.u32ptr(RingOffset + ringConsumerOff)) }
func (w *Window) SetConsumer(v uint32) {
	atomic.StoreUint32(w.u32ptr(RingOffset+ringConsumerOff), v)
}

func (w *Window) Capacity() uint32 { return atomic.LoadUint32(w.u32ptr(RingOffset + ringCapacityOff)) }
func (w *Window) SetCapacity(v uint32) {
	atomic.StoreUint32(w.u32ptr(RingOffset+ringCapacityOff), v)
}

func (w *Window) SlotStride() uint32 {
	return atomic.LoadUint32(w.u32ptr(RingOffset + ringSlotStrideOff))
}
func (w *Window) SetSlotStride(v uint32) {
	atomic.StoreUint32(w.u32ptr(RingOffset+ringSlotStrideOff), v)
}

// slotOffset locates a slot record by its fixed, compiled-in record size.
// SlotStride is published in the control block for the guest/kernel side's
// own benefit; the host that owns this Window's layout always uses SlotSize
// directly rather than trusting a value it wrote itself.
func (w *Window) slotOffset(index uint32) int {
	return RingOffset + ringSlotArrayOff + int(index)*SlotSize
}

// Slot is a host-side snapshot of one VBLK slot record. Reading/writing it
// back to the window goes field by field, not as a single struct copy,
// since the kernel may observe individual fields mid-update: the multi-byte
// fields use atomic loads, the one-byte opcode and status fields are plain
// byte accesses.
type Slot struct {
	ID         uint64
	Opcode     uint8
	Status     uint8
	LBA        uint64
	Length     uint32
	DataOffset uint32
}

const (
	slotIDOff         = 0
	slotOpcodeOff     = 8
	slotStatusOff     = 9
	slotLBAOff        = 16
	slotLengthOff     = 24
	slotDataOffsetOff = 28
)

// ReadSlot loads the slot at the given ring index.
func (w *Window) ReadSlot(index uint32) Slot {
	base := w.slotOffset(index)
	return Slot{
		ID:         atomic.LoadUint64(w.u64ptr(base + slotIDOff)),
		Opcode:     w.mem[base+slotOpcodeOff],
		Status:     w.mem[base+slotStatusOff],
		LBA:        atomic.LoadUint64(w.u64ptr(base + slotLBAOff)),
		Length:     atomic.LoadUint32(w.u32ptr(base + slotLengthOff)),
		DataOffset: atomic.LoadUint32(w.u32ptr(base + slotDataOffsetOff)),
	}
}

// StatusForSlot reads just the status byte of the slot at index.
func (w *Window) StatusForSlot(index uint32) uint8 {
	base := w.slotOffset(index)
	return w.mem[base+slotStatusOff]
}

// SetSlotStatus publishes the status byte of the slot at index. This is the
// only field the consumer (the daemon) writes back to a slot it did not
// create.
func (w *Window) SetSlotStatus(index uint32, status uint8) {
	base := w.slotOffset(index)
	w.mem[base+slotStatusOff] = status
}

// DataSlice returns the length-byte data region for a slot's data_off,
// relative to the data window at DataOffset.
func (w *Window) DataSlice(dataOff uint32, length uint32) []byte {
	start := DataOffset + int(dataOff)
	return w.mem[start : start+int(length)]
}
