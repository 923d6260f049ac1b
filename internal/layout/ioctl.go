package layout

// Kernel control-operation codes (§6). Encoded with the host OS's device
// control code convention for device type 0x22 (CTL_CODE(DeviceType,
// Function, Method, Access)); the literal values below are the external
// contract and must match the kernel-side driver bit-for-bit.
const (
	OpMapShared      uint32 = 0x00222004
	OpRunTick        uint32 = 0x00222008
	OpVBLKSubmit     uint32 = 0x0022200C // legacy; payload format undefined, never dispatched
	OpVBLKSetBacking uint32 = 0x00222010
	OpVBLKRead       uint32 = 0x00222016
	OpVBLKWrite      uint32 = 0x00222019
	OpVTTYPush       uint32 = 0x0022201C
	OpVTTYPull       uint32 = 0x00222020
)

// CTLCode reconstructs a Windows-style device control code for
// documentation and validation against the literal constants above.
// Method: 0=METHOD_BUFFERED, 1=METHOD_IN_DIRECT, 2=METHOD_OUT_DIRECT,
// 3=METHOD_NEITHER. Access: 0=FILE_ANY_ACCESS.
func CTLCode(deviceType, function, method, access uint32) uint32 {
	return (deviceType << 16) | (access << 14) | (function << 2) | method
}

const (
	deviceType22 = 0x22

	methodBuffered  = 0
	methodInDirect  = 1
	methodOutDirect = 2

	fileAnyAccess = 0
)
