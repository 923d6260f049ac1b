package coopvm

import "github.com/vmhostd/coopvm/internal/constants"

// Re-exported tunables for public API consumers.
const (
	DefaultQueueDepth  = constants.DefaultQueueDepth
	DefaultMaxIOSize   = constants.DefaultMaxIOSize
	AutoAssignDeviceID = constants.AutoAssignDeviceID
	TTYChunkSize       = constants.TTYChunkSize
	TTYPullCapacity    = constants.TTYPullCapacity
)
