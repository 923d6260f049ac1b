// Package backingstore provides an in-memory VBLK backing store used by
// tests and by the fake Device exported from the root package's testing
// helpers. The real daemon backs VBLK reads/writes with a file opened
// kernel-side by vblk_set_backing; this gives test code the same
// ReadAt/WriteAt surface without touching disk.
package backingstore

import "sync"

// ShardSize is the size of each locking shard. Sharded locking lets
// concurrent reads/writes to disjoint regions proceed without contending
// on a single mutex, mirroring how a real backing file allows concurrent
// I/O at different offsets.
const ShardSize = 64 * 1024

// Memory is a sharded-locking in-memory byte store addressed by byte
// offset, sized in whole sectors.
type Memory struct {
	data   []byte
	size   int64
	shards []sync.RWMutex
}

// New creates a Memory store of the given size in bytes.
func New(size int64) *Memory {
	numShards := (size + ShardSize - 1) / ShardSize
	if numShards < 1 {
		numShards = 1
	}
	return &Memory{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, numShards),
	}
}

func (m *Memory) shardRange(off, length int64) (start, end int) {
	start = int(off / ShardSize)
	end = int((off + length - 1) / ShardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

// ReadAt reads into p starting at byte offset off, truncating short at
// the end of the store.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, nil
	}
	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	startShard, endShard := m.shardRange(off, int64(len(p)))
	for i := startShard; i <= endShard; i++ {
		m.shards[i].RLock()
	}
	n := copy(p, m.data[off:off+int64(len(p))])
	for i := startShard; i <= endShard; i++ {
		m.shards[i].RUnlock()
	}
	return n, nil
}

// WriteAt writes p at byte offset off, truncating short at the end of
// the store.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, nil
	}
	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	startShard, endShard := m.shardRange(off, int64(len(p)))
	for i := startShard; i <= endShard; i++ {
		m.shards[i].Lock()
	}
	n := copy(m.data[off:off+int64(len(p))], p)
	for i := startShard; i <= endShard; i++ {
		m.shards[i].Unlock()
	}
	return n, nil
}

// Size reports the store's total size in bytes.
func (m *Memory) Size() int64 { return m.size }
