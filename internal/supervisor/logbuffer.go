package supervisor

import "sync"

const bufferCap = 500

// LogBuffer is a thread-safe circular buffer holding a tile's most recent
// console output. Appends are O(1); reads copy into a fresh slice the caller
// owns, ordered newest to oldest.
type LogBuffer struct {
	mu      sync.RWMutex
	entries [bufferCap]string
	head    int // next write position
	size    int
	full    bool
}

// Append adds one line, overwriting the oldest when full.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = line
	b.head = (b.head + 1) % bufferCap
	if b.full {
		return
	}
	b.size++
	if b.size == bufferCap {
		b.full = true
	}
}

// Read returns up to lines entries, newest first. lines <= 0 or beyond the
// capacity means everything available.
func (b *LogBuffer) Read(lines int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	if lines <= 0 || lines > bufferCap {
		lines = bufferCap
	}
	n := b.size
	if n > lines {
		n = lines
	}

	var newest int
	if b.full {
		newest = (b.head - 1 + bufferCap) % bufferCap
	} else {
		newest = b.size - 1
	}

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[(newest-i+bufferCap)%bufferCap]
	}
	return out
}

// BufferManager hands out per-tile log buffers. Buffers are created lazily
// and survive supervisor restarts, so output from a previous run stays
// retrievable.
type BufferManager struct {
	mu   sync.RWMutex
	bufs map[int]*LogBuffer
}

// NewBufferManager initializes an empty buffer registry.
func NewBufferManager() *BufferManager {
	return &BufferManager{bufs: make(map[int]*LogBuffer)}
}

// Get returns the buffer for a tile index, creating it when missing.
func (m *BufferManager) Get(tileID int) *LogBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if buf, ok := m.bufs[tileID]; ok {
		return buf
	}
	buf := new(LogBuffer)
	m.bufs[tileID] = buf
	return buf
}
