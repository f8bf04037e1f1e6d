package supervisor

import (
	"sync"

	"github.com/habitat-home/habitat-core/internal/adapter"
)

// defaultLogCapacity bounds each adapter's in-memory log buffer.
const defaultLogCapacity = 200

// logBuffer is a fixed-capacity ring of log entries, oldest evicted.
type logBuffer struct {
	mu      sync.Mutex
	entries []adapter.LogEntry
	next    int
	full    bool
}

func newLogBuffer(capacity int) *logBuffer {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &logBuffer{entries: make([]adapter.LogEntry, capacity)}
}

// Append adds an entry, evicting the oldest when full.
func (b *logBuffer) Append(entry adapter.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the buffered entries in arrival order.
func (b *logBuffer) Entries() []adapter.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]adapter.LogEntry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]adapter.LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}
