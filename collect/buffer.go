// Package collect implements bounded diagnostic capture for automation
// surfaces and spawned processes: console messages, uncaught page errors,
// network exchanges, and process output lines.
//
// Each collector is a FIFO-evicting buffer fed by event observers. The
// observer wiring (CDP events via rod, process pipes) is separated from the
// ingest methods so the buffering and pairing logic tests without Chrome.
package collect

import "sync"

// Buffer is a bounded, append-only FIFO buffer. When full, the oldest entry
// is evicted before the newest is appended. Snapshot returns a copy so
// callers iterating the result are never affected by concurrent appends.
type Buffer[T any] struct {
	mu      sync.Mutex
	max     int
	entries []T
}

// NewBuffer creates a Buffer holding at most max entries.
func NewBuffer[T any](max int) *Buffer[T] {
	if max <= 0 {
		max = 1
	}
	return &Buffer[T]{max: max}
}

// Append adds an entry, evicting the oldest if the buffer is full.
func (b *Buffer[T]) Append(e T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.max {
		n := copy(b.entries, b.entries[len(b.entries)-b.max+1:])
		b.entries = b.entries[:n]
	}
	b.entries = append(b.entries, e)
}

// Snapshot returns a copy of the current entries in insertion order.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the current entry count.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear discards all entries.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = b.entries[:0]
}
