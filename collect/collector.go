package collect

import (
	"context"
	"sync"
)

// detacher tracks the cancel funcs a collector registered for its event
// observers, so Detach removes exactly those and nothing else. Detach is
// idempotent; after it runs, ingest methods drop entries silently.
type detacher struct {
	mu       sync.Mutex
	cancels  []context.CancelFunc
	detached bool
}

// observe derives a cancellable context from parent and remembers its cancel.
// Returns a context already cancelled if the collector is detached.
func (d *detacher) observe(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		cancel()
		return ctx
	}
	d.cancels = append(d.cancels, cancel)
	return ctx
}

// Detach cancels every observer this collector installed. Safe to call twice.
func (d *detacher) Detach() {
	d.mu.Lock()
	cancels := d.cancels
	d.cancels = nil
	d.detached = true
	d.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (d *detacher) isDetached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detached
}
