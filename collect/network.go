package collect

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// NetworkCollector captures request/response exchanges from one page.
//
// Pairing: a pending table keyed by (method, URL) records the start time on
// the request event and is consulted (then cleared) on the matching response
// or failure to compute the duration. A response with no tracked request
// still produces an entry, with a nil duration.
type NetworkCollector struct {
	detacher
	buf *Buffer[NetworkEntry]

	mu      sync.Mutex
	pending map[pendingKey]time.Time
}

type pendingKey struct {
	method string
	url    string
}

// NewNetworkCollector creates a collector holding at most max entries.
func NewNetworkCollector(max int) *NetworkCollector {
	return &NetworkCollector{
		buf:     NewBuffer[NetworkEntry](max),
		pending: make(map[pendingKey]time.Time),
	}
}

// RecordRequest notes the start of an exchange. Dropped after Detach.
func (c *NetworkCollector) RecordRequest(method, url string, at time.Time) {
	if c.isDetached() {
		return
	}
	c.mu.Lock()
	c.pending[pendingKey{method, url}] = at
	c.mu.Unlock()
}

// RecordResponse completes an exchange and appends its entry.
func (c *NetworkCollector) RecordResponse(method, url string, status int, at time.Time) {
	if c.isDetached() {
		return
	}
	c.buf.Append(NetworkEntry{
		Method:     method,
		URL:        url,
		Status:     status,
		DurationMs: c.takeDuration(method, url, at),
		Timestamp:  at.UnixMilli(),
	})
}

// RecordFailure completes an exchange that never got a response.
func (c *NetworkCollector) RecordFailure(method, url, reason string, at time.Time) {
	if c.isDetached() {
		return
	}
	c.buf.Append(NetworkEntry{
		Method:     method,
		URL:        url,
		Failure:    reason,
		DurationMs: c.takeDuration(method, url, at),
		Timestamp:  at.UnixMilli(),
	})
}

func (c *NetworkCollector) takeDuration(method, url string, at time.Time) *float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	start, ok := c.pending[pendingKey{method, url}]
	if !ok {
		return nil
	}
	delete(c.pending, pendingKey{method, url})
	d := float64(at.Sub(start).Microseconds()) / 1000
	return &d
}

// Entries returns a snapshot copy of the captured exchanges.
func (c *NetworkCollector) Entries() []NetworkEntry { return c.buf.Snapshot() }

// Len returns the current entry count.
func (c *NetworkCollector) Len() int { return c.buf.Len() }

// Clear discards all captured exchanges.
func (c *NetworkCollector) Clear() { c.buf.Clear() }

// AttachPage subscribes to the page's network events until Detach is called
// or ctx is cancelled.
func (c *NetworkCollector) AttachPage(ctx context.Context, page *rod.Page) {
	octx := c.observe(ctx)
	ev := newNetworkEvents(c)
	go page.Context(octx).EachEvent(ev.requestWillBeSent, ev.responseReceived, ev.loadingFailed)()
}

// networkEvents maps CDP network events onto the collector's record calls.
// CDP identifies exchanges by request ID, so a side table maps request IDs
// back to the (method, URL) pairing key; entries are removed on the matching
// response or failure so the table stays bounded by in-flight requests.
type networkEvents struct {
	c *NetworkCollector

	mu   sync.Mutex
	byID map[proto.NetworkRequestID]pendingKey
}

func newNetworkEvents(c *NetworkCollector) *networkEvents {
	return &networkEvents{c: c, byID: make(map[proto.NetworkRequestID]pendingKey)}
}

func (ev *networkEvents) requestWillBeSent(e *proto.NetworkRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	ev.mu.Lock()
	ev.byID[e.RequestID] = pendingKey{e.Request.Method, e.Request.URL}
	ev.mu.Unlock()
	ev.c.RecordRequest(e.Request.Method, e.Request.URL, time.Now())
}

func (ev *networkEvents) responseReceived(e *proto.NetworkResponseReceived) {
	if e.Response == nil {
		return
	}
	ev.mu.Lock()
	key, ok := ev.byID[e.RequestID]
	delete(ev.byID, e.RequestID)
	ev.mu.Unlock()
	if !ok {
		key = pendingKey{"GET", e.Response.URL}
	}
	ev.c.RecordResponse(key.method, key.url, e.Response.Status, time.Now())
}

func (ev *networkEvents) loadingFailed(e *proto.NetworkLoadingFailed) {
	ev.mu.Lock()
	key, ok := ev.byID[e.RequestID]
	delete(ev.byID, e.RequestID)
	ev.mu.Unlock()
	if !ok {
		return
	}
	ev.c.RecordFailure(key.method, key.url, e.ErrorText, time.Now())
}
