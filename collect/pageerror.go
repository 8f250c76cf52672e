package collect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageErrorCollector captures uncaught exceptions from one page.
type PageErrorCollector struct {
	detacher
	buf *Buffer[PageErrorEntry]
}

// NewPageErrorCollector creates a collector holding at most max entries.
func NewPageErrorCollector(max int) *PageErrorCollector {
	return &PageErrorCollector{buf: NewBuffer[PageErrorEntry](max)}
}

// Record ingests one uncaught error. Dropped after Detach.
func (c *PageErrorCollector) Record(message, stack string) {
	if c.isDetached() {
		return
	}
	c.buf.Append(PageErrorEntry{
		Message:   message,
		Stack:     stack,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Entries returns a snapshot copy of the captured errors.
func (c *PageErrorCollector) Entries() []PageErrorEntry { return c.buf.Snapshot() }

// Len returns the current entry count.
func (c *PageErrorCollector) Len() int { return c.buf.Len() }

// Clear discards all captured errors.
func (c *PageErrorCollector) Clear() { c.buf.Clear() }

// AttachPage subscribes to the page's uncaught-exception events until Detach
// is called or ctx is cancelled.
func (c *PageErrorCollector) AttachPage(ctx context.Context, page *rod.Page) {
	octx := c.observe(ctx)
	go page.Context(octx).EachEvent(func(e *proto.RuntimeExceptionThrown) {
		msg, stack := formatException(e.ExceptionDetails)
		c.Record(msg, stack)
	})()
}

func formatException(d *proto.RuntimeExceptionDetails) (message, stack string) {
	if d == nil {
		return "unknown exception", ""
	}
	message = d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		message = d.Exception.Description
	}
	if d.StackTrace != nil {
		var b strings.Builder
		for _, f := range d.StackTrace.CallFrames {
			fmt.Fprintf(&b, "at %s (%s:%d)\n", f.FunctionName, f.URL, f.LineNumber)
		}
		stack = strings.TrimRight(b.String(), "\n")
	}
	return message, stack
}
