package collect

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ConsoleCollector captures console API calls from one page.
type ConsoleCollector struct {
	detacher
	buf *Buffer[ConsoleEntry]
}

// NewConsoleCollector creates a collector holding at most max entries.
func NewConsoleCollector(max int) *ConsoleCollector {
	return &ConsoleCollector{buf: NewBuffer[ConsoleEntry](max)}
}

// Record ingests one console message. Dropped after Detach.
func (c *ConsoleCollector) Record(level, text string) {
	if c.isDetached() {
		return
	}
	c.buf.Append(ConsoleEntry{
		Level:     level,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Entries returns a snapshot copy of the captured messages.
func (c *ConsoleCollector) Entries() []ConsoleEntry { return c.buf.Snapshot() }

// Len returns the current entry count.
func (c *ConsoleCollector) Len() int { return c.buf.Len() }

// Clear discards all captured messages.
func (c *ConsoleCollector) Clear() { c.buf.Clear() }

// AttachPage subscribes to the page's console events until Detach is called
// or ctx is cancelled.
func (c *ConsoleCollector) AttachPage(ctx context.Context, page *rod.Page) {
	octx := c.observe(ctx)
	go page.Context(octx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		c.Record(string(e.Type), formatConsoleArgs(e.Args))
	})()
}

func formatConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, formatRemoteObject(a))
	}
	return strings.Join(parts, " ")
}

func formatRemoteObject(o *proto.RuntimeRemoteObject) string {
	if o == nil {
		return ""
	}
	if o.Type == proto.RuntimeRemoteObjectTypeString {
		return o.Value.Str()
	}
	if o.Description != "" {
		return o.Description
	}
	return o.Value.String()
}
