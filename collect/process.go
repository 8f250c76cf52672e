package collect

import (
	"bufio"
	"io"
	"time"
)

// ProcessCollector captures output lines from a spawned process.
type ProcessCollector struct {
	detacher
	buf *Buffer[ProcessEntry]
}

// NewProcessCollector creates a collector holding at most max lines.
func NewProcessCollector(max int) *ProcessCollector {
	return &ProcessCollector{buf: NewBuffer[ProcessEntry](max)}
}

// Record ingests one output line. Dropped after Detach.
func (c *ProcessCollector) Record(stream, line string) {
	if c.isDetached() {
		return
	}
	c.buf.Append(ProcessEntry{
		Stream:    stream,
		Line:      line,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Entries returns a snapshot copy of the captured lines.
func (c *ProcessCollector) Entries() []ProcessEntry { return c.buf.Snapshot() }

// Len returns the current entry count.
func (c *ProcessCollector) Len() int { return c.buf.Len() }

// Clear discards all captured lines.
func (c *ProcessCollector) Clear() { c.buf.Clear() }

// AttachPipes reads lines from the process's stdout and stderr until EOF.
// The readers are owned by the process; they close when it exits, which ends
// the reader goroutines. Detach only stops ingestion.
func (c *ProcessCollector) AttachPipes(stdout, stderr io.Reader) {
	if stdout != nil {
		go c.scan("stdout", stdout)
	}
	if stderr != nil {
		go c.scan("stderr", stderr)
	}
}

func (c *ProcessCollector) scan(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		c.Record(stream, sc.Text())
	}
}
