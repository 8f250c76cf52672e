package collect

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestBuffer_FIFOEviction(t *testing.T) {
	const max = 5
	b := NewBuffer[string](max)
	for i := 1; i <= max+3; i++ {
		b.Append(fmt.Sprintf("e%d", i))
	}

	got := b.Snapshot()
	if len(got) != max {
		t.Fatalf("len: got %d, want %d", len(got), max)
	}
	// After inserting e1..e8 with max 5, the last 5 survive in order.
	for i, want := range []string{"e4", "e5", "e6", "e7", "e8"} {
		if got[i] != want {
			t.Fatalf("entry[%d]: got %q, want %q", i, got[i], want)
		}
	}
}

func TestBuffer_SnapshotIsCopy(t *testing.T) {
	b := NewBuffer[int](10)
	b.Append(1)
	snap := b.Snapshot()
	b.Append(2)
	if len(snap) != 1 {
		t.Fatalf("snapshot mutated by later append: %v", snap)
	}
}

func TestConsoleCollector_RecordAndClear(t *testing.T) {
	c := NewConsoleCollector(3)
	c.Record("log", "one")
	c.Record("warning", "two")

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	// CDP's literal level string, not "warn".
	if entries[1].Level != "warning" {
		t.Fatalf("level: got %q", entries[1].Level)
	}
	if entries[0].Timestamp == 0 {
		t.Fatal("timestamp not set")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("after clear: %d entries", c.Len())
	}
}

func TestConsoleCollector_DetachStopsIngest(t *testing.T) {
	c := NewConsoleCollector(3)
	c.Record("log", "before")
	c.Detach()
	c.Detach() // idempotent
	c.Record("log", "after")

	entries := c.Entries()
	if len(entries) != 1 || entries[0].Text != "before" {
		t.Fatalf("entries after detach: %+v", entries)
	}
}

func TestNetworkCollector_Pairing(t *testing.T) {
	c := NewNetworkCollector(10)
	start := time.Now()
	c.RecordRequest("GET", "http://x/a", start)
	c.RecordResponse("GET", "http://x/a", 200, start.Add(250*time.Millisecond))

	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Status != 200 || e.Method != "GET" {
		t.Fatalf("entry: %+v", e)
	}
	if e.DurationMs == nil {
		t.Fatal("duration: got nil, want paired value")
	}
	if *e.DurationMs < 249 || *e.DurationMs > 251 {
		t.Fatalf("duration: got %v, want ~250", *e.DurationMs)
	}
}

func TestNetworkCollector_UnmatchedResponse(t *testing.T) {
	c := NewNetworkCollector(10)
	c.RecordResponse("GET", "http://x/b", 304, time.Now())

	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("unmatched response dropped: %+v", entries)
	}
	if entries[0].DurationMs != nil {
		t.Fatalf("duration: got %v, want nil", *entries[0].DurationMs)
	}
}

func TestNetworkEvents_ResponseClearsRequestIDTable(t *testing.T) {
	c := NewNetworkCollector(10)
	ev := newNetworkEvents(c)

	for i := 0; i < 20; i++ {
		id := proto.NetworkRequestID(fmt.Sprintf("req-%d", i))
		url := fmt.Sprintf("http://x/api/%d", i)
		ev.requestWillBeSent(&proto.NetworkRequestWillBeSent{
			RequestID: id,
			Request:   &proto.NetworkRequest{Method: "GET", URL: url},
		})
		ev.responseReceived(&proto.NetworkResponseReceived{
			RequestID: id,
			Response:  &proto.NetworkResponse{Status: 200, URL: url},
		})
	}

	// Every exchange completed, so the request-ID table must be empty: it is
	// bounded by in-flight requests, not by page lifetime.
	if n := len(ev.byID); n != 0 {
		t.Fatalf("request-ID table after completed exchanges: %d entries", n)
	}
	entries := c.Entries()
	if len(entries) != 10 {
		t.Fatalf("entries: got %d, want buffer max", len(entries))
	}
	if entries[0].DurationMs == nil {
		t.Fatal("exchange not paired through the event path")
	}
}

func TestNetworkEvents_FailureClearsRequestIDTable(t *testing.T) {
	c := NewNetworkCollector(10)
	ev := newNetworkEvents(c)

	ev.requestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID: "req-1",
		Request:   &proto.NetworkRequest{Method: "POST", URL: "http://x/submit"},
	})
	ev.loadingFailed(&proto.NetworkLoadingFailed{
		RequestID: "req-1",
		ErrorText: "net::ERR_CONNECTION_REFUSED",
	})

	if n := len(ev.byID); n != 0 {
		t.Fatalf("request-ID table after failure: %d entries", n)
	}
	entries := c.Entries()
	if len(entries) != 1 || entries[0].Failure == "" {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestNetworkCollector_FailureClearsPending(t *testing.T) {
	c := NewNetworkCollector(10)
	start := time.Now()
	c.RecordRequest("POST", "http://x/c", start)
	c.RecordFailure("POST", "http://x/c", "net::ERR_CONNECTION_REFUSED", start.Add(100*time.Millisecond))

	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries: got %d", len(entries))
	}
	if entries[0].Failure == "" || entries[0].DurationMs == nil {
		t.Fatalf("failure entry: %+v", entries[0])
	}

	// The pending slot was consumed: a second response for the same key is
	// unmatched.
	c.RecordResponse("POST", "http://x/c", 200, time.Now())
	entries = c.Entries()
	if entries[1].DurationMs != nil {
		t.Fatal("pending slot not cleared on failure")
	}
}

func TestProcessCollector_Pipes(t *testing.T) {
	c := NewProcessCollector(10)
	c.AttachPipes(strings.NewReader("line1\nline2\n"), strings.NewReader("oops\n"))

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	entries := c.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries: got %d, want 3: %+v", len(entries), entries)
	}
	var stdout, stderr int
	for _, e := range entries {
		switch e.Stream {
		case "stdout":
			stdout++
		case "stderr":
			stderr++
		}
	}
	if stdout != 2 || stderr != 1 {
		t.Fatalf("streams: stdout=%d stderr=%d", stdout, stderr)
	}
}

func TestPageErrorCollector_Eviction(t *testing.T) {
	c := NewPageErrorCollector(2)
	c.Record("err1", "")
	c.Record("err2", "stack2")
	c.Record("err3", "stack3")

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if entries[0].Message != "err2" || entries[1].Message != "err3" {
		t.Fatalf("eviction order wrong: %+v", entries)
	}
}
