package journal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hazyhaar/pilote/dbopen"
	_ "modernc.org/sqlite"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return New(db, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestRecordAndRecent(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	j.Record(ctx, "sess_1", "session_start", "", nil, true)
	j.Record(ctx, "sess_1", "surface_open", "https://a.test/", map[string]string{"kind": "web"}, true)
	j.Record(ctx, "sess_1", "workflow_run", "https://a.test/", map[string]int{"steps": 3}, false)
	j.Record(ctx, "sess_2", "session_start", "", nil, true)

	events, err := j.Recent(ctx, "sess_1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	// Newest first.
	if events[0].EventType != "workflow_run" {
		t.Errorf("first event = %q, want workflow_run", events[0].EventType)
	}
	if events[0].Success {
		t.Error("failed workflow recorded as success")
	}
	if events[0].Identifier != "https://a.test/" {
		t.Errorf("Identifier = %q", events[0].Identifier)
	}
	details, ok := events[0].Details.(map[string]any)
	if !ok || details["steps"] != float64(3) {
		t.Errorf("Details = %#v", events[0].Details)
	}
}

func TestRecentLimit(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		j.Record(ctx, "sess_1", "navigate", "", nil, true)
	}

	events, err := j.Recent(ctx, "sess_1", 4)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 4 {
		t.Errorf("len = %d, want 4", len(events))
	}
}

func TestRecordFailureDoesNotPropagate(t *testing.T) {
	db := dbopen.OpenMemory(t) // schema never applied
	j := New(db, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	// Must not panic or surface the missing-table error.
	j.Record(context.Background(), "sess_1", "session_start", "", nil, true)
}

func TestNilJournalIsSafe(t *testing.T) {
	var j *Journal
	j.Record(context.Background(), "sess_1", "session_start", "", nil, true)
}
