package collect

// ConsoleEntry is one console message captured from a page.
// Level is recorded verbatim from CDP; note that CDP reports "warning" while
// some clients filter on "warn". Kept literal, normalisation is the client's
// problem until the boundary is settled.
type ConsoleEntry struct {
	Level     string `json:"level"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// PageErrorEntry is one uncaught exception captured from a page.
type PageErrorEntry struct {
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NetworkEntry is one request/response (or request/failure) exchange.
// DurationMs is nil when no matching tracked request was found for the
// response — the entry is still recorded rather than dropped.
type NetworkEntry struct {
	Method     string   `json:"method"`
	URL        string   `json:"url"`
	Status     int      `json:"status,omitempty"`
	Failure    string   `json:"failure,omitempty"`
	DurationMs *float64 `json:"duration_ms,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

// ProcessEntry is one output line captured from a spawned process.
type ProcessEntry struct {
	Stream    string `json:"stream"` // "stdout" or "stderr"
	Line      string `json:"line"`
	Timestamp int64  `json:"timestamp"`
}
