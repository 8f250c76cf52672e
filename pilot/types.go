package pilot

import (
	"time"

	"github.com/hazyhaar/pilote/collect"
	"github.com/hazyhaar/pilote/journal"
	"github.com/hazyhaar/pilote/workflow"
)

// SurfaceInfo describes one open surface of a session.
type SurfaceInfo struct {
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
	URL        string `json:"url,omitempty"`
	PID        int    `json:"pid,omitempty"`
}

// SessionInfo describes one session.
type SessionInfo struct {
	SessionID string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	Surfaces  []SurfaceInfo `json:"surfaces,omitempty"`
}

// EndResult reports a session teardown.
type EndResult struct {
	SessionID string `json:"session_id"`
	Destroyed bool   `json:"destroyed"`
}

// LaunchResult reports a freshly opened surface.
type LaunchResult struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
	URL        string `json:"url,omitempty"`
	PID        int    `json:"pid,omitempty"`
}

// ActionResult reports a single click or type action.
type ActionResult struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier"`
	Action     string `json:"action"`
	Selector   string `json:"selector"`
	OK         bool   `json:"ok"`
}

// NavigateResult reports a navigation including the surface's new identity.
type NavigateResult struct {
	SessionID          string `json:"session_id"`
	Identifier         string `json:"identifier"`
	PreviousIdentifier string `json:"previous_identifier"`
	URL                string `json:"url"`
}

// ScreenshotResult carries an optimised screenshot as base64 JPEG.
type ScreenshotResult struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier,omitempty"`
	Mode       string `json:"mode"`
	Data       string `json:"data"`
	MimeType   string `json:"mime_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`

	OriginalBytes  int       `json:"original_bytes"`
	OptimizedBytes int       `json:"optimized_bytes"`
	CapturedAt     time.Time `json:"captured_at"`
}

// MarkdownResult carries a page rendered as markdown.
type MarkdownResult struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
	Markdown   string `json:"markdown"`
}

// ConsoleReadResult returns buffered console entries.
type ConsoleReadResult struct {
	SessionID  string                 `json:"session_id"`
	Identifier string                 `json:"identifier"`
	Entries    []collect.ConsoleEntry `json:"entries"`
	Cleared    bool                   `json:"cleared,omitempty"`
}

// ErrorReadResult returns buffered page errors.
type ErrorReadResult struct {
	SessionID  string                   `json:"session_id"`
	Identifier string                   `json:"identifier"`
	Entries    []collect.PageErrorEntry `json:"entries"`
	Cleared    bool                     `json:"cleared,omitempty"`
}

// NetworkReadResult returns buffered network entries.
type NetworkReadResult struct {
	SessionID  string                 `json:"session_id"`
	Identifier string                 `json:"identifier"`
	Entries    []collect.NetworkEntry `json:"entries"`
	Cleared    bool                   `json:"cleared,omitempty"`
}

// OutputReadResult returns buffered process output lines.
type OutputReadResult struct {
	SessionID  string                 `json:"session_id"`
	Identifier string                 `json:"identifier"`
	Entries    []collect.ProcessEntry `json:"entries"`
	Cleared    bool                   `json:"cleared,omitempty"`
}

// StatusResult is a session's full state summary.
type StatusResult struct {
	SessionID  string          `json:"session_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Surfaces   []SurfaceInfo   `json:"surfaces"`
	BufferLens map[string]int  `json:"buffer_lens,omitempty"`
	Events     []journal.Event `json:"events,omitempty"`
}

// WorkflowRunResult reports one workflow execution. Identifier is the
// surface's identity after any navigations inside the workflow.
type WorkflowRunResult struct {
	SessionID  string           `json:"session_id"`
	Identifier string           `json:"identifier"`
	Result     *workflow.Result `json:"result"`
}
