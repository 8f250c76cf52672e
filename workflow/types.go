// Package workflow executes ordered step lists against one automation
// surface with stop-on-first-failure semantics, and evaluates the assertion
// sub-language used by assert steps.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/pilote/collect"
)

// ErrElementNotFound is the sentinel a Surface wraps when a selector's
// element never attached to the DOM within the wait budget. The assertion
// evaluator turns it into a passed:false record instead of an error.
var ErrElementNotFound = errors.New("workflow: element not found in DOM")

// Surface is the mutation/query interface a workflow drives. The browser
// package provides the Chrome-backed implementation; tests use fakes.
type Surface interface {
	// Click resolves the selector and clicks the element. A selector
	// matching more than one element is an error, not a guess.
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// Type focuses the element and inputs text.
	Type(ctx context.Context, selector, text string, timeout time.Duration) error
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitVisible blocks until the element is visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Screenshot captures the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	// Element waits for the selector's element to attach and returns it,
	// wrapping ErrElementNotFound when the wait times out.
	Element(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// URL reports the surface's current location.
	URL() string
}

// Element is the read-only view the assertion evaluator inspects.
type Element interface {
	Visible() (bool, error)
	Text() (string, error)
	// Attribute returns nil when the attribute is absent.
	Attribute(name string) (*string, error)
	Disabled() (bool, error)
	Checked() (bool, error)
	Value() (string, error)
}

// Diagnostics exposes the console/error entries visible so far on the
// surface, used to compute per-step deltas.
type Diagnostics interface {
	ConsoleEntries() []collect.ConsoleEntry
	ErrorEntries() []collect.PageErrorEntry
}

// Action tags one step kind.
type Action string

const (
	ActionClick      Action = "click"
	ActionType       Action = "type"
	ActionNavigate   Action = "navigate"
	ActionWait       Action = "wait"
	ActionScreenshot Action = "screenshot"
	ActionAssert     Action = "assert"
)

// Step is one caller-supplied workflow entry.
type Step struct {
	Action    Action     `json:"action"`
	Selector  string     `json:"selector,omitempty"`
	Text      string     `json:"text,omitempty"`
	URL       string     `json:"url,omitempty"`
	WaitMs    int        `json:"wait_ms,omitempty"`
	TimeoutMs int        `json:"timeout_ms,omitempty"`
	Assert    *Assertion `json:"assert,omitempty"`
}

// StepResult records the outcome of one attempted step.
type StepResult struct {
	Index      int                      `json:"index"`
	Action     Action                   `json:"action"`
	OK         bool                     `json:"ok"`
	Timestamp  int64                    `json:"timestamp"`
	Screenshot []byte                   `json:"screenshot,omitempty"`
	Console    []collect.ConsoleEntry   `json:"console,omitempty"`
	PageErrors []collect.PageErrorEntry `json:"page_errors,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Assertion  *AssertionResult         `json:"assertion,omitempty"`
}

// Result is the outcome of one workflow execution. StepResults are in step
// order; their count is less than TotalSteps exactly when execution stopped
// early.
type Result struct {
	StepResults     []StepResult `json:"step_results"`
	TotalSteps      int          `json:"total_steps"`
	CompletedSteps  int          `json:"completed_steps"`
	FailedStepIndex *int         `json:"failed_step_index,omitempty"`
	ValidationError string       `json:"validation_error,omitempty"`
}
