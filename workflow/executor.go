package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pilote/collect"
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// StepTimeout bounds each action dispatch. Default: 10s.
	StepTimeout time.Duration

	// AssertTimeout bounds the attach wait of assert steps. Default: 5s.
	AssertTimeout time.Duration

	// MaxSteps bounds workflow length. Default: 50.
	MaxSteps int

	// OnNavigate is called after a successful navigate step with the URLs
	// before and after, so the owner can re-key per-identifier state.
	OnNavigate func(oldURL, newURL string)

	Logger *slog.Logger
}

func (c *ExecutorConfig) defaults() {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.AssertTimeout <= 0 {
		c.AssertTimeout = 5 * time.Second
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 50
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Executor runs workflows. Steps execute strictly in order; no two steps of
// one workflow ever run concurrently.
type Executor struct {
	cfg ExecutorConfig
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	cfg.defaults()
	return &Executor{cfg: cfg}
}

// Validate checks every step against its action's required fields. Called by
// Execute before any step runs, so a malformed workflow has no side effects.
func (e *Executor) Validate(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("workflow: empty step list")
	}
	if len(steps) > e.cfg.MaxSteps {
		return fmt.Errorf("workflow: %d steps exceeds the limit of %d", len(steps), e.cfg.MaxSteps)
	}
	for i, s := range steps {
		if err := validateStep(s); err != nil {
			return fmt.Errorf("workflow: step %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	switch s.Action {
	case ActionClick:
		if s.Selector == "" {
			return fmt.Errorf("click requires a selector")
		}
	case ActionType:
		if s.Selector == "" {
			return fmt.Errorf("type requires a selector")
		}
	case ActionNavigate:
		if s.URL == "" {
			return fmt.Errorf("navigate requires a url")
		}
	case ActionWait:
		if s.Selector == "" && s.WaitMs <= 0 {
			return fmt.Errorf("wait requires a selector or a positive wait_ms")
		}
	case ActionScreenshot:
		// No required fields.
	case ActionAssert:
		if err := s.Assert.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	return nil
}

// Execute runs the steps against the surface. Validation failures return a
// Result with zero step results. Otherwise each step is dispatched in order;
// a post-action screenshot and the console/error delta since the previous
// step are captured best-effort for every attempted step, including failed
// ones, and execution stops at the first failure.
func (e *Executor) Execute(ctx context.Context, surface Surface, steps []Step, diag Diagnostics) *Result {
	res := &Result{TotalSteps: len(steps)}

	if err := e.Validate(steps); err != nil {
		res.ValidationError = err.Error()
		return res
	}

	var lastConsole, lastErrors int
	if diag != nil {
		lastConsole = len(diag.ConsoleEntries())
		lastErrors = len(diag.ErrorEntries())
	}

	for i, step := range steps {
		sr := StepResult{
			Index:     i,
			Action:    step.Action,
			Timestamp: time.Now().UnixMilli(),
		}

		assertion, stepErr := e.dispatch(ctx, surface, step)
		sr.Assertion = assertion

		// Best-effort debugging context, captured on failure too.
		if shot, err := surface.Screenshot(ctx); err == nil {
			sr.Screenshot = shot
		} else {
			e.cfg.Logger.Debug("workflow: step screenshot failed", "step", i, "error", err)
		}
		if diag != nil {
			sr.Console, lastConsole = delta(diag.ConsoleEntries(), lastConsole)
			sr.PageErrors, lastErrors = delta(diag.ErrorEntries(), lastErrors)
		}

		switch {
		case stepErr != nil:
			sr.Error = stepErr.Error()
		case assertion != nil && !assertion.Passed:
			sr.Error = assertion.Message
		default:
			sr.OK = true
		}

		res.StepResults = append(res.StepResults, sr)
		if !sr.OK {
			idx := i
			res.FailedStepIndex = &idx
			e.cfg.Logger.Info("workflow: stopped at failed step",
				"step", i, "action", step.Action, "error", sr.Error)
			return res
		}
		res.CompletedSteps++
	}

	return res
}

// dispatch performs one step's action. For assert steps the failure is in
// the returned record, not the error; the error carries action failures and
// unexpected collaborator failures only.
func (e *Executor) dispatch(ctx context.Context, surface Surface, step Step) (*AssertionResult, error) {
	timeout := e.cfg.StepTimeout
	if step.TimeoutMs > 0 {
		timeout = time.Duration(step.TimeoutMs) * time.Millisecond
	}

	switch step.Action {
	case ActionClick:
		return nil, surface.Click(ctx, step.Selector, timeout)

	case ActionType:
		return nil, surface.Type(ctx, step.Selector, step.Text, timeout)

	case ActionNavigate:
		oldURL := surface.URL()
		if err := surface.Navigate(ctx, step.URL, timeout); err != nil {
			return nil, err
		}
		if e.cfg.OnNavigate != nil {
			e.cfg.OnNavigate(oldURL, surface.URL())
		}
		return nil, nil

	case ActionWait:
		if step.Selector != "" {
			return nil, surface.WaitVisible(ctx, step.Selector, timeout)
		}
		return nil, sleepCtx(ctx, time.Duration(step.WaitMs)*time.Millisecond)

	case ActionScreenshot:
		// The post-action capture in Execute is the screenshot.
		return nil, nil

	case ActionAssert:
		ar, err := EvaluateAssertion(ctx, surface, *step.Assert, e.cfg.AssertTimeout)
		if err != nil {
			return nil, err
		}
		return &ar, nil
	}
	return nil, fmt.Errorf("workflow: unknown action %q", step.Action)
}

// delta returns the suffix of entries beyond prev, so each step reports
// exactly what appeared during it, and the new high-water mark.
func delta[T any](entries []T, prev int) ([]T, int) {
	if prev >= len(entries) {
		return nil, len(entries)
	}
	out := make([]T, len(entries)-prev)
	copy(out, entries[prev:])
	return out, len(entries)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CollectorDiagnostics adapts a console and an error collector to the
// Diagnostics interface. Either may be nil.
type CollectorDiagnostics struct {
	Console *collect.ConsoleCollector
	Errors  *collect.PageErrorCollector
}

func (d CollectorDiagnostics) ConsoleEntries() []collect.ConsoleEntry {
	if d.Console == nil {
		return nil
	}
	return d.Console.Entries()
}

func (d CollectorDiagnostics) ErrorEntries() []collect.PageErrorEntry {
	if d.Errors == nil {
		return nil
	}
	return d.Errors.Entries()
}
