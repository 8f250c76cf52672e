// CLAUDE:SUMMARY Caller-facing coordination service: sessions, surface launches, actions, diagnostics reads, workflows.
// Package pilot is the coordination layer between remote callers and the
// automation resources they hold: sessions and their surfaces, keyed
// diagnostic collectors, navigation re-keying, and workflow execution.
// Everything stateful lives in the session registry; this package owns the
// operation semantics and the collaborator wiring.
package pilot

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/pilote/browser"
	"github.com/hazyhaar/pilote/collect"
	"github.com/hazyhaar/pilote/imaging"
	"github.com/hazyhaar/pilote/journal"
	"github.com/hazyhaar/pilote/pagemd"
	"github.com/hazyhaar/pilote/session"
	"github.com/hazyhaar/pilote/spawn"
	"github.com/hazyhaar/pilote/workflow"
)

// Surface is the drivable web surface the service acts on. browser.Page is
// the production implementation; tests substitute fakes.
type Surface interface {
	workflow.Surface
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Proc is a spawned embedded application. spawn.Process is the production
// implementation.
type Proc interface {
	PID() int
	WaitReady(ctx context.Context) error
	Kill()
}

// Service owns the registry, the browser manager and the journal, and
// implements every caller-facing operation.
type Service struct {
	cfg      *Config
	logger   *slog.Logger
	registry *session.Registry
	manager  *browser.Manager
	journal  *journal.Journal
	md       *pagemd.Converter

	// Collaborator seams, replaced in tests.
	openPage func(ctx context.Context, url string) (Surface, error)
	spawnApp func(opts spawn.Options, sink *collect.ProcessCollector) (Proc, error)
}

// New creates a Service. manager and jnl may be nil (no web surfaces, no
// journal); registry is required.
func New(cfg *Config, registry *session.Registry, manager *browser.Manager, jnl *journal.Journal, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		manager:  manager,
		journal:  jnl,
		md:       pagemd.New(),
	}
	s.openPage = func(ctx context.Context, url string) (Surface, error) {
		if s.manager == nil {
			return nil, ErrBrowserUnavailable
		}
		return browser.OpenPage(ctx, s.manager, url)
	}
	s.spawnApp = func(opts spawn.Options, sink *collect.ProcessCollector) (Proc, error) {
		return spawn.Spawn(opts, sink)
	}
	return s
}

// Registry exposes the session registry, for shutdown teardown.
func (s *Service) Registry() *session.Registry { return s.registry }

// --- sessions ---

// SessionStart creates a new empty session.
func (s *Service) SessionStart(ctx context.Context) (*SessionInfo, error) {
	sess := s.registry.Create()
	s.journal.Record(ctx, sess.ID, "session_start", "", nil, true)
	return &SessionInfo{SessionID: sess.ID, CreatedAt: sess.CreatedAt}, nil
}

// SessionEnd destroys a session and everything it holds. It never fails:
// ending an unknown or already-ended session is a no-op, reported as
// destroyed=false.
func (s *Service) SessionEnd(ctx context.Context, sessionID string) (*EndResult, error) {
	_, existed := s.registry.Get(sessionID)
	s.registry.Destroy(ctx, sessionID)
	if existed {
		s.journal.Record(ctx, sessionID, "session_end", "", nil, true)
	}
	return &EndResult{SessionID: sessionID, Destroyed: existed}, nil
}

// SessionList enumerates live sessions with their open surfaces.
func (s *Service) SessionList(ctx context.Context) ([]SessionInfo, error) {
	ids := s.registry.List()
	infos := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		sess, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		infos = append(infos, SessionInfo{
			SessionID: sess.ID,
			CreatedAt: sess.CreatedAt,
			Surfaces:  s.surfaceInfos(id),
		})
	}
	return infos, nil
}

// SessionStatus reports one session's surfaces, buffer fill levels, and
// recent journal events.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (*StatusResult, error) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionNotFound
	}

	lens := map[string]int{}
	for id, c := range s.registry.ConsoleCollectors(sessionID) {
		lens["console:"+id] = c.Len()
	}
	for id, c := range s.registry.PageErrorCollectors(sessionID) {
		lens["page_errors:"+id] = c.Len()
	}
	for id, c := range s.registry.NetworkCollectors(sessionID) {
		lens["network:"+id] = c.Len()
	}
	for id, c := range s.registry.ProcessCollectors(sessionID) {
		lens["output:"+id] = c.Len()
	}

	var events []journal.Event
	if s.journal != nil {
		var err error
		events, err = s.journal.Recent(ctx, sessionID, 20)
		if err != nil {
			s.logger.Warn("pilot: journal read failed", "session_id", sessionID, "error", err)
		}
	}

	return &StatusResult{
		SessionID:  sess.ID,
		CreatedAt:  sess.CreatedAt,
		Surfaces:   s.surfaceInfos(sessionID),
		BufferLens: lens,
		Events:     events,
	}, nil
}

func (s *Service) surfaceInfos(sessionID string) []SurfaceInfo {
	surfaces := s.registry.Surfaces(sessionID)
	infos := make([]SurfaceInfo, 0, len(surfaces))
	for id, ref := range surfaces {
		infos = append(infos, SurfaceInfo{
			Identifier: id,
			Kind:       string(ref.Kind),
			URL:        ref.URL,
			PID:        ref.PID,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Identifier < infos[j].Identifier })
	return infos
}

// --- launches ---

// WebLaunch opens a browser page, registers its surface reference and its
// console/error/network collectors under the landed URL.
func (s *Service) WebLaunch(ctx context.Context, sessionID, url string) (*LaunchResult, error) {
	if _, ok := s.registry.Get(sessionID); !ok {
		return nil, session.ErrSessionNotFound
	}

	surface, err := s.openPage(ctx, url)
	if err != nil {
		s.journal.Record(ctx, sessionID, "web_launch", url, map[string]string{"error": err.Error()}, false)
		return nil, fmt.Errorf("pilot: open page %s: %w", url, err)
	}

	identifier := surface.URL()
	if identifier == "" {
		identifier = url
	}

	// One surface per (session, identifier). Silently replacing the occupant
	// would strand its page and collectors outside the teardown sweep.
	if _, ok := s.registry.GetSurface(sessionID, identifier); ok {
		if cerr := surface.Close(); cerr != nil {
			s.logger.Warn("pilot: close duplicate page failed",
				"session_id", sessionID, "identifier", identifier, "error", cerr)
		}
		err := fmt.Errorf("pilot: surface %q already open in session %s", identifier, sessionID)
		s.journal.Record(ctx, sessionID, "web_launch", identifier, map[string]string{"error": err.Error()}, false)
		return nil, err
	}

	console := collect.NewConsoleCollector(s.cfg.BufferSize)
	pageErrs := collect.NewPageErrorCollector(s.cfg.BufferSize)
	network := collect.NewNetworkCollector(s.cfg.BufferSize)

	// Event capture must outlive this request; collectors are detached
	// explicitly at session destruction.
	if rp, ok := surface.(interface{ Rod() *rod.Page }); ok {
		attachCtx := context.WithoutCancel(ctx)
		console.AttachPage(attachCtx, rp.Rod())
		pageErrs.AttachPage(attachCtx, rp.Rod())
		network.AttachPage(attachCtx, rp.Rod())
	}

	s.registry.SetSurface(sessionID, identifier, &session.SurfaceRef{
		Kind:    session.KindWeb,
		Handle:  surface,
		URL:     identifier,
		CloseFn: surface.Close,
	})
	s.registry.SetConsoleCollector(sessionID, identifier, console)
	s.registry.SetPageErrorCollector(sessionID, identifier, pageErrs)
	s.registry.SetNetworkCollector(sessionID, identifier, network)

	s.journal.Record(ctx, sessionID, "web_launch", identifier, nil, true)
	return &LaunchResult{
		SessionID:  sessionID,
		Identifier: identifier,
		Kind:       string(session.KindWeb),
		URL:        identifier,
	}, nil
}

// AppLaunch spawns an embedded application, waits for readiness, and
// registers its surface, output collector and kill-tree resource. A session
// holds at most one embedded surface.
func (s *Service) AppLaunch(ctx context.Context, sessionID string, command []string, dir string, env []string, readyPattern string, readyPort int) (*LaunchResult, error) {
	if _, ok := s.registry.Get(sessionID); !ok {
		return nil, session.ErrSessionNotFound
	}
	if _, ok := s.registry.GetSurface(sessionID, session.EmbeddedIdentifier); ok {
		return nil, fmt.Errorf("pilot: session %s already has an embedded application", sessionID)
	}

	output := collect.NewProcessCollector(s.cfg.BufferSize)
	proc, err := s.spawnApp(spawn.Options{
		Command:      command,
		Dir:          dir,
		Env:          env,
		ReadyPattern: readyPattern,
		ReadyPort:    readyPort,
		ReadyTimeout: s.cfg.Spawn.ReadyTimeout,
		Logger:       s.logger,
	}, output)
	if err != nil {
		s.journal.Record(ctx, sessionID, "app_launch", "", map[string]string{"error": err.Error()}, false)
		return nil, err
	}

	if err := proc.WaitReady(ctx); err != nil {
		proc.Kill()
		s.journal.Record(ctx, sessionID, "app_launch", "", map[string]string{"error": err.Error()}, false)
		return nil, err
	}

	s.registry.SetSurface(sessionID, session.EmbeddedIdentifier, &session.SurfaceRef{
		Kind: session.KindEmbedded,
		PID:  proc.PID(),
	})
	s.registry.SetProcessCollector(sessionID, session.EmbeddedIdentifier, output)
	if err := s.registry.AddResource(sessionID, session.Resource{
		Name: fmt.Sprintf("process tree pid=%d", proc.PID()),
		Release: func(context.Context) error {
			proc.Kill()
			return nil
		},
	}); err != nil {
		// The session vanished between the check and the registration.
		proc.Kill()
		return nil, err
	}

	s.journal.Record(ctx, sessionID, "app_launch", session.EmbeddedIdentifier,
		map[string]int{"pid": proc.PID()}, true)
	return &LaunchResult{
		SessionID:  sessionID,
		Identifier: session.EmbeddedIdentifier,
		Kind:       string(session.KindEmbedded),
		PID:        proc.PID(),
	}, nil
}

// --- actions ---

// Click clicks an element on the resolved web surface.
func (s *Service) Click(ctx context.Context, sessionID, identifier, selector string, timeoutMs int) (*ActionResult, error) {
	res, surface, err := s.resolveWeb(sessionID, identifier)
	if err != nil {
		return nil, err
	}

	if err := surface.Click(ctx, selector, s.actionTimeout(timeoutMs)); err != nil {
		s.journal.Record(ctx, sessionID, "click", res.Identifier, map[string]string{"selector": selector, "error": err.Error()}, false)
		return nil, err
	}
	s.journal.Record(ctx, sessionID, "click", res.Identifier, map[string]string{"selector": selector}, true)
	return &ActionResult{
		SessionID:  sessionID,
		Identifier: res.Identifier,
		Action:     "click",
		Selector:   selector,
		OK:         true,
	}, nil
}

// TypeText types into an element on the resolved web surface.
func (s *Service) TypeText(ctx context.Context, sessionID, identifier, selector, text string, timeoutMs int) (*ActionResult, error) {
	res, surface, err := s.resolveWeb(sessionID, identifier)
	if err != nil {
		return nil, err
	}

	if err := surface.Type(ctx, selector, text, s.actionTimeout(timeoutMs)); err != nil {
		s.journal.Record(ctx, sessionID, "type_text", res.Identifier, map[string]string{"selector": selector, "error": err.Error()}, false)
		return nil, err
	}
	s.journal.Record(ctx, sessionID, "type_text", res.Identifier, map[string]string{"selector": selector}, true)
	return &ActionResult{
		SessionID:  sessionID,
		Identifier: res.Identifier,
		Action:     "type",
		Selector:   selector,
		OK:         true,
	}, nil
}

// Navigate loads a URL on the resolved web surface, re-keys everything
// registered under the old identifier to the landed URL, and refreshes the
// session's auto-capture.
func (s *Service) Navigate(ctx context.Context, sessionID, identifier, url string, timeoutMs int) (*NavigateResult, error) {
	res, surface, err := s.resolveWeb(sessionID, identifier)
	if err != nil {
		return nil, err
	}
	oldID := res.Identifier

	if err := surface.Navigate(ctx, url, s.actionTimeout(timeoutMs)); err != nil {
		s.journal.Record(ctx, sessionID, "navigate", oldID, map[string]string{"url": url, "error": err.Error()}, false)
		return nil, err
	}

	newID := surface.URL()
	if newID == "" {
		newID = url
	}
	if newID != oldID {
		s.registry.RekeyIdentifier(sessionID, oldID, newID)
	}
	s.captureAuto(ctx, sessionID, surface)

	s.journal.Record(ctx, sessionID, "navigate", newID, map[string]string{"from": oldID}, true)
	return &NavigateResult{
		SessionID:          sessionID,
		Identifier:         newID,
		PreviousIdentifier: oldID,
		URL:                newID,
	}, nil
}

// Screenshot captures the resolved surface. Mode "viewport" (default)
// captures live; "auto" returns the last navigation auto-capture without
// touching the surface. Embedded surfaces are captured from their native
// window by PID.
func (s *Service) Screenshot(ctx context.Context, sessionID, identifier, mode string) (*ScreenshotResult, error) {
	if mode == "" {
		mode = "viewport"
	}

	if mode == "auto" {
		capture, ok := s.registry.GetAutoCapture(sessionID)
		if !ok {
			if _, exists := s.registry.Get(sessionID); !exists {
				return nil, session.ErrSessionNotFound
			}
			return nil, ErrNoAutoCapture
		}
		return s.optimized(sessionID, capture.URL, mode, capture.Screenshot, capture.CapturedAt)
	}

	res, err := s.registry.ResolveSurface(sessionID, identifier)
	if err != nil {
		return nil, err
	}

	var raw []byte
	switch res.Ref.Kind {
	case session.KindEmbedded:
		raw, err = spawn.CaptureWindow(ctx, res.Ref.PID)
	default:
		var surface Surface
		surface, err = webSurface(res)
		if err == nil {
			raw, err = surface.Screenshot(ctx)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("pilot: screenshot %q: %w", res.Identifier, err)
	}

	return s.optimized(sessionID, res.Identifier, mode, raw, time.Now())
}

func (s *Service) optimized(sessionID, identifier, mode string, raw []byte, at time.Time) (*ScreenshotResult, error) {
	opt, err := imaging.Optimize(raw, imaging.Options{
		MaxWidth: s.cfg.Screenshot.MaxWidth,
		Quality:  s.cfg.Screenshot.Quality,
	})
	if err != nil {
		return nil, err
	}
	return &ScreenshotResult{
		SessionID:      sessionID,
		Identifier:     identifier,
		Mode:           mode,
		Data:           base64.StdEncoding.EncodeToString(opt.Data),
		MimeType:       opt.MimeType,
		Width:          opt.Width,
		Height:         opt.Height,
		OriginalBytes:  opt.OriginalBytes,
		OptimizedBytes: opt.OptimizedBytes,
		CapturedAt:     at,
	}, nil
}

// PageMarkdown renders the resolved web surface's DOM as markdown.
func (s *Service) PageMarkdown(ctx context.Context, sessionID, identifier string) (*MarkdownResult, error) {
	res, surface, err := s.resolveWeb(sessionID, identifier)
	if err != nil {
		return nil, err
	}

	html, err := surface.HTML(ctx)
	if err != nil {
		return nil, err
	}
	md, err := s.md.Convert(html, surface.URL())
	if err != nil {
		return nil, err
	}
	return &MarkdownResult{
		SessionID:  sessionID,
		Identifier: res.Identifier,
		URL:        surface.URL(),
		Markdown:   md,
	}, nil
}

// --- diagnostic reads ---

// ReadConsole returns the buffered console entries of the resolved surface.
func (s *Service) ReadConsole(ctx context.Context, sessionID, identifier string, clear bool) (*ConsoleReadResult, error) {
	res, err := s.registry.ResolveSurface(sessionID, identifier)
	if err != nil {
		return nil, err
	}
	c, ok := s.registry.ConsoleCollector(sessionID, res.Identifier)
	if !ok {
		return nil, fmt.Errorf("pilot: no console collector for %q", res.Identifier)
	}
	entries := c.Entries()
	if clear {
		c.Clear()
	}
	return &ConsoleReadResult{SessionID: sessionID, Identifier: res.Identifier, Entries: entries, Cleared: clear}, nil
}

// ReadErrors returns the buffered page errors of the resolved surface.
func (s *Service) ReadErrors(ctx context.Context, sessionID, identifier string, clear bool) (*ErrorReadResult, error) {
	res, err := s.registry.ResolveSurface(sessionID, identifier)
	if err != nil {
		return nil, err
	}
	c, ok := s.registry.PageErrorCollector(sessionID, res.Identifier)
	if !ok {
		return nil, fmt.Errorf("pilot: no page error collector for %q", res.Identifier)
	}
	entries := c.Entries()
	if clear {
		c.Clear()
	}
	return &ErrorReadResult{SessionID: sessionID, Identifier: res.Identifier, Entries: entries, Cleared: clear}, nil
}

// ReadNetwork returns the buffered request/response entries of the
// resolved surface.
func (s *Service) ReadNetwork(ctx context.Context, sessionID, identifier string, clear bool) (*NetworkReadResult, error) {
	res, err := s.registry.ResolveSurface(sessionID, identifier)
	if err != nil {
		return nil, err
	}
	c, ok := s.registry.NetworkCollector(sessionID, res.Identifier)
	if !ok {
		return nil, fmt.Errorf("pilot: no network collector for %q", res.Identifier)
	}
	entries := c.Entries()
	if clear {
		c.Clear()
	}
	return &NetworkReadResult{SessionID: sessionID, Identifier: res.Identifier, Entries: entries, Cleared: clear}, nil
}

// ReadOutput returns the buffered stdout/stderr lines of the resolved
// embedded surface.
func (s *Service) ReadOutput(ctx context.Context, sessionID, identifier string, clear bool) (*OutputReadResult, error) {
	res, err := s.registry.ResolveSurface(sessionID, identifier)
	if err != nil {
		return nil, err
	}
	c, ok := s.registry.ProcessCollector(sessionID, res.Identifier)
	if !ok {
		return nil, fmt.Errorf("pilot: no process output collector for %q", res.Identifier)
	}
	entries := c.Entries()
	if clear {
		c.Clear()
	}
	return &OutputReadResult{SessionID: sessionID, Identifier: res.Identifier, Entries: entries, Cleared: clear}, nil
}

// --- workflows ---

// RunWorkflow executes a step list against the resolved web surface.
// Navigations inside the workflow re-key the surface exactly like the
// navigate operation; the returned identifier is the post-run identity.
func (s *Service) RunWorkflow(ctx context.Context, sessionID, identifier string, steps []workflow.Step) (*WorkflowRunResult, error) {
	res, surface, err := s.resolveWeb(sessionID, identifier)
	if err != nil {
		return nil, err
	}
	current := res.Identifier

	console, _ := s.registry.ConsoleCollector(sessionID, current)
	pageErrs, _ := s.registry.PageErrorCollector(sessionID, current)

	exec := workflow.NewExecutor(workflow.ExecutorConfig{
		StepTimeout:   s.cfg.Workflow.StepTimeout,
		AssertTimeout: s.cfg.Workflow.AssertTimeout,
		MaxSteps:      s.cfg.Workflow.MaxSteps,
		Logger:        s.logger,
		OnNavigate: func(_, newURL string) {
			if newURL == "" || newURL == current {
				return
			}
			s.registry.RekeyIdentifier(sessionID, current, newURL)
			current = newURL
			s.captureAuto(ctx, sessionID, surface)
		},
	})

	result := exec.Execute(ctx, surface, steps, workflow.CollectorDiagnostics{
		Console: console,
		Errors:  pageErrs,
	})

	ok := result.ValidationError == "" && result.FailedStepIndex == nil
	s.journal.Record(ctx, sessionID, "workflow_run", current, map[string]int{
		"total_steps":     result.TotalSteps,
		"completed_steps": result.CompletedSteps,
	}, ok)

	return &WorkflowRunResult{
		SessionID:  sessionID,
		Identifier: current,
		Result:     result,
	}, nil
}

// --- helpers ---

func (s *Service) resolveWeb(sessionID, identifier string) (*session.Resolved, Surface, error) {
	res, err := s.registry.ResolveSurface(sessionID, identifier)
	if err != nil {
		return nil, nil, err
	}
	surface, err := webSurface(res)
	if err != nil {
		return nil, nil, err
	}
	return res, surface, nil
}

func webSurface(res *session.Resolved) (Surface, error) {
	if res.Ref.Kind != session.KindWeb {
		return nil, ErrWebSurfaceRequired
	}
	surface, ok := res.Ref.Handle.(Surface)
	if !ok {
		return nil, fmt.Errorf("pilot: surface %q has no drivable handle", res.Identifier)
	}
	return surface, nil
}

func (s *Service) actionTimeout(ms int) time.Duration {
	if ms <= 0 {
		return s.cfg.Workflow.StepTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Service) captureAuto(ctx context.Context, sessionID string, surface Surface) {
	shot, err := surface.Screenshot(ctx)
	if err != nil {
		s.logger.Debug("pilot: auto-capture failed", "session_id", sessionID, "error", err)
		return
	}
	s.registry.SetAutoCapture(sessionID, &session.AutoCapture{
		Screenshot: shot,
		URL:        surface.URL(),
		CapturedAt: time.Now(),
	})
}
