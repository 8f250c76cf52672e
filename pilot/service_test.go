package pilot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"
	"time"

	"github.com/hazyhaar/pilote/collect"
	"github.com/hazyhaar/pilote/session"
	"github.com/hazyhaar/pilote/spawn"
	"github.com/hazyhaar/pilote/workflow"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeElement struct {
	visible  bool
	text     string
	attrs    map[string]string
	disabled bool
	checked  bool
	value    string
}

func (e *fakeElement) Visible() (bool, error) { return e.visible, nil }
func (e *fakeElement) Text() (string, error)  { return e.text, nil }
func (e *fakeElement) Attribute(name string) (*string, error) {
	v, ok := e.attrs[name]
	if !ok {
		return nil, nil
	}
	return &v, nil
}
func (e *fakeElement) Disabled() (bool, error) { return e.disabled, nil }
func (e *fakeElement) Checked() (bool, error)  { return e.checked, nil }
func (e *fakeElement) Value() (string, error)  { return e.value, nil }

type fakeSurface struct {
	url      string
	html     string
	shot     []byte
	elements map[string]*fakeElement
	calls    []string
	closed   bool
	clickErr error
}

func (s *fakeSurface) Click(ctx context.Context, selector string, timeout time.Duration) error {
	s.calls = append(s.calls, "click "+selector)
	return s.clickErr
}

func (s *fakeSurface) Type(ctx context.Context, selector, text string, timeout time.Duration) error {
	s.calls = append(s.calls, "type "+selector)
	return nil
}

func (s *fakeSurface) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.calls = append(s.calls, "navigate "+url)
	s.url = url
	return nil
}

func (s *fakeSurface) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (s *fakeSurface) Screenshot(ctx context.Context) ([]byte, error) { return s.shot, nil }

func (s *fakeSurface) Element(ctx context.Context, selector string, timeout time.Duration) (workflow.Element, error) {
	el, ok := s.elements[selector]
	if !ok {
		return nil, fmt.Errorf("wait %q: %w", selector, workflow.ErrElementNotFound)
	}
	return el, nil
}

func (s *fakeSurface) URL() string { return s.url }

func (s *fakeSurface) HTML(ctx context.Context) (string, error) { return s.html, nil }

func (s *fakeSurface) Close() error {
	s.closed = true
	return nil
}

type fakeProc struct {
	pid      int
	readyErr error
	killed   bool
}

func (p *fakeProc) PID() int                            { return p.pid }
func (p *fakeProc) WaitReady(ctx context.Context) error { return p.readyErr }
func (p *fakeProc) Kill()                               { p.killed = true }

// testService builds a Service whose collaborators are fakes: openPage hands
// out pre-seeded surfaces in order, spawnApp hands out the given process and
// seeds its output collector.
func testService(t *testing.T, surfaces []*fakeSurface, proc *fakeProc) *Service {
	t.Helper()
	logger := slog.Default()
	s := New(&Config{BufferSize: 10}, session.NewRegistry(session.Config{Logger: logger}), nil, nil, logger)

	next := 0
	s.openPage = func(ctx context.Context, url string) (Surface, error) {
		if next >= len(surfaces) {
			return nil, errors.New("no surface seeded")
		}
		sf := surfaces[next]
		next++
		if sf.url == "" {
			sf.url = url
		}
		return sf, nil
	}
	s.spawnApp = func(opts spawn.Options, sink *collect.ProcessCollector) (Proc, error) {
		if proc == nil {
			return nil, errors.New("no process seeded")
		}
		sink.Record("stdout", "server listening on 8080")
		sink.Record("stderr", "warning: dev mode")
		return proc, nil
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := testService(t, nil, nil)
	ctx := context.Background()

	info, err := s.SessionStart(ctx)
	if err != nil {
		t.Fatalf("SessionStart: %v", err)
	}
	if info.SessionID == "" {
		t.Fatal("empty session id")
	}

	list, err := s.SessionList(ctx)
	if err != nil {
		t.Fatalf("SessionList: %v", err)
	}
	if len(list) != 1 || list[0].SessionID != info.SessionID {
		t.Fatalf("unexpected list: %+v", list)
	}

	end, err := s.SessionEnd(ctx, info.SessionID)
	if err != nil {
		t.Fatalf("SessionEnd: %v", err)
	}
	if !end.Destroyed {
		t.Fatal("expected destroyed=true")
	}

	// Ending again is a no-op, never an error.
	end, err = s.SessionEnd(ctx, info.SessionID)
	if err != nil {
		t.Fatalf("second SessionEnd: %v", err)
	}
	if end.Destroyed {
		t.Fatal("expected destroyed=false on second end")
	}
}

func TestWebLaunchRegistersSurfaceAndCollectors(t *testing.T) {
	sf := &fakeSurface{url: "https://app.test/login"}
	s := testService(t, []*fakeSurface{sf}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	launch, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/login")
	if err != nil {
		t.Fatalf("WebLaunch: %v", err)
	}
	if launch.Identifier != "https://app.test/login" {
		t.Fatalf("identifier = %q", launch.Identifier)
	}

	status, err := s.SessionStatus(ctx, info.SessionID)
	if err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	if len(status.Surfaces) != 1 || status.Surfaces[0].Kind != "web" {
		t.Fatalf("unexpected surfaces: %+v", status.Surfaces)
	}
	if _, ok := status.BufferLens["console:https://app.test/login"]; !ok {
		t.Fatalf("console buffer not registered: %v", status.BufferLens)
	}

	// Single surface resolves without an identifier.
	read, err := s.ReadConsole(ctx, info.SessionID, "", false)
	if err != nil {
		t.Fatalf("ReadConsole: %v", err)
	}
	if len(read.Entries) != 0 {
		t.Fatalf("expected empty console, got %d entries", len(read.Entries))
	}
}

func TestWebLaunchDuplicateIdentifierRefused(t *testing.T) {
	first := &fakeSurface{url: "https://app.test/login"}
	second := &fakeSurface{url: "https://app.test/login"}
	s := testService(t, []*fakeSurface{first, second}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/login"); err != nil {
		t.Fatalf("first WebLaunch: %v", err)
	}

	// A second page landing on the same URL is refused, its page closed.
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/login"); err == nil {
		t.Fatal("expected duplicate launch to fail")
	}
	if !second.closed {
		t.Fatal("duplicate page not closed")
	}
	if first.closed {
		t.Fatal("original page closed by the refused launch")
	}

	ref, ok := s.Registry().GetSurface(info.SessionID, "https://app.test/login")
	if !ok || ref.Handle.(*fakeSurface) != first {
		t.Fatal("original surface no longer registered")
	}
}

func TestWebLaunchUnknownSession(t *testing.T) {
	s := testService(t, []*fakeSurface{{}}, nil)

	_, err := s.WebLaunch(context.Background(), "sess_missing", "https://x.test")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestResolverErrorTaxonomy(t *testing.T) {
	a := &fakeSurface{url: "https://app.test/a"}
	b := &fakeSurface{url: "https://app.test/b"}
	s := testService(t, []*fakeSurface{a, b}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)

	// Zero surfaces.
	_, err := s.Click(ctx, info.SessionID, "", "#go", 0)
	if !errors.Is(err, session.ErrNoSurfaces) {
		t.Fatalf("expected ErrNoSurfaces, got %v", err)
	}

	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/a"); err != nil {
		t.Fatalf("WebLaunch a: %v", err)
	}
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/b"); err != nil {
		t.Fatalf("WebLaunch b: %v", err)
	}

	// Two surfaces, no identifier: ambiguity lists the alternatives.
	_, err = s.Click(ctx, info.SessionID, "", "#go", 0)
	var ambig *session.AmbiguousSurfaceError
	if !errors.As(err, &ambig) {
		t.Fatalf("expected AmbiguousSurfaceError, got %v", err)
	}
	if len(ambig.Available) != 2 {
		t.Fatalf("alternatives = %v", ambig.Available)
	}

	// Unknown identifier.
	_, err = s.Click(ctx, info.SessionID, "https://app.test/c", "#go", 0)
	var unknown *session.UnknownIdentifierError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownIdentifierError, got %v", err)
	}

	// Known identifier dispatches to the right surface.
	if _, err := s.Click(ctx, info.SessionID, "https://app.test/b", "#go", 0); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if len(b.calls) != 1 || b.calls[0] != "click #go" {
		t.Fatalf("b.calls = %v", b.calls)
	}
	if len(a.calls) != 0 {
		t.Fatalf("a.calls = %v", a.calls)
	}
}

func TestNavigateRekeysCollectorsAndCapturesAuto(t *testing.T) {
	sf := &fakeSurface{url: "https://app.test/login", shot: testPNG(t, 40, 30)}
	s := testService(t, []*fakeSurface{sf}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/login"); err != nil {
		t.Fatalf("WebLaunch: %v", err)
	}

	// Entries buffered before navigation must survive the re-key.
	c, _ := s.Registry().ConsoleCollector(info.SessionID, "https://app.test/login")
	c.Record("warning", "deprecated API")

	nav, err := s.Navigate(ctx, info.SessionID, "", "https://app.test/home", 0)
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if nav.Identifier != "https://app.test/home" || nav.PreviousIdentifier != "https://app.test/login" {
		t.Fatalf("unexpected result: %+v", nav)
	}

	if _, ok := s.Registry().GetSurface(info.SessionID, "https://app.test/login"); ok {
		t.Fatal("old identifier still registered")
	}
	read, err := s.ReadConsole(ctx, info.SessionID, "https://app.test/home", false)
	if err != nil {
		t.Fatalf("ReadConsole after rekey: %v", err)
	}
	if len(read.Entries) != 1 || read.Entries[0].Text != "deprecated API" {
		t.Fatalf("buffered entries lost: %+v", read.Entries)
	}

	// Navigation refreshed the auto-capture.
	shot, err := s.Screenshot(ctx, info.SessionID, "", "auto")
	if err != nil {
		t.Fatalf("Screenshot auto: %v", err)
	}
	if shot.Data == "" || shot.MimeType != "image/jpeg" {
		t.Fatalf("unexpected capture: %+v", shot)
	}
	if shot.Identifier != "https://app.test/home" {
		t.Fatalf("capture identifier = %q", shot.Identifier)
	}
}

func TestScreenshotAutoBeforeNavigate(t *testing.T) {
	sf := &fakeSurface{url: "https://app.test/"}
	s := testService(t, []*fakeSurface{sf}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/"); err != nil {
		t.Fatalf("WebLaunch: %v", err)
	}

	_, err := s.Screenshot(ctx, info.SessionID, "", "auto")
	if !errors.Is(err, ErrNoAutoCapture) {
		t.Fatalf("expected ErrNoAutoCapture, got %v", err)
	}
}

func TestScreenshotViewport(t *testing.T) {
	sf := &fakeSurface{url: "https://app.test/", shot: testPNG(t, 64, 48)}
	s := testService(t, []*fakeSurface{sf}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/"); err != nil {
		t.Fatalf("WebLaunch: %v", err)
	}

	shot, err := s.Screenshot(ctx, info.SessionID, "", "")
	if err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if shot.Mode != "viewport" || shot.Width != 64 || shot.Height != 48 {
		t.Fatalf("unexpected result: %+v", shot)
	}
}

func TestAppLaunchAndOutputRead(t *testing.T) {
	proc := &fakeProc{pid: 4242}
	s := testService(t, nil, proc)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	launch, err := s.AppLaunch(ctx, info.SessionID, []string{"./app", "--port", "8080"}, "", nil, `listening on \d+`, 0)
	if err != nil {
		t.Fatalf("AppLaunch: %v", err)
	}
	if launch.Identifier != session.EmbeddedIdentifier || launch.PID != 4242 {
		t.Fatalf("unexpected launch: %+v", launch)
	}

	// A second embedded launch in the same session is refused.
	if _, err := s.AppLaunch(ctx, info.SessionID, []string{"./other"}, "", nil, "", 0); err == nil {
		t.Fatal("expected second AppLaunch to fail")
	}

	read, err := s.ReadOutput(ctx, info.SessionID, "", true)
	if err != nil {
		t.Fatalf("ReadOutput: %v", err)
	}
	if len(read.Entries) != 2 || read.Entries[0].Line != "server listening on 8080" {
		t.Fatalf("unexpected entries: %+v", read.Entries)
	}

	read, err = s.ReadOutput(ctx, info.SessionID, "", false)
	if err != nil {
		t.Fatalf("ReadOutput after clear: %v", err)
	}
	if len(read.Entries) != 0 {
		t.Fatalf("buffer not cleared: %+v", read.Entries)
	}
}

func TestAppLaunchReadinessFailureKillsProcess(t *testing.T) {
	proc := &fakeProc{pid: 7, readyErr: errors.New("spawn: process exited before readiness")}
	s := testService(t, nil, proc)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.AppLaunch(ctx, info.SessionID, []string{"./app"}, "", nil, "ready", 0); err == nil {
		t.Fatal("expected readiness failure")
	}
	if !proc.killed {
		t.Fatal("process not killed after failed readiness")
	}
	if _, ok := s.Registry().GetSurface(info.SessionID, session.EmbeddedIdentifier); ok {
		t.Fatal("embedded surface registered despite failure")
	}
}

func TestSessionEndTearsDownEverything(t *testing.T) {
	sf := &fakeSurface{url: "https://app.test/"}
	proc := &fakeProc{pid: 99}
	s := testService(t, []*fakeSurface{sf}, proc)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/"); err != nil {
		t.Fatalf("WebLaunch: %v", err)
	}
	if _, err := s.AppLaunch(ctx, info.SessionID, []string{"./app"}, "", nil, "", 0); err != nil {
		t.Fatalf("AppLaunch: %v", err)
	}

	end, err := s.SessionEnd(ctx, info.SessionID)
	if err != nil {
		t.Fatalf("SessionEnd: %v", err)
	}
	if !end.Destroyed {
		t.Fatal("expected destroyed=true")
	}
	if !sf.closed {
		t.Fatal("web surface not closed")
	}
	if !proc.killed {
		t.Fatal("process not killed")
	}
}

func TestWebActionOnEmbeddedSurface(t *testing.T) {
	proc := &fakeProc{pid: 1}
	s := testService(t, nil, proc)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.AppLaunch(ctx, info.SessionID, []string{"./app"}, "", nil, "", 0); err != nil {
		t.Fatalf("AppLaunch: %v", err)
	}

	_, err := s.Click(ctx, info.SessionID, session.EmbeddedIdentifier, "#go", 0)
	if !errors.Is(err, ErrWebSurfaceRequired) {
		t.Fatalf("expected ErrWebSurfaceRequired, got %v", err)
	}
}

func TestPageMarkdown(t *testing.T) {
	sf := &fakeSurface{
		url:  "https://app.test/doc",
		html: `<h1>Guide</h1><p>See <a href="/next">next page</a>.</p><script>evil()</script>`,
	}
	s := testService(t, []*fakeSurface{sf}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/doc"); err != nil {
		t.Fatalf("WebLaunch: %v", err)
	}

	md, err := s.PageMarkdown(ctx, info.SessionID, "")
	if err != nil {
		t.Fatalf("PageMarkdown: %v", err)
	}
	if want := "# Guide"; !bytes.Contains([]byte(md.Markdown), []byte(want)) {
		t.Fatalf("markdown missing %q:\n%s", want, md.Markdown)
	}
	if bytes.Contains([]byte(md.Markdown), []byte("evil")) {
		t.Fatalf("script content leaked:\n%s", md.Markdown)
	}
	if !bytes.Contains([]byte(md.Markdown), []byte("https://app.test/next")) {
		t.Fatalf("relative link not resolved:\n%s", md.Markdown)
	}
}

func TestRunWorkflowFailureIsData(t *testing.T) {
	sf := &fakeSurface{
		url:  "https://app.test/form",
		shot: testPNG(t, 20, 20),
		elements: map[string]*fakeElement{
			"#submit": {visible: true},
			"#status": {visible: true, text: "Error"},
		},
	}
	s := testService(t, []*fakeSurface{sf}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/form"); err != nil {
		t.Fatalf("WebLaunch: %v", err)
	}

	run, err := s.RunWorkflow(ctx, info.SessionID, "", []workflow.Step{
		{Action: workflow.ActionClick, Selector: "#submit"},
		{Action: workflow.ActionAssert, Assert: &workflow.Assertion{
			Type: workflow.AssertTextEquals, Selector: "#status", Expected: "Saved",
		}},
	})
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}

	res := run.Result
	if res.FailedStepIndex == nil || *res.FailedStepIndex != 1 {
		t.Fatalf("FailedStepIndex = %v", res.FailedStepIndex)
	}
	if res.CompletedSteps != 1 {
		t.Fatalf("CompletedSteps = %d", res.CompletedSteps)
	}
	last := res.StepResults[1]
	if last.Assertion == nil || last.Assertion.Passed {
		t.Fatalf("expected failed assertion record, got %+v", last.Assertion)
	}
	if last.Assertion.Actual != "Error" {
		t.Fatalf("Actual = %q", last.Assertion.Actual)
	}
}

func TestRunWorkflowNavigateRekeys(t *testing.T) {
	sf := &fakeSurface{url: "https://app.test/start", shot: testPNG(t, 20, 20)}
	s := testService(t, []*fakeSurface{sf}, nil)
	ctx := context.Background()

	info, _ := s.SessionStart(ctx)
	if _, err := s.WebLaunch(ctx, info.SessionID, "https://app.test/start"); err != nil {
		t.Fatalf("WebLaunch: %v", err)
	}

	run, err := s.RunWorkflow(ctx, info.SessionID, "", []workflow.Step{
		{Action: workflow.ActionNavigate, URL: "https://app.test/next"},
	})
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if run.Identifier != "https://app.test/next" {
		t.Fatalf("post-run identifier = %q", run.Identifier)
	}
	if _, ok := s.Registry().GetSurface(info.SessionID, "https://app.test/next"); !ok {
		t.Fatal("surface not re-keyed to landed URL")
	}
}
