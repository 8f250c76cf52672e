// CLAUDE:SUMMARY Registers all pilot MCP tools — sessions, launches, actions, screenshots, diagnostic reads, workflows.
package pilot

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pilote/kit"
	"github.com/hazyhaar/pilote/workflow"
)

// RegisterMCP registers pilot tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSessionStartTool(srv)
	s.registerSessionEndTool(srv)
	s.registerSessionListTool(srv)
	s.registerSessionStatusTool(srv)
	s.registerWebLaunchTool(srv)
	s.registerAppLaunchTool(srv)
	s.registerClickTool(srv)
	s.registerTypeTextTool(srv)
	s.registerNavigateTool(srv)
	s.registerScreenshotTool(srv)
	s.registerPageMarkdownTool(srv)
	s.registerReadConsoleTool(srv)
	s.registerReadErrorsTool(srv)
	s.registerReadNetworkTool(srv)
	s.registerReadOutputTool(srv)
	s.registerRunWorkflowTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

// Common property fragments shared by most tools.
func sessionProp() map[string]any {
	return map[string]any{"type": "string", "description": "Session ID from pilot_session_start"}
}

func identifierProp() map[string]any {
	return map[string]any{"type": "string", "description": "Surface identifier (page URL or \"embedded\"). Optional when the session has exactly one surface"}
}

// --- session_start ---

func (s *Service) registerSessionStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_session_start",
		Description: "Start a new automation session. All surfaces, collectors and resources are scoped to it and torn down at session end.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.SessionStart(ctx)
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- session_end ---

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Service) registerSessionEndTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_session_end",
		Description: "End a session: close its pages, kill its processes, detach its collectors. Safe to call twice.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*sessionRequest)
		return s.SessionEnd(ctx, r.SessionID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[sessionRequest])
}

// --- session_list ---

func (s *Service) registerSessionListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_session_list",
		Description: "List live sessions and their open surfaces.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.SessionList(ctx)
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- session_status ---

func (s *Service) registerSessionStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_session_status",
		Description: "Report one session's surfaces, diagnostic buffer fill levels and recent events.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*sessionRequest)
		return s.SessionStatus(ctx, r.SessionID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[sessionRequest])
}

// --- web_launch ---

type webLaunchRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

func (s *Service) registerWebLaunchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_web_launch",
		Description: "Open a browser page in the session. Console, page error and network collectors start capturing immediately, keyed by the landed URL.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"url":        map[string]any{"type": "string", "description": "URL to open"},
		}, []string{"session_id", "url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*webLaunchRequest)
		return s.WebLaunch(ctx, r.SessionID, r.URL)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[webLaunchRequest])
}

// --- app_launch ---

type appLaunchRequest struct {
	SessionID    string   `json:"session_id"`
	Command      []string `json:"command"`
	Dir          string   `json:"dir,omitempty"`
	Env          []string `json:"env,omitempty"`
	ReadyPattern string   `json:"ready_pattern,omitempty"`
	ReadyPort    int      `json:"ready_port,omitempty"`
}

func (s *Service) registerAppLaunchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_app_launch",
		Description: "Spawn an embedded application in its own process group and wait for readiness (output pattern or TCP port). Its stdout/stderr stream into the session's output buffer.",
		InputSchema: inputSchema(map[string]any{
			"session_id":    sessionProp(),
			"command":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Program and arguments"},
			"dir":           map[string]any{"type": "string", "description": "Working directory"},
			"env":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Extra KEY=VALUE environment entries"},
			"ready_pattern": map[string]any{"type": "string", "description": "Regexp matched against process output to detect readiness"},
			"ready_port":    map[string]any{"type": "integer", "description": "Local TCP port polled to detect readiness"},
		}, []string{"session_id", "command"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*appLaunchRequest)
		return s.AppLaunch(ctx, r.SessionID, r.Command, r.Dir, r.Env, r.ReadyPattern, r.ReadyPort)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[appLaunchRequest])
}

// --- click ---

type actionRequest struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier,omitempty"`
	Selector   string `json:"selector"`
	Text       string `json:"text,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
}

func (s *Service) registerClickTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_click",
		Description: "Click an element on a web surface. A selector matching more than one element is an error, not a guess.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"selector":   map[string]any{"type": "string", "description": "CSS selector of the element"},
			"timeout_ms": map[string]any{"type": "integer", "description": "Wait budget in milliseconds (default 10000)"},
		}, []string{"session_id", "selector"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*actionRequest)
		return s.Click(ctx, r.SessionID, r.Identifier, r.Selector, r.TimeoutMs)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[actionRequest])
}

// --- type_text ---

func (s *Service) registerTypeTextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_type_text",
		Description: "Type text into an element on a web surface.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"selector":   map[string]any{"type": "string", "description": "CSS selector of the input"},
			"text":       map[string]any{"type": "string", "description": "Text to type"},
			"timeout_ms": map[string]any{"type": "integer", "description": "Wait budget in milliseconds (default 10000)"},
		}, []string{"session_id", "selector", "text"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*actionRequest)
		return s.TypeText(ctx, r.SessionID, r.Identifier, r.Selector, r.Text, r.TimeoutMs)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[actionRequest])
}

// --- navigate ---

type navigateRequest struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier,omitempty"`
	URL        string `json:"url"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
}

func (s *Service) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_navigate",
		Description: "Navigate a web surface to a URL. The surface and its collectors are re-keyed to the landed URL; buffered entries survive. A fresh screenshot is captured for pilot_screenshot mode=auto.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"url":        map[string]any{"type": "string", "description": "URL to load"},
			"timeout_ms": map[string]any{"type": "integer", "description": "Navigation budget in milliseconds (default 10000)"},
		}, []string{"session_id", "url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*navigateRequest)
		return s.Navigate(ctx, r.SessionID, r.Identifier, r.URL, r.TimeoutMs)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[navigateRequest])
}

// --- screenshot ---

type screenshotRequest struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

func (s *Service) registerScreenshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_screenshot",
		Description: "Capture a surface as an optimized JPEG, base64-encoded. Web surfaces capture the viewport; embedded surfaces capture their native window by PID. Mode \"auto\" returns the last navigation capture without touching the surface.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"mode":       map[string]any{"type": "string", "enum": []any{"viewport", "auto"}, "description": "Capture mode (default viewport)"},
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*screenshotRequest)
		return s.Screenshot(ctx, r.SessionID, r.Identifier, r.Mode)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[screenshotRequest])
}

// --- page_markdown ---

type surfaceRequest struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier,omitempty"`
}

func (s *Service) registerPageMarkdownTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_page_markdown",
		Description: "Render a web surface's current DOM as sanitized markdown, with links resolved against the page URL.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*surfaceRequest)
		return s.PageMarkdown(ctx, r.SessionID, r.Identifier)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[surfaceRequest])
}

// --- read_console ---

type readRequest struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier,omitempty"`
	Clear      bool   `json:"clear,omitempty"`
}

func clearProp() map[string]any {
	return map[string]any{"type": "boolean", "description": "Empty the buffer after reading"}
}

func (s *Service) registerReadConsoleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_read_console",
		Description: "Read the buffered console messages of a web surface, oldest first.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"clear":      clearProp(),
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*readRequest)
		return s.ReadConsole(ctx, r.SessionID, r.Identifier, r.Clear)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[readRequest])
}

// --- read_errors ---

func (s *Service) registerReadErrorsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_read_errors",
		Description: "Read the buffered uncaught page errors of a web surface, oldest first.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"clear":      clearProp(),
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*readRequest)
		return s.ReadErrors(ctx, r.SessionID, r.Identifier, r.Clear)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[readRequest])
}

// --- read_network ---

func (s *Service) registerReadNetworkTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_read_network",
		Description: "Read the buffered network request/response records of a web surface, oldest first.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"clear":      clearProp(),
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*readRequest)
		return s.ReadNetwork(ctx, r.SessionID, r.Identifier, r.Clear)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[readRequest])
}

// --- read_output ---

func (s *Service) registerReadOutputTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_read_output",
		Description: "Read the buffered stdout/stderr lines of an embedded application, oldest first.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"clear":      clearProp(),
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*readRequest)
		return s.ReadOutput(ctx, r.SessionID, r.Identifier, r.Clear)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[readRequest])
}

// --- run_workflow ---

type runWorkflowRequest struct {
	SessionID  string          `json:"session_id"`
	Identifier string          `json:"identifier,omitempty"`
	Steps      []workflow.Step `json:"steps"`
}

func (s *Service) registerRunWorkflowTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_run_workflow",
		Description: "Execute an ordered step list (click, type, navigate, wait, screenshot, assert) against a web surface. Steps are validated up front; execution stops at the first failure. Assertion failures are recorded data, with a screenshot and the console/error deltas of the failing step.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionProp(),
			"identifier": identifierProp(),
			"steps": map[string]any{
				"type":        "array",
				"description": "Workflow steps, executed in order",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"action":     map[string]any{"type": "string", "enum": []any{"click", "type", "navigate", "wait", "screenshot", "assert"}},
						"selector":   map[string]any{"type": "string", "description": "CSS selector (click, type)"},
						"text":       map[string]any{"type": "string", "description": "Text to type (type)"},
						"url":        map[string]any{"type": "string", "description": "URL to load (navigate)"},
						"wait_ms":    map[string]any{"type": "integer", "description": "Pause duration (wait)"},
						"timeout_ms": map[string]any{"type": "integer", "description": "Per-step wait budget override"},
						"assert": map[string]any{
							"type":        "object",
							"description": "Assertion to evaluate (assert)",
							"properties": map[string]any{
								"type": map[string]any{"type": "string", "enum": []any{
									"exists", "not-exists", "visible", "hidden",
									"text-equals", "text-contains", "has-attribute", "attribute-equals",
									"enabled", "disabled", "checked", "not-checked", "value-equals",
								}},
								"selector":  map[string]any{"type": "string"},
								"attribute": map[string]any{"type": "string"},
								"expected":  map[string]any{"type": "string"},
							},
							"required": []any{"type"},
						},
					},
					"required": []any{"action"},
				},
			},
		}, []string{"session_id", "steps"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*runWorkflowRequest)
		return s.RunWorkflow(ctx, r.SessionID, r.Identifier, r.Steps)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[runWorkflowRequest])
}

// decodeJSON builds the standard one-struct argument decoder.
func decodeJSON[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}
