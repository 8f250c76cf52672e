package session

import (
	"context"
	"time"
)

// Kind tags the flavour of an automation surface.
type Kind string

const (
	// KindWeb is a browser page; its identifier is its URL.
	KindWeb Kind = "web"
	// KindEmbedded is a native/embedded application window; a session has at
	// most one, keyed by EmbeddedIdentifier.
	KindEmbedded Kind = "embedded"
)

// EmbeddedIdentifier is the fixed identifier of a session's embedded surface.
const EmbeddedIdentifier = "embedded"

// Session owns automation resources for one caller. IDs are sess_-prefixed
// UUIDv7 and never reused.
type Session struct {
	ID        string
	CreatedAt time.Time

	// Resources in registration order. Guarded by the registry lock.
	resources []Resource
}

// Resource is a single release capability registered against a session:
// close a browser context, kill a process tree. Release is attempted for
// every resource during session destruction regardless of earlier failures.
type Resource struct {
	Name    string
	Release func(ctx context.Context) error
}

// SurfaceRef represents one open automation surface.
type SurfaceRef struct {
	Kind Kind

	// Handle is the underlying automation handle (e.g. *browser.Page for web
	// surfaces). The registry treats it as opaque.
	Handle any

	// URL is the last-known URL of a web surface. Tracks the identifier
	// through re-keying.
	URL string

	// PID is the process id backing an embedded surface.
	PID int

	// CloseFn closes the surface's owning page/context handles. Called
	// best-effort during session destruction.
	CloseFn func() error
}

// AutoCapture is the most recent screenshot captured on a navigation event.
// At most one per session; overwritten on every subsequent navigation.
type AutoCapture struct {
	Screenshot []byte
	URL        string
	CapturedAt time.Time
}
