package pilot

import "errors"

// ErrWebSurfaceRequired is returned when a DOM operation targets an
// embedded surface.
var ErrWebSurfaceRequired = errors.New("pilot: operation requires a web surface")

// ErrNoAutoCapture is returned when a session has no auto-captured
// screenshot to return.
var ErrNoAutoCapture = errors.New("pilot: no auto-captured screenshot yet, navigate first")

// ErrBrowserUnavailable is returned when a web launch is requested but no
// browser manager was configured.
var ErrBrowserUnavailable = errors.New("pilot: browser is not available")
