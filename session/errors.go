package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when an operation names an unknown session.
var ErrSessionNotFound = errors.New("session: not found")

// ErrNoSurfaces is returned by resolution when the session has nothing open.
// The caller should launch something first.
var ErrNoSurfaces = errors.New("session: no surfaces open, launch an application first")

// UnknownIdentifierError reports a surface lookup miss together with the
// identifiers that would have worked, so the caller can disambiguate without
// re-querying.
type UnknownIdentifierError struct {
	Identifier string
	Available  []string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("session: no surface %q (available: %s)",
		e.Identifier, strings.Join(e.Available, ", "))
}

// AmbiguousSurfaceError reports that no identifier was given while several
// surfaces are open. Guessing among them would be silently wrong, so the
// choice is pushed back to the caller.
type AmbiguousSurfaceError struct {
	Available []string
}

func (e *AmbiguousSurfaceError) Error() string {
	return fmt.Sprintf("session: %d surfaces open, pass an identifier (available: %s)",
		len(e.Available), strings.Join(e.Available, ", "))
}
