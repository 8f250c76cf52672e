package session

import "sort"

// Resolved names the surface a request should act on.
type Resolved struct {
	Ref        *SurfaceRef
	Identifier string
}

// ResolveSurface deterministically picks the surface a request targets.
//
// With an identifier, the lookup is direct; a miss reports every available
// identifier as a hint. Without one: zero surfaces fails with ErrNoSurfaces,
// exactly one is auto-selected (the common case — single-surface sessions
// never need to track identifiers), and two or more fail with the full list,
// because silently guessing would be an unrecoverable wrong choice.
func (r *Registry) ResolveSurface(sessionID, identifier string) (*Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}

	inner := r.surfaces[sessionID]

	if identifier != "" {
		if ref, ok := inner[identifier]; ok {
			return &Resolved{Ref: ref, Identifier: identifier}, nil
		}
		return nil, &UnknownIdentifierError{
			Identifier: identifier,
			Available:  sortedKeys(inner),
		}
	}

	switch len(inner) {
	case 0:
		return nil, ErrNoSurfaces
	case 1:
		for id, ref := range inner {
			return &Resolved{Ref: ref, Identifier: id}, nil
		}
		panic("unreachable")
	default:
		return nil, &AmbiguousSurfaceError{Available: sortedKeys(inner)}
	}
}

func sortedKeys(m map[string]*SurfaceRef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
