// Package session implements pilote's coordination core: the registry that
// owns sessions, their surfaces, diagnostic collectors, and release
// capabilities, plus the active-surface resolver.
//
// All per-identifier state lives in two-level maps (session ID → identifier →
// value), so enumerating one session's surfaces or collectors is a direct
// inner-map iteration and identifiers may contain any character. One RWMutex
// on the registry serialises structural mutation; requests racing against the
// same session observe a consistent map but no ordering guarantee beyond it.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pilote/collect"
	"github.com/hazyhaar/pilote/idgen"
)

// Config configures a Registry.
type Config struct {
	// NewID generates session IDs. Default: sess_-prefixed UUIDv7.
	NewID idgen.Generator

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("sess_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Registry is the process-wide session store. It is always passed explicitly
// (constructor injection), never held as a package global, so tests can run
// independent registries side by side.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
	surfaces map[string]map[string]*SurfaceRef
	console  map[string]map[string]*collect.ConsoleCollector
	pageErrs map[string]map[string]*collect.PageErrorCollector
	network  map[string]map[string]*collect.NetworkCollector
	process  map[string]map[string]*collect.ProcessCollector
	captures map[string]*AutoCapture
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	cfg.defaults()
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		surfaces: make(map[string]map[string]*SurfaceRef),
		console:  make(map[string]map[string]*collect.ConsoleCollector),
		pageErrs: make(map[string]map[string]*collect.PageErrorCollector),
		network:  make(map[string]map[string]*collect.NetworkCollector),
		process:  make(map[string]map[string]*collect.ProcessCollector),
		captures: make(map[string]*AutoCapture),
	}
}

// Create allocates and stores a new empty session.
func (r *Registry) Create() *Session {
	s := &Session{
		ID:        r.cfg.NewID(),
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.cfg.Logger.Debug("session created", "session", s.ID)
	return s
}

// Get looks up a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns all live session IDs, in arbitrary order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// AddResource appends a release capability to a session's resource list.
// This is the one registry operation that fails loudly on an unknown session:
// registering a resource against a session that does not exist is a caller
// ordering bug, not a runtime condition to absorb.
func (r *Registry) AddResource(sessionID string, res Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.resources = append(s.resources, res)
	return nil
}

// Resources returns a copy of the session's resource list, in registration
// order.
func (r *Registry) Resources(sessionID string) []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]Resource, len(s.resources))
	copy(out, s.resources)
	return out
}

// --- surface references ---

// SetSurface stores the surface reference under (sessionID, identifier),
// replacing any previous entry for that key.
func (r *Registry) SetSurface(sessionID, identifier string, ref *SurfaceRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	setKeyed(r.surfaces, sessionID, identifier, ref)
}

// GetSurface looks up a surface reference.
func (r *Registry) GetSurface(sessionID, identifier string) (*SurfaceRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getKeyed(r.surfaces, sessionID, identifier)
}

// Surfaces returns a copy of all surface references of one session, keyed by
// identifier.
func (r *Registry) Surfaces(sessionID string) map[string]*SurfaceRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return allKeyed(r.surfaces, sessionID)
}

// RemoveSurface drops a surface reference without closing it.
func (r *Registry) RemoveSurface(sessionID, identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removeKeyed(r.surfaces, sessionID, identifier)
}

// RekeyIdentifier atomically moves all state keyed under (sessionID, old) to
// (sessionID, new): the surface reference and every collector kind. Per map
// the move is a no-op if the old key is absent — a surface may have no
// process collector, for instance. This keeps "which diagnostics belong to
// which page" consistent across navigations.
//
// When the new key is already occupied — two surfaces converging on one URL —
// the occupant is superseded, not leaked: its surface handle is closed and
// its collectors detached before the move, so teardown stays exhaustive.
func (r *Registry) RekeyIdentifier(sessionID, oldID, newID string) {
	if oldID == newID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref, ok := getKeyed(r.surfaces, sessionID, oldID); ok && ref.Kind == KindWeb {
		ref.URL = newID
	}
	rekey(r.surfaces, sessionID, oldID, newID, func(occ *SurfaceRef) {
		if occ.CloseFn == nil {
			return
		}
		if err := occ.CloseFn(); err != nil {
			r.cfg.Logger.Warn("session: close superseded surface failed",
				"session", sessionID, "identifier", newID, "error", err)
		}
	})
	rekey(r.console, sessionID, oldID, newID, (*collect.ConsoleCollector).Detach)
	rekey(r.pageErrs, sessionID, oldID, newID, (*collect.PageErrorCollector).Detach)
	rekey(r.network, sessionID, oldID, newID, (*collect.NetworkCollector).Detach)
	rekey(r.process, sessionID, oldID, newID, (*collect.ProcessCollector).Detach)
}

// --- auto-capture ---

// SetAutoCapture stores the session's navigation screenshot slot,
// overwriting any previous capture.
func (r *Registry) SetAutoCapture(sessionID string, cap *AutoCapture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures[sessionID] = cap
}

// GetAutoCapture returns the most recent navigation capture, if any.
func (r *Registry) GetAutoCapture(sessionID string) (*AutoCapture, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.captures[sessionID]
	return c, ok
}

// --- collectors ---

func (r *Registry) SetConsoleCollector(sessionID, identifier string, c *collect.ConsoleCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	setKeyed(r.console, sessionID, identifier, c)
}

func (r *Registry) ConsoleCollector(sessionID, identifier string) (*collect.ConsoleCollector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getKeyed(r.console, sessionID, identifier)
}

func (r *Registry) ConsoleCollectors(sessionID string) map[string]*collect.ConsoleCollector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return allKeyed(r.console, sessionID)
}

func (r *Registry) SetPageErrorCollector(sessionID, identifier string, c *collect.PageErrorCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	setKeyed(r.pageErrs, sessionID, identifier, c)
}

func (r *Registry) PageErrorCollector(sessionID, identifier string) (*collect.PageErrorCollector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getKeyed(r.pageErrs, sessionID, identifier)
}

func (r *Registry) PageErrorCollectors(sessionID string) map[string]*collect.PageErrorCollector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return allKeyed(r.pageErrs, sessionID)
}

func (r *Registry) SetNetworkCollector(sessionID, identifier string, c *collect.NetworkCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	setKeyed(r.network, sessionID, identifier, c)
}

func (r *Registry) NetworkCollector(sessionID, identifier string) (*collect.NetworkCollector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getKeyed(r.network, sessionID, identifier)
}

func (r *Registry) NetworkCollectors(sessionID string) map[string]*collect.NetworkCollector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return allKeyed(r.network, sessionID)
}

func (r *Registry) SetProcessCollector(sessionID, identifier string, c *collect.ProcessCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	setKeyed(r.process, sessionID, identifier, c)
}

func (r *Registry) ProcessCollector(sessionID, identifier string) (*collect.ProcessCollector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getKeyed(r.process, sessionID, identifier)
}

func (r *Registry) ProcessCollectors(sessionID string) map[string]*collect.ProcessCollector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return allKeyed(r.process, sessionID)
}

// --- teardown ---

// Destroy tears down one session: close surfaces, detach collectors, drop the
// auto-capture slot, release resources in registration order, remove the
// session. Every phase runs to completion even when individual items fail;
// failures are logged, never returned. Destroying an unknown or already
// destroyed session is a no-op, so a caller can always end a session
// regardless of the state of its resources.
func (r *Registry) Destroy(ctx context.Context, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyLocked(ctx, sessionID)
}

// DestroyAll tears down every live session. Used for process-wide shutdown.
func (r *Registry) DestroyAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.sessions {
		r.destroyLocked(ctx, id)
	}
}

func (r *Registry) destroyLocked(ctx context.Context, sessionID string) {
	log := r.cfg.Logger
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	// Phase 1: close surface handles, best-effort.
	for identifier, ref := range r.surfaces[sessionID] {
		if ref.CloseFn == nil {
			continue
		}
		if err := ref.CloseFn(); err != nil {
			log.Warn("session: close surface failed",
				"session", sessionID, "identifier", identifier, "error", err)
		}
	}
	delete(r.surfaces, sessionID)

	// Phase 2: detach all collectors. Detach never fails.
	for _, c := range r.console[sessionID] {
		c.Detach()
	}
	for _, c := range r.pageErrs[sessionID] {
		c.Detach()
	}
	for _, c := range r.network[sessionID] {
		c.Detach()
	}
	for _, c := range r.process[sessionID] {
		c.Detach()
	}
	delete(r.console, sessionID)
	delete(r.pageErrs, sessionID)
	delete(r.network, sessionID)
	delete(r.process, sessionID)

	// Phase 3: drop the auto-capture slot.
	delete(r.captures, sessionID)

	// Phase 4: release resources in registration order, best-effort.
	for _, res := range s.resources {
		if res.Release == nil {
			continue
		}
		if err := res.Release(ctx); err != nil {
			log.Warn("session: release resource failed",
				"session", sessionID, "resource", res.Name, "error", err)
		}
	}

	delete(r.sessions, sessionID)
	log.Info("session destroyed", "session", sessionID)
}

// --- keyed map helpers ---

func setKeyed[T any](m map[string]map[string]T, sid, id string, v T) {
	inner, ok := m[sid]
	if !ok {
		inner = make(map[string]T)
		m[sid] = inner
	}
	inner[id] = v
}

func getKeyed[T any](m map[string]map[string]T, sid, id string) (T, bool) {
	v, ok := m[sid][id]
	return v, ok
}

func allKeyed[T any](m map[string]map[string]T, sid string) map[string]T {
	out := make(map[string]T, len(m[sid]))
	for k, v := range m[sid] {
		out[k] = v
	}
	return out
}

func removeKeyed[T any](m map[string]map[string]T, sid, id string) {
	delete(m[sid], id)
	if len(m[sid]) == 0 {
		delete(m, sid)
	}
}

// rekey moves m[sid][oldID] to m[sid][newID], handing any previous occupant
// of the new key to evict first.
func rekey[T any](m map[string]map[string]T, sid, oldID, newID string, evict func(T)) {
	v, ok := m[sid][oldID]
	if !ok {
		return
	}
	if occ, ok := m[sid][newID]; ok {
		evict(occ)
	}
	delete(m[sid], oldID)
	m[sid][newID] = v
}
