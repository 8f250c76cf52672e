// Package kit holds the small transport-agnostic pieces shared by pilote's
// tool surfaces: the Endpoint abstraction, middleware chaining, and request
// context accessors.
package kit

import "context"

// Endpoint is a transport-agnostic request handler. The MCP layer decodes
// arguments into a typed request before invoking it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first argument is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
