// Package auth authenticates calls to the orchestrator's HTTP surface.
//
// Operators use a bearer token. Worker regions, which usually call in
// through an EventBridge API destination, send a static API key header.
// Both are Authenticators and can be chained.
package auth

import (
	"context"
	"net/http"
)

// Well-known groups.
const (
	GroupOperators = "spotorch:operators"
	GroupWorkers   = "spotorch:workers"
)

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller, e.g. "operator:ci" or "worker:eventbridge".
	Subject string

	// Groups the caller belongs to.
	Groups []string

	// Method is the authenticator that produced the identity.
	Method string
}

// InGroup reports whether the identity belongs to group.
func (id *Identity) InGroup(group string) bool {
	if id == nil {
		return false
	}
	for _, g := range id.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Authenticator authenticates HTTP requests. Implementations must be safe
// for concurrent use and compare secrets in constant time.
//
// AuthenticateRequest returns:
//   - (*Identity, true, nil) when the request carries valid credentials
//   - (nil, false, nil) when it carries no credentials this authenticator understands
//   - (nil, false, error) when it carries credentials that are invalid
type Authenticator interface {
	AuthenticateRequest(r *http.Request) (*Identity, bool, error)
}

// AuthenticatorDescriptor is implemented by authenticators that can name
// their method.
type AuthenticatorDescriptor interface {
	Method() string
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (*Identity, bool, error)

// AuthenticateRequest implements Authenticator.
func (f AuthenticatorFunc) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	return f(r)
}

type contextKey int

const identityKey contextKey = iota

// IdentityFromContext returns the caller attached by Middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ContextWithIdentity attaches id to ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
