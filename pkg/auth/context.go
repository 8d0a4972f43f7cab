package auth

import (
	"context"
	"errors"
)

// contextKey is an unexported type to prevent key collisions in context.
type contextKey string

const identityKey contextKey = "identity"

// ErrIdentityNotFound is returned when no Identity exists in the request
// context. Handlers should return 401 when this error occurs.
var ErrIdentityNotFound = errors.New("identity not found in context")

// Identity is the authenticated caller's identity, as carried in the
// session. It maps directly onto the dispatch fabric's cqrs.Envelope
// fields (UserName/JTI/Authorities/CallerUID) so HTTP handlers never need
// to touch session internals — RequireAuth installs it onto both the
// plain request context and the ExecutionContext the Facade reads from.
type Identity struct {
	UserName    string
	JTI         string
	Authorities []string
	CallerUID   string
	TenantID    string
}

// IdentityFromCtx extracts the authenticated caller's identity from the
// request context. Returns the zero Identity and ErrIdentityNotFound if
// none is set (unauthenticated request).
func IdentityFromCtx(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.CallerUID == "" {
		return Identity{}, ErrIdentityNotFound
	}
	return id, nil
}

// WithIdentity returns a new context with the given Identity attached.
// Used by authentication middleware after validating the session.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
