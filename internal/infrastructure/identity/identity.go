// Package identity carries the authenticated user through a request context.
// The HTTP layer stores the identity it trusts; application handlers read it
// back through progress.IdentityProvider.
package identity

import (
	"context"
	"strings"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
)

type contextKey struct{}

// WithIdentity returns a context carrying id. An identity without an email
// is treated as anonymous.
func WithIdentity(ctx context.Context, id progress.Identity) context.Context {
	id.Email = Normalize(id.Email)
	if id.Email == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (progress.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(progress.Identity)
	return id, ok
}

// Normalize lowercases and trims an email so that one person maps to one record.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ContextProvider implements progress.IdentityProvider over the request context.
type ContextProvider struct{}

// Compile-time check.
var _ progress.IdentityProvider = ContextProvider{}

// IsLoggedIn implements progress.IdentityProvider.
func (ContextProvider) IsLoggedIn(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// CurrentUser implements progress.IdentityProvider.
func (ContextProvider) CurrentUser(ctx context.Context) (progress.Identity, bool) {
	return FromContext(ctx)
}
