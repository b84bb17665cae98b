// Package actor identifies the authenticated user performing an inventory action.
//
// The actor is resolved once per request by the HTTP auth middleware and then
// travels in the context to every audited write (movements, restock history).
package actor

import (
	"context"

	"github.com/stockwise/stockwise-backend/pkg/permissions"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the user id from the identity provider
	ID string `json:"id"`

	Email string `json:"email"`
	Name  string `json:"name"`

	// Role is the display role (e.g. "admin", "branch_manager")
	Role string `json:"role"`

	// Permissions are the granted permission strings, wildcards allowed
	Permissions []string `json:"permissions,omitempty"`
}

// Can reports whether the actor holds the permission, honoring wildcards.
// A nil actor holds nothing.
func (a *Actor) Can(permission string) bool {
	if a == nil {
		return false
	}
	return permissions.HasPermission(a.Permissions, permission)
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}
