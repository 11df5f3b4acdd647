// Package tenant defines the isolation boundary for multi-tenant operations.
// Every pipeline run and ledger operation carries an explicit org ID; nothing
// in the core reads tenant identity from ambient state.
package tenant

import (
	"context"
	"errors"
)

var (
	// ErrMissingTenant is returned when an operation is attempted without an org ID.
	ErrMissingTenant = errors.New("org ID is required")

	// ErrTenantMismatch is returned when a record's org ID does not match the
	// requesting tenant. This is an isolation fault, never silently absorbed.
	ErrTenantMismatch = errors.New("record belongs to a different org")
)

// Context identifies the tenant on whose behalf an operation executes.
// It is created per request and passed explicitly; it is never persisted.
type Context struct {
	OrgID string
}

// New creates a tenant Context for the given org ID.
func New(orgID string) (Context, error) {
	if orgID == "" {
		return Context{}, ErrMissingTenant
	}
	return Context{OrgID: orgID}, nil
}

// Validate checks that the tenant context carries an org ID.
func (t Context) Validate() error {
	if t.OrgID == "" {
		return ErrMissingTenant
	}
	return nil
}

// orgIDKey is the context key for the authenticated org ID.
type orgIDKey struct{}

// WithOrgID stores the authenticated org ID in the request context.
// This is an HTTP-boundary convenience only; handlers must extract the value
// and pass it explicitly into the core.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey{}, orgID)
}

// OrgIDFromContext returns the org ID from context. Returns empty string if not present.
func OrgIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(orgIDKey{}).(string); ok {
		return id
	}
	return ""
}
