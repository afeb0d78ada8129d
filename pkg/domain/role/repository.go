package role

import (
	"context"
)

// Provider fetches the role hierarchy from its source of truth.
// Implementations return an error wrapping ErrFetchFailed when the source
// cannot be reached.
type Provider interface {
	FetchRoles(ctx context.Context) ([]Definition, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) ([]Definition, error)

// FetchRoles calls f(ctx).
func (f ProviderFunc) FetchRoles(ctx context.Context) ([]Definition, error) {
	return f(ctx)
}
