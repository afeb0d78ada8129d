package user

import (
	"context"
)

// Repository is the user store the console mutates.
// Every mutation is idempotent: applying it to a user already in the
// requested state succeeds without change.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	Activate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	SetRole(ctx context.Context, id, role string) error
	Delete(ctx context.Context, id string) error
}
