package audit

import (
	"context"
)

// Recorder durably records audit entries. Append returns once the entry has
// been handed off; implementations must be safe for concurrent use.
type Recorder interface {
	Append(ctx context.Context, entry *Entry) error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, entry *Entry) error

// Append calls f.
func (f RecorderFunc) Append(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}

// Repository is a Recorder that can also read entries back.
type Repository interface {
	Recorder

	// ListByOperation returns the entries written by one bulk operation,
	// oldest first.
	ListByOperation(ctx context.Context, operationID string) ([]*Entry, error)
}
