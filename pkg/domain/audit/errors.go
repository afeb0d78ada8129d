package audit

import (
	"errors"
	"fmt"

	"github.com/openlearn/admin-api/pkg/domain/shared"
)

var (
	// ErrRecorderUnavailable is returned when an entry could not be handed off.
	ErrRecorderUnavailable = fmt.Errorf("audit recorder %w", shared.ErrUnavailable)

	ErrInvalidAction = fmt.Errorf("%w: invalid audit action", shared.ErrValidation)
	ErrInvalidResult = fmt.Errorf("%w: invalid audit result", shared.ErrValidation)
	ErrActorRequired = fmt.Errorf("%w: audit actor is required", shared.ErrValidation)
)

// IsRecorderUnavailable checks if the error means the entry was not recorded.
func IsRecorderUnavailable(err error) bool {
	return errors.Is(err, ErrRecorderUnavailable)
}
