package jobs

import (
	"errors"
	"fmt"

	"callqa/internal/services"
)

var (
	// ErrNotFound is returned for unknown job identifiers.
	ErrNotFound = fmt.Errorf("job %w", services.ErrNotFound)
	// ErrInvalidTransition is returned when a status change would violate
	// stage ordering or modify a finished job or step.
	ErrInvalidTransition = errors.New("invalid job transition")
	// ErrJobActive is returned when deleting a job that is still pending or running.
	ErrJobActive = errors.New("job is still active")
)

func invalidTransition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}
