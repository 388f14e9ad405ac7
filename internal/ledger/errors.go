package ledger

import (
	"errors"
	"fmt"
)

// Error classes returned by Service. Detailed errors wrap one of these, so
// callers classify with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrUnauthorized     = errors.New("unauthorized")
)

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

// IsRejection reports whether err is a business-rule outcome rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidOperation) || errors.Is(err, ErrUnauthorized)
}
