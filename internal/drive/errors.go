package drive

import (
	"context"
	"errors"
	"fmt"

	"github.com/fruitsalade/bucketdrive/internal/storage"
)

// Error kinds. Every error returned by Service wraps at most one of these,
// so callers branch with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBackingStore    = errors.New("backing store error")
	ErrAccessDenied    = errors.New("access denied")
)

// storeError classifies an object-store failure. Context cancellation is
// passed through so callers can tell a client hang-up from a store fault.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrBackingStore, err)
	}
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
