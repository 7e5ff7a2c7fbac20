package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// Error taxonomy shared by all repositories. Handlers map these onto HTTP
// statuses; everything else is treated as transient.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")

	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", ErrNotFound)
	ErrProfileNotFound      = fmt.Errorf("profile %w", ErrNotFound)
)

// IsPermanent reports whether the error must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPermissionDenied)
}

const maxWriteRetries = 3

// retryTransient runs fn, retrying transient failures a bounded number of
// times with exponential backoff. Taxonomy errors are surfaced immediately.
func retryTransient(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxWriteRetries), ctx)
	return backoff.Retry(op, policy)
}
