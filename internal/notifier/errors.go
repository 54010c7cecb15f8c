package notifier

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoTransport  = errors.New("notifier has no transport")
	ErrNoRecipients = errors.New("envelope has no recipients")
)

// Permanent marks a transport error as a definitive rejection. The message
// is then recorded as FAILED instead of being retried.
//
// Example:
//
//	return notifier.Permanent(fmt.Errorf("rcpt %s: %w", addr, err))
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err is wrapped with Permanent.
func IsPermanent(err error) bool {
	var e permanentError
	return errors.As(err, &e)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e permanentError) Unwrap() error { return e.err }

// RetryAfter attaches a server-provided delay hint to a transient error.
// The service honors it, bounded by RetryMaxDelay.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }
