package channel

import (
	"errors"
	"fmt"
	"time"
)

// Fetch errors carry an explicit kind so the retry loop can branch on
// classification instead of on provider-specific error types:
//
//   - permanent: access will never succeed (private channel, forbidden);
//     never retried.
//   - rate limited: the provider asked us to back off, with a wait hint;
//     retried with escalating pacing.
//   - transient: everything else; retried with a short randomized pause.

// Permanent marks an error as a terminal access failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err is marked Permanent.
func IsPermanent(err error) bool {
	var e permanentError
	return errors.As(err, &e)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e permanentError) Unwrap() error { return e.err }

// RateLimited marks an error as a rate-limit signal carrying the
// server-specified wait duration.
func RateLimited(err error, wait time.Duration) error {
	if err == nil {
		return nil
	}
	if wait < 0 {
		wait = 0
	}
	return rateLimitError{err: err, wait: wait}
}

// RetryAfterError is implemented by errors that carry an explicit wait hint.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// AsRateLimit extracts the wait hint when err is a rate-limit signal.
func AsRateLimit(err error) (time.Duration, bool) {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter(), true
	}
	return 0, false
}

type rateLimitError struct {
	err  error
	wait time.Duration
}

func (e rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (wait %s): %v", e.wait, e.err)
}
func (e rateLimitError) Unwrap() error             { return e.err }
func (e rateLimitError) RetryAfter() time.Duration { return e.wait }
