package bastionlib

import "errors"

var (
	// ErrRateLimited is a soft, retryable rejection: the caller should
	// back off exactly for the verdict's RetryAfter.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCircuitOpen means the identity is actively banned; retries
	// fail until the ban expires.
	ErrCircuitOpen = errors.New("circuit is open for this identity")

	// ErrBurstDetected is a short-window abuse signal, retryable.
	ErrBurstDetected = errors.New("burst of identical events detected")

	// Construction errors of GuardOpts.valid().
	ErrEventStreamIsNotDefined = errors.New("event stream is not defined")
	ErrLoggerIsNotDefined      = errors.New("logger is not defined")
	ErrSaltsAreNotDefined      = errors.New("hasher salts are not defined")
)
