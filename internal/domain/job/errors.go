package job

import "errors"

var (
	// ErrNotFound indicates the job doesn't exist.
	ErrNotFound = errors.New("job not found")
	// ErrUnsupportedKind indicates the submitted kind is not in the closed set.
	ErrUnsupportedKind = errors.New("unsupported job kind")
	// ErrInvalidPayload indicates the payload violates the kind's schema.
	ErrInvalidPayload = errors.New("invalid job payload")
	// ErrInvalidResult indicates a completion result violates the kind's schema.
	ErrInvalidResult = errors.New("invalid job result")
	// ErrInvalidTransition indicates complete/fail was called on a job
	// that is not currently running.
	ErrInvalidTransition = errors.New("invalid job state transition")
)
