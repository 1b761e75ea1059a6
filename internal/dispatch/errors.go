package dispatch

import "errors"

var (
	ErrStopped        = errors.New("dispatcher stopped")
	ErrUnknownKind    = errors.New("job kind not registered")
	ErrDuplicateKind  = errors.New("job kind already registered")
	ErrInvalidKind    = errors.New("invalid job kind")
	ErrAlreadyStarted = errors.New("dispatcher already started")
	ErrHandlerPanic   = errors.New("job handler panicked")
)

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the dispatcher fails the job without spending the
// remaining attempts. Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
