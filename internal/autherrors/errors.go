package autherrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session client. Callers branch with errors.Is.
var (
	// Authentication errors
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSecondFactorRequired = errors.New("second factor required")
	ErrSecondFactorInvalid  = errors.New("second factor code invalid")

	// Token errors
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrRefreshRejected    = errors.New("refresh token rejected by authority")
	ErrSessionTerminated  = errors.New("session terminated")
	ErrRefreshUnavailable = errors.New("authority unreachable during refresh")
	ErrRotationRequired   = errors.New("authority did not rotate refresh token")

	// General errors
	ErrNotAuthenticated = errors.New("not authenticated")
)

// ServerError reports a non-JSON or otherwise malformed authority
// response. The numeric status and its text are all that can be trusted
// from such a response.
type ServerError struct {
	StatusCode int
	Status     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Status)
}

// AuthorityError is a machine-readable rejection from the authority,
// read from the error field of a failure body.
type AuthorityError struct {
	Reason string
	Detail string
}

func (e *AuthorityError) Error() string {
	if e.Detail != "" {
		return e.Reason + ": " + e.Detail
	}
	return e.Reason
}

// ValidationError carries the authority's per-field rejection verbatim.
type ValidationError struct {
	Message     string
	FieldErrors map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// TransportError wraps a failure that never produced a well-formed
// authority response. Always retry-eligible.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
