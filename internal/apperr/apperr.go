// Package apperr holds the error kinds reported back to a single client.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("invalid request")
	ErrAuthorization  = errors.New("not allowed")
	ErrPhaseMismatch  = errors.New("not available in this phase")
	ErrNotFound       = errors.New("not found")
	ErrSessionExpired = errors.New("session expired")
)

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func Authorization(format string, args ...any) error {
	return wrap(ErrAuthorization, format, args...)
}

func PhaseMismatch(format string, args ...any) error {
	return wrap(ErrPhaseMismatch, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func SessionExpired(format string, args ...any) error {
	return wrap(ErrSessionExpired, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Code maps an error to the short string sent in outbound error events.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrPhaseMismatch):
		return "phase_mismatch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	default:
		return "internal"
	}
}
