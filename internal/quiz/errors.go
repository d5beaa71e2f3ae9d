package quiz

import "errors"

var (
	// ErrValidation rejects malformed selections before they reach the backend.
	ErrValidation = errors.New("validation failed")
	// ErrAuthRequired is returned when an operation needs a credential that is absent.
	ErrAuthRequired = errors.New("authentication required")
	// ErrUnauthorized is returned when the backend rejects the credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the identity does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the attempt, quiz or question has no backing record.
	ErrNotFound = errors.New("not found")
	// ErrNetwork wraps transport level failures.
	ErrNetwork = errors.New("network error")
)

// IsAccessDenied reports whether err is an unauthorized or forbidden rejection.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
