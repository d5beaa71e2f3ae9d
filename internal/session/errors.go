package session

import "errors"

var (
	// ErrSessionClosed is returned once a session has been torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidState is returned when an operation does not apply to the current state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrSubmissionInProgress is returned while a finish call is in flight.
	ErrSubmissionInProgress = errors.New("submission in progress")
)
