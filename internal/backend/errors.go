package backend

import (
	"fmt"
	"net/http"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// APIError describes a failed backend call. It unwraps to the matching
// quiz sentinel (ErrUnauthorized, ErrForbidden, ErrNotFound, ErrValidation or
// ErrNetwork) and to the transport cause when there is one.
type APIError struct {
	Op        string
	Status    int
	Code      string
	Message   string
	RequestID string
	Err       error
}

func (e *APIError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *APIError) Unwrap() []error {
	errs := []error{sentinelFor(e.Status)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func sentinelFor(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return quiz.ErrUnauthorized
	case http.StatusForbidden:
		return quiz.ErrForbidden
	case http.StatusNotFound:
		return quiz.ErrNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return quiz.ErrValidation
	default:
		return quiz.ErrNetwork
	}
}

// errorEnvelope is the backend error body.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
