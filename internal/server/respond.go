package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/logging"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/session"
	httperrors "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/errors"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads an optional JSON body into v. An empty body is accepted.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid request body")
		return false
	}
	return true
}

// respondError maps domain errors onto HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quiz.ErrValidation):
		httperrors.RespondValidationError(w, httperrors.ErrCodeInvalidSelection, err.Error(), "")
	case errors.Is(err, quiz.ErrAuthRequired):
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
	case errors.Is(err, quiz.ErrUnauthorized):
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Credential rejected by the quiz service")
	case errors.Is(err, quiz.ErrForbidden):
		httperrors.RespondForbidden(w, httperrors.ErrCodeForbidden, "Access to this resource is not allowed")
	case errors.Is(err, quiz.ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "Resource not found")
	case errors.Is(err, session.ErrSubmissionInProgress):
		httperrors.RespondConflict(w, httperrors.ErrCodeSubmissionInProgress, "Submission already in progress")
	case errors.Is(err, session.ErrInvalidState):
		httperrors.RespondConflict(w, httperrors.ErrCodeInvalidSessionState, err.Error())
	case errors.Is(err, session.ErrSessionClosed):
		httperrors.RespondConflict(w, httperrors.ErrCodeSessionClosed, "Session is closed")
	case errors.Is(err, quiz.ErrNetwork):
		log := logging.FromContext(r.Context())
		log.Warn().Err(err).Msg("quiz service unavailable")
		httperrors.RespondBadGateway(w, "Quiz service unavailable")
	default:
		log := logging.FromContext(r.Context())
		log.Error().Err(err).Msg("request failed")
		httperrors.RespondInternalError(w, "Internal server error")
	}
}
