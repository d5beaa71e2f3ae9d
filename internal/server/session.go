package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/auth"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/logging"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/session"
	httperrors "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/errors"
)

// Cursor actions.
const (
	cursorNext     = "next"
	cursorPrevious = "previous"
	cursorGoto     = "goto"
)

type openSessionRequest struct {
	AccessKey string `json:"accessKey"`
}

type saveAnswerRequest struct {
	SelectedOptionIDs []string `json:"selectedOptionIds"`
}

type toggleOptionRequest struct {
	OptionID string `json:"optionId"`
}

type cursorRequest struct {
	Action string `json:"action"`
	Index  int    `json:"index"`
}

// owner resolves the checkpoint owner of the request or writes a 401.
func owner(w http.ResponseWriter, r *http.Request) (session.Owner, bool) {
	id := auth.FromContext(r.Context())
	key := id.Key()
	if key == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeIdentityRequired, "A bearer token or guest session is required")
		return session.Owner{}, false
	}
	return session.Owner{Key: key, Credential: id.Credential}, true
}

func (h *Handlers) openSession(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("quizID")
	own, ok := owner(w, r)
	if !ok {
		return
	}
	var body openSessionRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if s, ok := h.deps.Sessions.Get(quizID, own.Key); ok && s.Live() {
		writeJSON(w, http.StatusOK, s.View())
		return
	}

	ctx := r.Context()
	accessKey := h.resolveAccessKey(ctx, quizID, strings.TrimSpace(body.AccessKey))

	q, err := h.deps.Backend.Quiz(ctx, quizID, own.Credential, accessKey)
	if err != nil {
		respondError(w, r, fmt.Errorf("load quiz: %w", err))
		return
	}
	questions, err := h.deps.Backend.Questions(ctx, quizID, own.Credential, accessKey)
	if err != nil {
		respondError(w, r, fmt.Errorf("load questions: %w", err))
		return
	}

	s, err := h.deps.Sessions.Open(ctx, session.OpenRequest{
		Quiz:      *q,
		Questions: questions,
		Owner:     own,
		AccessKey: accessKey,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// current returns the entered session of the request owner or writes a 404.
func (h *Handlers) current(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	own, ok := owner(w, r)
	if !ok {
		return nil, false
	}
	s, ok := h.deps.Sessions.Get(r.PathValue("quizID"), own.Key)
	if !ok {
		httperrors.RespondNotFound(w, httperrors.ErrCodeSessionNotFound, "No open session for this quiz")
		return nil, false
	}
	return s, true
}

func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.current(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handlers) abandonSession(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	s, ok := h.current(w, r)
	if !ok {
		return
	}
	if err := s.Abandon(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	h.deps.Sessions.Release(r.PathValue("quizID"), own.Key)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) saveAnswer(w http.ResponseWriter, r *http.Request) {
	var body saveAnswerRequest
	if !decodeBody(w, r, &body) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, s *session.Session) error {
		return s.SaveAnswer(ctx, r.PathValue("questionID"), body.SelectedOptionIDs)
	})
}

func (h *Handlers) toggleOption(w http.ResponseWriter, r *http.Request) {
	var body toggleOptionRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.OptionID == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "optionId is required", "optionId")
		return
	}
	h.mutate(w, r, func(ctx context.Context, s *session.Session) error {
		return s.ToggleOption(ctx, r.PathValue("questionID"), body.OptionID)
	})
}

func (h *Handlers) markVisited(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, s *session.Session) error {
		return s.MarkQuestionAsVisited(ctx, r.PathValue("questionID"))
	})
}

func (h *Handlers) moveCursor(w http.ResponseWriter, r *http.Request) {
	var body cursorRequest
	if !decodeBody(w, r, &body) {
		return
	}
	var move func(ctx context.Context, s *session.Session) error
	switch body.Action {
	case cursorNext:
		move = func(ctx context.Context, s *session.Session) error { return s.GoToNextQuestion(ctx) }
	case cursorPrevious:
		move = func(ctx context.Context, s *session.Session) error { return s.GoToPreviousQuestion(ctx) }
	case cursorGoto:
		move = func(ctx context.Context, s *session.Session) error { return s.GoToQuestion(ctx, body.Index) }
	default:
		httperrors.RespondValidationError(w, httperrors.ErrCodeUnknownAction, "action must be next, previous or goto", "action")
		return
	}
	h.mutate(w, r, move)
}

func (h *Handlers) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, s *session.Session) error) {
	s, ok := h.current(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), s); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handlers) finishSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.current(w, r)
	if !ok {
		return
	}
	if _, err := s.Finish(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// resolveAccessKey prefers an explicitly supplied key and stores it for later
// reads; otherwise it returns the stored key for the quiz, if any.
func (h *Handlers) resolveAccessKey(ctx context.Context, quizID, explicit string) string {
	log := logging.FromContext(ctx)
	if h.deps.AccessKeys == nil {
		return explicit
	}
	if explicit != "" {
		if err := h.deps.AccessKeys.SetAccessKey(ctx, quizID, explicit); err != nil {
			log.Warn().Err(err).Str("quiz_id", quizID).Msg("failed to store access key")
		}
		return explicit
	}
	key, err := h.deps.AccessKeys.GetAccessKey(ctx, quizID)
	if err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("failed to read stored access key")
		return ""
	}
	return key
}
