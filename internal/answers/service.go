package answers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/metrics"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// Fetcher loads the raw answer records of an attempt. An empty credential
// means an unauthenticated request; a non-empty guestSessionID scopes it.
type Fetcher interface {
	AttemptAnswers(ctx context.Context, attemptID, credential, guestSessionID string) ([]quiz.AnswerRecord, error)
}

// Request identifies whose answers to read. Attempt is optional and only
// consulted for its guest session id.
type Request struct {
	AttemptID      string
	Attempt        *quiz.Attempt
	Credential     string
	GuestSessionID string
}

// Service reads attempt answers with the guest session fallback.
type Service struct {
	fetcher Fetcher
	logger  zerolog.Logger
}

// NewService creates an answers service.
func NewService(fetcher Fetcher, logger zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "answers").Logger(),
	}
}

// AttemptAnswers fetches and groups the answers of an attempt. When the
// authenticated read is forbidden and a guest session is known, the read is
// retried once without credential, scoped to that guest session.
func (s *Service) AttemptAnswers(ctx context.Context, req Request) (Result, error) {
	guest := guestSession(req)

	if req.Credential == "" && guest != "" {
		records, err := s.fetcher.AttemptAnswers(ctx, req.AttemptID, "", guest)
		if err != nil {
			return Result{}, fmt.Errorf("fetch guest answers: %w", err)
		}
		return Group(records), nil
	}

	records, err := s.fetcher.AttemptAnswers(ctx, req.AttemptID, req.Credential, "")
	if err == nil {
		return Group(records), nil
	}
	if !errors.Is(err, quiz.ErrForbidden) || guest == "" {
		return Result{}, err
	}

	s.logger.Debug().Str("attempt_id", req.AttemptID).Msg("answers forbidden, retrying with guest session")
	records, err = s.fetcher.AttemptAnswers(ctx, req.AttemptID, "", guest)
	if err != nil {
		metrics.GuestFallbacks.WithLabelValues("answers", "failed").Inc()
		return Result{}, fmt.Errorf("fetch guest answers: %w", err)
	}
	metrics.GuestFallbacks.WithLabelValues("answers", "ok").Inc()
	return Group(records), nil
}

func guestSession(req Request) string {
	if req.GuestSessionID != "" {
		return req.GuestSessionID
	}
	if req.Attempt != nil && req.Attempt.GuestSessionID != nil {
		return *req.Attempt.GuestSessionID
	}
	return ""
}
