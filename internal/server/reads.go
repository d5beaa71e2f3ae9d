package server

import (
	"net/http"
	"strings"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/answers"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/auth"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/leaderboard"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/logging"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/stats"
	httperrors "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/errors"
)

type accessKeyRequest struct {
	AccessKey string `json:"accessKey"`
}

// explicitGuest is the guest session passed on the query string.
func explicitGuest(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("guestSessionId"))
}

func (h *Handlers) attemptAnswers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.FromContext(ctx)
	attemptID := r.PathValue("attemptID")

	req := answers.Request{
		AttemptID:      attemptID,
		Credential:     id.Credential,
		GuestSessionID: explicitGuest(r),
	}
	if req.GuestSessionID == "" {
		req.GuestSessionID = id.GuestSessionID
	}
	if req.GuestSessionID == "" && req.Credential != "" {
		// the attempt record may name the guest session that took it
		attempt, err := h.deps.Backend.AttemptByID(ctx, attemptID, req.Credential, "")
		if err != nil {
			log := logging.FromContext(ctx)
			log.Debug().Err(err).Str("attempt_id", attemptID).Msg("attempt lookup for guest fallback failed")
		} else {
			req.Attempt = attempt
		}
	}

	res, err := h.deps.Answers.AttemptAnswers(ctx, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.FromContext(ctx)
	quizID := r.PathValue("quizID")

	variant := leaderboard.VariantFull
	if r.URL.Query().Get("variant") == string(leaderboard.VariantSimple) {
		variant = leaderboard.VariantSimple
	}

	board := h.deps.Leaderboard.Get(ctx, leaderboard.Request{
		QuizID:               quizID,
		Credential:           id.Credential,
		GuestSessionID:       explicitGuest(r),
		StoredGuestSessionID: id.GuestSessionID,
		AccessKey:            h.resolveAccessKey(ctx, quizID, strings.TrimSpace(r.URL.Query().Get("accessKey"))),
		Variant:              variant,
	})
	writeJSON(w, http.StatusOK, board)
}

func (h *Handlers) statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.FromContext(ctx)
	quizID := r.PathValue("quizID")

	guest := explicitGuest(r)
	if guest == "" {
		guest = id.GuestSessionID
	}

	report := h.deps.Stats.Get(ctx, stats.Request{
		QuizID:         quizID,
		Credential:     id.Credential,
		GuestSessionID: guest,
		AccessKey:      h.resolveAccessKey(ctx, quizID, strings.TrimSpace(r.URL.Query().Get("accessKey"))),
		Sort:           stats.ParseSortOrder(r.URL.Query().Get("sort")),
	})
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) userAttempts(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	attempts, err := h.deps.Backend.UserAttempts(r.Context(), id.Credential, r.PathValue("userID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if attempts == nil {
		attempts = []quiz.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handlers) setAccessKey(w http.ResponseWriter, r *http.Request) {
	var body accessKeyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	key := strings.TrimSpace(body.AccessKey)
	if key == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "accessKey is required", "accessKey")
		return
	}
	if h.deps.AccessKeys == nil {
		httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeServiceUnavailable, "Access key storage is not configured")
		return
	}
	if err := h.deps.AccessKeys.SetAccessKey(r.Context(), r.PathValue("quizID"), key); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
