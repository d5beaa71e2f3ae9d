package leaderboard

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/metrics"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// Variant selects the filter set applied before ranking.
type Variant string

const (
	// VariantFull hides attempts made under the guest display name.
	VariantFull Variant = "full"
	// VariantSimple keeps guest attempts.
	VariantSimple Variant = "simple"
)

// Board sources.
const (
	SourcePrimary = "primary"
	SourceGuest   = "guest"
	SourceEmpty   = "empty"
)

const defaultGuestName = "Guest"

// Fetcher loads the raw leaderboard rows of a quiz. An empty credential means
// an unauthenticated request; a non-empty guestSessionID scopes it.
type Fetcher interface {
	Leaderboard(ctx context.Context, quizID, credential, guestSessionID, accessKey string) ([]quiz.LeaderboardRow, error)
}

// Request describes a leaderboard read. GuestSessionID is the explicitly
// supplied guest session; StoredGuestSessionID is one the caller found in
// its own storage and is only used when no explicit id is given.
type Request struct {
	QuizID               string
	Credential           string
	GuestSessionID       string
	StoredGuestSessionID string
	AccessKey            string
	Variant              Variant
}

// Board is the ranked leaderboard and where its rows came from.
type Board struct {
	Source  string     `json:"source"`
	Entries []Standing `json:"entries"`
}

// ServiceOptions configures leaderboard behavior.
type ServiceOptions struct {
	GuestName string
}

// Service reads, ranks and formats quiz leaderboards. Reads never fail: the
// leaderboard degrades to an empty board.
type Service struct {
	fetcher   Fetcher
	guestName string
	logger    zerolog.Logger
}

// NewService constructs a leaderboard service instance.
func NewService(fetcher Fetcher, logger zerolog.Logger, opts ServiceOptions) *Service {
	guestName := opts.GuestName
	if guestName == "" {
		guestName = defaultGuestName
	}
	return &Service{
		fetcher:   fetcher,
		guestName: guestName,
		logger:    logger.With().Str("component", "leaderboard").Logger(),
	}
}

// Get returns the best attempt per participant, ranked for display.
func (s *Service) Get(ctx context.Context, req Request) Board {
	rows, source := s.fetch(ctx, req)
	if source == SourceEmpty {
		return Board{Source: SourceEmpty, Entries: []Standing{}}
	}

	entries := Eligible(NormalizeAll(rows), req.Variant != VariantSimple, s.guestName)
	best := BestAttemptsPerUser(entries)
	SortStandings(best)
	return Board{Source: source, Entries: Display(best)}
}

func (s *Service) fetch(ctx context.Context, req Request) ([]quiz.LeaderboardRow, string) {
	log := s.logger.With().Str("quiz_id", req.QuizID).Logger()

	rows, err := s.fetcher.Leaderboard(ctx, req.QuizID, req.Credential, "", req.AccessKey)
	if err == nil {
		return rows, SourcePrimary
	}
	if !quiz.IsAccessDenied(err) {
		log.Warn().Err(err).Msg("leaderboard fetch failed")
		return nil, SourceEmpty
	}

	guest := req.GuestSessionID
	if guest == "" {
		guest = req.StoredGuestSessionID
	}
	if guest == "" {
		log.Debug().Err(err).Msg("leaderboard denied and no guest session available")
		return nil, SourceEmpty
	}

	rows, err = s.fetcher.Leaderboard(ctx, req.QuizID, "", guest, req.AccessKey)
	if err != nil {
		metrics.GuestFallbacks.WithLabelValues("leaderboard", "failed").Inc()
		log.Warn().Err(err).Msg("guest leaderboard fetch failed")
		return nil, SourceEmpty
	}
	metrics.GuestFallbacks.WithLabelValues("leaderboard", "ok").Inc()
	return rows, SourceGuest
}
