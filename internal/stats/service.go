package stats

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/answers"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/metrics"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// Report sources.
const (
	SourceRecords  = "records"
	SourceEstimate = "estimate"
	SourceEmpty    = "empty"
)

const defaultConcurrency = 8

// Fetcher loads the questions and attempts of a quiz.
type Fetcher interface {
	Questions(ctx context.Context, quizID, credential, accessKey string) ([]quiz.Question, error)
	QuizAttempts(ctx context.Context, quizID, credential, accessKey string) ([]quiz.Attempt, error)
}

// AnswerReader reads the answers of one attempt, guest fallback included.
type AnswerReader interface {
	AttemptAnswers(ctx context.Context, req answers.Request) (answers.Result, error)
}

// Request describes a statistics read.
type Request struct {
	QuizID         string
	Credential     string
	GuestSessionID string
	AccessKey      string
	Sort           SortOrder
}

// Report is the sorted statistics of a quiz.
type Report struct {
	Source    string         `json:"source"`
	Sort      SortOrder      `json:"sort"`
	Questions []QuestionStat `json:"questions"`
}

// ServiceOptions configures the statistics service.
type ServiceOptions struct {
	// Concurrency bounds parallel answer reads. Defaults to 8.
	Concurrency int
}

// Service builds question statistics from backend data. Reads never fail:
// missing data yields an estimated or empty report.
type Service struct {
	fetcher     Fetcher
	answers     AnswerReader
	concurrency int
	logger      zerolog.Logger
}

// NewService creates a statistics service.
func NewService(fetcher Fetcher, reader AnswerReader, logger zerolog.Logger, opts ServiceOptions) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Service{
		fetcher:     fetcher,
		answers:     reader,
		concurrency: opts.Concurrency,
		logger:      logger.With().Str("component", "stats").Logger(),
	}
}

// Get computes the statistics of a quiz.
func (s *Service) Get(ctx context.Context, req Request) Report {
	order := req.Sort
	if order == "" {
		order = SortDeclared
	}
	report := Report{Source: SourceEmpty, Sort: order, Questions: []QuestionStat{}}
	log := s.logger.With().Str("quiz_id", req.QuizID).Logger()

	questions, err := s.fetcher.Questions(ctx, req.QuizID, req.Credential, req.AccessKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load questions for statistics")
		return report
	}

	attempts, err := s.fetcher.QuizAttempts(ctx, req.QuizID, req.Credential, req.AccessKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load attempts for statistics")
		report.Questions = Sorted(Aggregate(questions, nil), order)
		return report
	}

	completed := make([]quiz.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Completed() {
			completed = append(completed, a)
		}
	}

	records, total := s.collect(ctx, req, completed)
	switch {
	case total > 0:
		report.Source = SourceRecords
		report.Questions = Sorted(Aggregate(questions, records), order)
	case len(completed) > 0:
		log.Warn().Int("attempts", len(completed)).Msg("no answer records available, estimating statistics from scores")
		metrics.EstimatedStatistics.Inc()
		report.Source = SourceEstimate
		report.Questions = Sorted(Estimate(questions, completed), order)
	default:
		report.Questions = Sorted(Aggregate(questions, nil), order)
	}
	return report
}

// collect reads the answer records of every attempt with bounded
// parallelism. Failed reads contribute no records.
func (s *Service) collect(ctx context.Context, req Request, attempts []quiz.Attempt) ([][]quiz.AnswerRecord, int) {
	records := make([][]quiz.AnswerRecord, len(attempts))
	var (
		mu    sync.Mutex
		total int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range attempts {
		attempt := attempts[i]
		g.Go(func() error {
			res, err := s.answers.AttemptAnswers(gctx, answers.Request{
				AttemptID:      attempt.ID,
				Attempt:        &attempt,
				Credential:     req.Credential,
				GuestSessionID: req.GuestSessionID,
			})
			if err != nil {
				s.logger.Debug().Err(err).Str("attempt_id", attempt.ID).Msg("skipping attempt answers")
				return nil
			}
			records[i] = res.Raw
			mu.Lock()
			total += len(res.Raw)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return records, total
}
