package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/checkpoint"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/metrics"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// State is a step of the attempt lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateRestoring     State = "restoring"
	StateActive        State = "active"
	StateSubmitting    State = "submitting"
	StateSubmitted     State = "submitted"
	StateExpired       State = "expired"
	StateAbandoned     State = "abandoned"
)

// Backend is the attempt lifecycle subset of the REST collaborator.
type Backend interface {
	StartAttempt(ctx context.Context, credential, quizID, accessKey string) (*quiz.Attempt, error)
	FinishAttempt(ctx context.Context, credential, attemptID string, sub quiz.Submission) (*quiz.Attempt, error)
}

// Owner identifies who takes the attempt. Key is stable across reloads
// ("user:<id>" or "guest:<id>"); Credential is the bearer token, if any.
type Owner struct {
	Key        string
	Credential string
}

// Config describes the attempt a session drives.
type Config struct {
	Quiz         quiz.Quiz
	Questions    []quiz.Question
	Owner        Owner
	AccessKey    string
	TickInterval time.Duration
}

// Options carries the collaborators of a session.
type Options struct {
	Store   checkpoint.Store
	Backend Backend
	Logger  zerolog.Logger
	Clock   func() time.Time
	OnEvent func(Event)
}

// EventType names a session notification.
type EventType string

const (
	EventTick         EventType = "tick"
	EventExpired      EventType = "expired"
	EventSubmitted    EventType = "submitted"
	EventAbandoned    EventType = "abandoned"
	EventSubmitFailed EventType = "submit_failed"
)

// Event is pushed to Options.OnEvent outside of the session lock.
type Event struct {
	Type      EventType
	Key       string
	QuizID    string
	AttemptID string
	TimeLeft  time.Duration
	Result    *quiz.Attempt
	Err       error
}

// Progress is the 1-based cursor position.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// View is a read-only projection of a session.
type View struct {
	QuizID             string              `json:"quizId"`
	AttemptID          string              `json:"attemptId,omitempty"`
	State              State               `json:"state"`
	Restored           bool                `json:"restored"`
	Progress           Progress            `json:"progress"`
	CurrentQuestionID  string              `json:"currentQuestionId,omitempty"`
	AnsweredCount      int                 `json:"answeredCount"`
	HasTimeLimit       bool                `json:"hasTimeLimit"`
	TimeLeftSeconds    int                 `json:"timeLeftSeconds"`
	Deadline           *time.Time          `json:"deadline,omitempty"`
	VisitedQuestionIDs []string            `json:"visitedQuestionIds"`
	Answers            map[string][]string `json:"answers"`
	Result             *quiz.Attempt       `json:"result,omitempty"`
}

// Session drives one attempt: answers, cursor, countdown, checkpointing and
// submission. All methods are safe for concurrent use. Network calls are
// made outside the session lock.
type Session struct {
	cfg     Config
	key     string
	store   checkpoint.Store
	backend Backend
	logger  zerolog.Logger
	now     func() time.Time
	onEvent func(Event)

	lifecycle context.Context
	teardown  context.CancelFunc

	mu            sync.Mutex
	state         State
	closed        bool
	restored      bool
	attemptID     string
	deadline      *time.Time
	answers       *AnswerStore
	visited       []string
	visitedSet    map[string]struct{}
	cursor        int
	timer         *Timer
	result        *quiz.Attempt
	autoFired     bool
	expiryPending bool
	seq           uint64

	saveMu   sync.Mutex
	savedSeq uint64
	cleared  bool
}

// New creates an uninitialized session. Call Enter to restore or start it.
func New(cfg Config, opts Options) *Session {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	key := checkpoint.Key(cfg.Quiz.ID, cfg.Owner.Key)
	lifecycle, teardown := context.WithCancel(context.Background())

	return &Session{
		cfg:     cfg,
		key:     key,
		store:   opts.Store,
		backend: opts.Backend,
		logger: opts.Logger.With().
			Str("component", "session").
			Str("quiz_id", cfg.Quiz.ID).
			Str("owner", cfg.Owner.Key).
			Logger(),
		now:        now,
		onEvent:    opts.OnEvent,
		lifecycle:  lifecycle,
		teardown:   teardown,
		state:      StateUninitialized,
		answers:    NewAnswerStore(cfg.Questions),
		visitedSet: make(map[string]struct{}),
	}
}

// Key returns the checkpoint key of the session.
func (s *Session) Key() string {
	return s.key
}

// Enter restores the checkpointed attempt for this quiz and owner, or starts
// a new attempt when none is usable. The checkpoint is always consulted
// before the backend is asked for a new attempt.
func (s *Session) Enter(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: enter from %s", ErrInvalidState, state)
	}
	s.state = StateRestoring
	s.mu.Unlock()

	ctx, stop := s.scoped(ctx)
	defer stop()

	restored, err := s.restore(ctx)
	if err != nil {
		s.revert()
		return err
	}
	if restored {
		return nil
	}
	if err := s.start(ctx); err != nil {
		s.revert()
		return err
	}
	return nil
}

// scoped derives a context that is also cancelled by Close.
func (s *Session) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.lifecycle, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) revert() {
	s.mu.Lock()
	if s.state == StateRestoring {
		s.state = StateUninitialized
	}
	s.mu.Unlock()
}

func (s *Session) restore(ctx context.Context) (bool, error) {
	cp, err := s.store.Load(ctx, s.key)
	if err != nil {
		if ctx.Err() != nil {
			return false, s.closedOr(ctx.Err())
		}
		s.logger.Warn().Err(err).Msg("checkpoint load failed, starting a new attempt")
		return false, nil
	}
	if cp == nil {
		return false, nil
	}

	switch {
	case cp.QuizID != s.cfg.Quiz.ID || cp.AttemptID == "":
		s.logger.Warn().Str("checkpoint_quiz_id", cp.QuizID).Msg("discarding checkpoint for another quiz")
		s.discardStale(ctx)
		return false, nil
	case cp.Expired(s.now()):
		s.logger.Info().
			Str("attempt_id", cp.AttemptID).
			Time("deadline", *cp.Deadline).
			Msg("discarding expired checkpoint")
		s.discardStale(ctx)
		return false, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	s.attemptID = cp.AttemptID
	if cp.Deadline != nil {
		d := *cp.Deadline
		s.deadline = &d
	}
	skipped := s.answers.Restore(cp.Answers)
	for _, id := range cp.VisitedQuestionIDs {
		s.visitLocked(id)
	}
	s.cursor = s.clamp(cp.CurrentIndex)
	s.visitCurrentLocked()
	s.restored = true
	s.activateLocked()
	s.mu.Unlock()

	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Msg("checkpoint answers no longer match questions")
	}
	metrics.SessionsRestored.Inc()
	s.logger.Info().Str("attempt_id", cp.AttemptID).Msg("attempt restored from checkpoint")
	return true, nil
}

func (s *Session) discardStale(ctx context.Context) {
	if err := s.store.Clear(ctx, s.key); err != nil {
		metrics.CheckpointWriteFailures.Inc()
		s.logger.Warn().Err(err).Msg("clear stale checkpoint failed")
	}
}

func (s *Session) start(ctx context.Context) error {
	if s.cfg.Owner.Credential == "" {
		return quiz.ErrAuthRequired
	}

	attempt, err := s.backend.StartAttempt(ctx, s.cfg.Owner.Credential, s.cfg.Quiz.ID, s.cfg.AccessKey)
	if err != nil {
		return fmt.Errorf("start attempt: %w", s.closedOr(err))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.attemptID = attempt.ID
	limit, err := s.cfg.Quiz.ParseLimit()
	if err != nil {
		s.logger.Warn().Err(err).Str("quiz_id", s.cfg.Quiz.ID).Msg("unreadable time limit, running without countdown")
	}
	if limit > 0 {
		deadline := s.now().Add(limit)
		s.deadline = &deadline
	}
	s.cursor = 0
	s.visitCurrentLocked()
	s.activateLocked()
	cp, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, cp, seq)
	metrics.SessionsStarted.Inc()
	s.logger.Info().Str("attempt_id", attempt.ID).Msg("attempt started")
	return nil
}

func (s *Session) closedOr(err error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return err
}

// activateLocked moves to active and arms the countdown when the attempt has
// a deadline.
func (s *Session) activateLocked() {
	s.state = StateActive
	if s.deadline == nil {
		return
	}
	s.timer = NewTimer(*s.deadline, s.cfg.TickInterval, s.now)
	s.timer.Start(s.lifecycle, s.tick, s.expire)
}

func (s *Session) tick(left time.Duration) {
	s.mu.Lock()
	if s.closed || s.state != StateActive {
		s.mu.Unlock()
		return
	}
	ev := s.eventLocked(EventTick)
	s.mu.Unlock()

	ev.TimeLeft = left
	s.emit(ev)
}

// expire is the countdown callback. It submits at most once per session and
// is a no-op after Close.
func (s *Session) expire() {
	s.mu.Lock()
	if s.closed || s.autoFired {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateActive:
	case StateSubmitting:
		s.expiryPending = true
		s.mu.Unlock()
		return
	default:
		s.mu.Unlock()
		return
	}
	s.autoFired = true
	s.state = StateSubmitting
	sub := s.answers.Submission()
	attemptID := s.attemptID
	s.mu.Unlock()

	s.logger.Info().Str("attempt_id", attemptID).Msg("time limit reached, submitting attempt")
	_, _ = s.submit(s.lifecycle, attemptID, sub, true)
}

// Finish submits the attempt. It is also the retry path after a failed
// automatic submission.
func (s *Session) Finish(ctx context.Context) (*quiz.Attempt, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	auto := false
	switch {
	case s.state == StateActive:
	case s.state == StateExpired && s.result == nil:
		auto = true
	case s.state == StateSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmissionInProgress
	default:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: finish from %s", ErrInvalidState, state)
	}
	if s.cfg.Owner.Credential == "" {
		s.mu.Unlock()
		return nil, quiz.ErrAuthRequired
	}
	s.state = StateSubmitting
	sub := s.answers.Submission()
	attemptID := s.attemptID
	s.mu.Unlock()

	ctx, stop := s.scoped(ctx)
	defer stop()
	return s.submit(ctx, attemptID, sub, auto)
}

func (s *Session) submit(ctx context.Context, attemptID string, sub quiz.Submission, auto bool) (*quiz.Attempt, error) {
	trigger := metrics.TriggerManual
	if auto {
		trigger = metrics.TriggerExpiry
	}

	var (
		attempt *quiz.Attempt
		err     error
	)
	if s.cfg.Owner.Credential == "" {
		err = quiz.ErrAuthRequired
	} else {
		attempt, err = s.backend.FinishAttempt(ctx, s.cfg.Owner.Credential, attemptID, sub)
	}

	s.mu.Lock()
	if err != nil {
		retryAuto := !auto && s.expiryPending && !s.autoFired && !s.closed
		s.expiryPending = false
		if auto {
			s.state = StateExpired
		} else {
			s.state = StateActive
		}
		var retrySub quiz.Submission
		if retryAuto {
			s.autoFired = true
			s.state = StateSubmitting
			retrySub = s.answers.Submission()
		}
		ev := s.eventLocked(EventSubmitFailed)
		s.mu.Unlock()

		metrics.SubmissionFailures.WithLabelValues(trigger).Inc()
		s.logger.Warn().Err(err).Str("attempt_id", attemptID).Str("trigger", trigger).Msg("finish attempt failed")
		ev.Err = err
		s.emit(ev)

		if retryAuto {
			go func() {
				_, _ = s.submit(s.lifecycle, attemptID, retrySub, true)
			}()
		}
		return nil, fmt.Errorf("finish attempt: %w", err)
	}

	s.result = attempt
	s.expiryPending = false
	evType := EventSubmitted
	if auto {
		s.state = StateExpired
		evType = EventExpired
	} else {
		s.state = StateSubmitted
	}
	timer := s.timer
	ev := s.eventLocked(evType)
	s.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	s.clearCheckpoint(ctx)
	metrics.SessionsFinished.WithLabelValues(trigger).Inc()
	s.logger.Info().Str("attempt_id", attemptID).Str("trigger", trigger).Msg("attempt submitted")
	s.emit(ev)
	return attempt, nil
}

// Abandon discards the attempt without submitting it.
func (s *Session) Abandon(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	switch {
	case s.state == StateActive:
	case s.state == StateExpired && s.result == nil:
	case s.state == StateSubmitting:
		s.mu.Unlock()
		return ErrSubmissionInProgress
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: abandon from %s", ErrInvalidState, state)
	}
	s.state = StateAbandoned
	s.answers = NewAnswerStore(s.cfg.Questions)
	s.visited = nil
	s.visitedSet = make(map[string]struct{})
	s.cursor = 0
	timer := s.timer
	ev := s.eventLocked(EventAbandoned)
	s.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	s.clearCheckpoint(ctx)
	metrics.SessionsAbandoned.Inc()
	s.logger.Info().Str("attempt_id", ev.AttemptID).Msg("attempt abandoned")
	s.emit(ev)
	return nil
}

// Close tears the session down: the countdown and any in-flight restore or
// automatic submission are cancelled and later expiry is ignored. The
// checkpoint is kept so the attempt can be restored later.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	timer := s.timer
	s.mu.Unlock()

	s.teardown()
	if timer != nil {
		timer.Cancel()
	}
}

// SaveAnswer replaces the selection for a question.
func (s *Session) SaveAnswer(ctx context.Context, questionID string, optionIDs []string) error {
	return s.mutate(ctx, func() error {
		return s.answers.Save(questionID, optionIDs)
	})
}

// ToggleOption applies a click on an option of a question.
func (s *Session) ToggleOption(ctx context.Context, questionID, optionID string) error {
	return s.mutate(ctx, func() error {
		return s.answers.Toggle(questionID, optionID)
	})
}

// MarkQuestionAsVisited records a question as seen.
func (s *Session) MarkQuestionAsVisited(ctx context.Context, questionID string) error {
	return s.mutate(ctx, func() error {
		if !s.visitLocked(questionID) {
			if _, seen := s.visitedSet[questionID]; !seen {
				return fmt.Errorf("%w: unknown question %q", quiz.ErrValidation, questionID)
			}
		}
		return nil
	})
}

// GoToNextQuestion moves the cursor forward, stopping at the last question.
func (s *Session) GoToNextQuestion(ctx context.Context) error {
	return s.mutate(ctx, func() error {
		s.moveLocked(s.cursor + 1)
		return nil
	})
}

// GoToPreviousQuestion moves the cursor back, stopping at the first question.
func (s *Session) GoToPreviousQuestion(ctx context.Context) error {
	return s.mutate(ctx, func() error {
		s.moveLocked(s.cursor - 1)
		return nil
	})
}

// GoToQuestion moves the cursor to index, clamped to the question range.
func (s *Session) GoToQuestion(ctx context.Context, index int) error {
	return s.mutate(ctx, func() error {
		s.moveLocked(index)
		return nil
	})
}

func (s *Session) mutate(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	if err := s.activeLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	cp, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, cp, seq)
	return nil
}

func (s *Session) activeLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	switch s.state {
	case StateActive:
		return nil
	case StateSubmitting:
		return ErrSubmissionInProgress
	default:
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
}

func (s *Session) moveLocked(index int) {
	s.cursor = s.clamp(index)
	s.visitCurrentLocked()
}

func (s *Session) clamp(index int) int {
	last := len(s.cfg.Questions) - 1
	if index > last {
		index = last
	}
	if index < 0 {
		index = 0
	}
	return index
}

func (s *Session) visitCurrentLocked() {
	if s.cursor < len(s.cfg.Questions) {
		s.visitLocked(s.cfg.Questions[s.cursor].ID)
	}
}

// visitLocked adds a known question to the visited list. It reports whether
// the list changed.
func (s *Session) visitLocked(questionID string) bool {
	if _, known := s.answers.questions[questionID]; !known {
		return false
	}
	if _, seen := s.visitedSet[questionID]; seen {
		return false
	}
	s.visitedSet[questionID] = struct{}{}
	s.visited = append(s.visited, questionID)
	return true
}

func (s *Session) snapshotLocked() (checkpoint.Checkpoint, uint64) {
	s.seq++
	cp := checkpoint.Checkpoint{
		AttemptID:          s.attemptID,
		QuizID:             s.cfg.Quiz.ID,
		Answers:            s.answers.Snapshot(),
		VisitedQuestionIDs: append([]string(nil), s.visited...),
		CurrentIndex:       s.cursor,
		UpdatedAt:          s.now().UTC(),
	}
	if s.deadline != nil {
		d := *s.deadline
		cp.Deadline = &d
	}
	return cp, s.seq
}

// persist writes a snapshot through to the store. Writes are best effort and
// an older snapshot never overwrites a newer one.
func (s *Session) persist(ctx context.Context, cp checkpoint.Checkpoint, seq uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.cleared || seq <= s.savedSeq {
		return
	}
	if err := s.store.Save(ctx, s.key, cp); err != nil {
		metrics.CheckpointWriteFailures.Inc()
		s.logger.Warn().Err(err).Str("attempt_id", cp.AttemptID).Msg("checkpoint write failed")
		return
	}
	s.savedSeq = seq
}

func (s *Session) clearCheckpoint(ctx context.Context) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.cleared = true
	if err := s.store.Clear(context.WithoutCancel(ctx), s.key); err != nil {
		metrics.CheckpointWriteFailures.Inc()
		s.logger.Warn().Err(err).Msg("checkpoint clear failed")
	}
}

func (s *Session) eventLocked(typ EventType) Event {
	return Event{
		Type:      typ,
		Key:       s.key,
		QuizID:    s.cfg.Quiz.ID,
		AttemptID: s.attemptID,
		TimeLeft:  s.timeLeftLocked(),
		Result:    s.result,
	}
}

func (s *Session) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AttemptID returns the backend attempt id, empty before Enter succeeds.
func (s *Session) AttemptID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptID
}

// Live reports whether the session can still be driven by its owner.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	switch s.state {
	case StateSubmitted, StateAbandoned:
		return false
	case StateExpired:
		return s.result == nil
	}
	return true
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{Current: s.cursor + 1, Total: len(s.cfg.Questions)}
}

func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.AnsweredCount()
}

func (s *Session) HasTimeLimit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline != nil
}

// TimeLeft is max(0, deadline - now), zero for unlimited attempts.
func (s *Session) TimeLeft() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeftLocked()
}

func (s *Session) timeLeftLocked() time.Duration {
	if s.deadline == nil {
		return 0
	}
	left := s.deadline.Sub(s.now())
	if left < 0 {
		return 0
	}
	return left
}

// VisitedQuestions returns question ids in the order they were first seen.
func (s *Session) VisitedQuestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

// Result returns the finished attempt once submission succeeded.
func (s *Session) Result() *quiz.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// View snapshots every projection at once.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	left := s.timeLeftLocked()
	v := View{
		QuizID:             s.cfg.Quiz.ID,
		AttemptID:          s.attemptID,
		State:              s.state,
		Restored:           s.restored,
		Progress:           Progress{Current: s.cursor + 1, Total: len(s.cfg.Questions)},
		AnsweredCount:      s.answers.AnsweredCount(),
		HasTimeLimit:       s.deadline != nil,
		TimeLeftSeconds:    int(math.Ceil(left.Seconds())),
		VisitedQuestionIDs: append([]string(nil), s.visited...),
		Answers:            s.answers.Snapshot(),
		Result:             s.result,
	}
	if s.cursor < len(s.cfg.Questions) {
		v.CurrentQuestionID = s.cfg.Questions[s.cursor].ID
	}
	if s.deadline != nil {
		d := *s.deadline
		v.Deadline = &d
	}
	return v
}
