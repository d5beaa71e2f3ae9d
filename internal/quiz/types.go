package quiz

import (
	"fmt"
	"strings"
	"time"
)

// QuestionType distinguishes single and multiple choice questions.
type QuestionType string

// Question types.
const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
)

// Quiz is the immutable quiz header an attempt runs against.
type Quiz struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	QuestionsCount   int    `json:"questionsCount"`
	TimeLimit        string `json:"timeLimit,omitempty"` // "HH:MM:SS", empty means unlimited
	IsPublic         bool   `json:"isPublic"`
	PrivateAccessKey string `json:"privateAccessKey,omitempty"`
}

// Limit returns the parsed time limit, zero when the quiz is unlimited or
// the limit cannot be read.
func (q Quiz) Limit() time.Duration {
	limit, _ := q.ParseLimit()
	return limit
}

// ParseLimit is Limit with an error for a time limit that is set but
// malformed.
func (q Quiz) ParseLimit() (time.Duration, error) {
	if strings.TrimSpace(q.TimeLimit) == "" {
		return 0, nil
	}
	seconds, ok := ParseTimeSpan(q.TimeLimit)
	if !ok {
		return 0, fmt.Errorf("%w: time limit %q", ErrValidation, q.TimeLimit)
	}
	if seconds <= 0 {
		return 0, nil
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Question is a quiz question with its options in display order.
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []Option     `json:"options"`
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Option is a selectable answer. IsCorrect is only populated on grading reads.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
}

// Attempt is one run through a quiz by a user or a guest session.
type Attempt struct {
	ID             string     `json:"id"`
	QuizID         string     `json:"quizId"`
	UserID         *string    `json:"userId,omitempty"`
	GuestSessionID *string    `json:"guestSessionId,omitempty"`
	UserName       *string    `json:"userName,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	TimeSpent      *string    `json:"timeSpent,omitempty"`
	Score          *int       `json:"score,omitempty"`
}

// Completed reports whether the attempt has been finished.
func (a Attempt) Completed() bool {
	return a.CompletedAt != nil
}

// AnswerRecord is a persisted row for one chosen option.
type AnswerRecord struct {
	ID             string `json:"id"`
	AttemptID      string `json:"attemptId"`
	QuestionID     string `json:"questionId"`
	ChosenOptionID string `json:"chosenOptionId"`
	IsCorrect      bool   `json:"isCorrect"`
}

// GroupedAnswer rolls up every record chosen for a single question.
type GroupedAnswer struct {
	QuestionID        string         `json:"questionId"`
	SelectedOptionIDs []string       `json:"selectedOptionIds"`
	IsCorrect         bool           `json:"isCorrect"`
	Answers           []AnswerRecord `json:"answers"`
}

// SubmittedAnswer is one entry of the finish-attempt payload.
type SubmittedAnswer struct {
	QuestionID        string   `json:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds"`
}

// Submission is the finish-attempt request body.
type Submission struct {
	Answers []SubmittedAnswer `json:"answers"`
}

// LeaderboardEntry is the canonical leaderboard row. Optional fields stay nil
// when the backend omits them.
type LeaderboardEntry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId,omitempty"`
	UserName    *string    `json:"userName,omitempty"`
	Score       *int       `json:"score,omitempty"`
	TimeSpent   *string    `json:"timeSpent,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// LeaderboardRow is the wire shape of a leaderboard response. Authenticated
// and guest endpoints name the same values differently.
type LeaderboardRow struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId,omitempty"`
	UserName    *string    `json:"userName,omitempty"`
	Score       *int       `json:"score,omitempty"`
	TimeSpent   *string    `json:"timeSpent,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// guest endpoint fields
	Username   *string    `json:"username,omitempty"`
	TimeTaken  *string    `json:"timeTaken,omitempty"`
	Duration   *string    `json:"duration,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Percentage *float64   `json:"percentage,omitempty"`
}
