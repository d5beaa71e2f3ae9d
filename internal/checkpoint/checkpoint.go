package checkpoint

import (
	"context"
	"fmt"
	"time"
)

// Checkpoint is the persisted snapshot of an in-progress attempt.
type Checkpoint struct {
	AttemptID          string              `json:"attemptId"`
	QuizID             string              `json:"quizId"`
	Deadline           *time.Time          `json:"deadline,omitempty"`
	Answers            map[string][]string `json:"answers"`
	VisitedQuestionIDs []string            `json:"visitedQuestionIds"`
	CurrentIndex       int                 `json:"currentIndex"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// Expired reports whether the checkpoint deadline has passed at now.
func (c Checkpoint) Expired(now time.Time) bool {
	return c.Deadline != nil && !c.Deadline.After(now)
}

// Store persists checkpoints under opaque keys. Load returns (nil, nil) when
// no checkpoint exists.
type Store interface {
	Load(ctx context.Context, key string) (*Checkpoint, error)
	Save(ctx context.Context, key string, cp Checkpoint) error
	Clear(ctx context.Context, key string) error
}

// AccessKeyStore keeps the private access key entered for a quiz.
// GetAccessKey returns "" when none is stored.
type AccessKeyStore interface {
	GetAccessKey(ctx context.Context, quizID string) (string, error)
	SetAccessKey(ctx context.Context, quizID, accessKey string) error
}

// Key builds the checkpoint key for a quiz and an identity key.
func Key(quizID, identityKey string) string {
	return fmt.Sprintf("attempt:checkpoint:%s:%s", quizID, identityKey)
}

func accessKeyKey(quizID string) string {
	return fmt.Sprintf("quiz:access_key:%s", quizID)
}

func cloneCheckpoint(cp Checkpoint) Checkpoint {
	out := cp
	if cp.Deadline != nil {
		d := *cp.Deadline
		out.Deadline = &d
	}
	out.Answers = make(map[string][]string, len(cp.Answers))
	for k, v := range cp.Answers {
		out.Answers[k] = append([]string(nil), v...)
	}
	out.VisitedQuestionIDs = append([]string(nil), cp.VisitedQuestionIDs...)
	return out
}
