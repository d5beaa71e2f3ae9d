package session

import (
	"fmt"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// AnswerStore holds the selected options per question for one attempt.
// It is not safe for concurrent use; Session serialises access.
type AnswerStore struct {
	questions  map[string]quiz.Question
	order      []string
	selections map[string][]string
}

// NewAnswerStore creates an empty store for the given questions.
func NewAnswerStore(questions []quiz.Question) *AnswerStore {
	s := &AnswerStore{
		questions:  make(map[string]quiz.Question, len(questions)),
		order:      make([]string, 0, len(questions)),
		selections: make(map[string][]string),
	}
	for _, q := range questions {
		if _, dup := s.questions[q.ID]; dup {
			continue
		}
		s.questions[q.ID] = q
		s.order = append(s.order, q.ID)
	}
	return s
}

// Save overwrites the selection for a question. Duplicate ids collapse to
// their first occurrence and an empty selection removes the answer.
func (s *AnswerStore) Save(questionID string, optionIDs []string) error {
	q, ok := s.questions[questionID]
	if !ok {
		return fmt.Errorf("%w: unknown question %q", quiz.ErrValidation, questionID)
	}

	selected := make([]string, 0, len(optionIDs))
	seen := make(map[string]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		if !q.HasOption(id) {
			return fmt.Errorf("%w: option %q does not belong to question %q", quiz.ErrValidation, id, questionID)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, id)
	}

	if q.Type == quiz.SingleChoice && len(selected) > 1 {
		return fmt.Errorf("%w: question %q accepts a single option", quiz.ErrValidation, questionID)
	}

	if len(selected) == 0 {
		delete(s.selections, questionID)
		return nil
	}
	s.selections[questionID] = selected
	return nil
}

// Toggle applies a click on an option. Single choice questions behave like
// radio buttons; multiple choice questions add or remove the option.
func (s *AnswerStore) Toggle(questionID, optionID string) error {
	q, ok := s.questions[questionID]
	if !ok {
		return fmt.Errorf("%w: unknown question %q", quiz.ErrValidation, questionID)
	}
	if !q.HasOption(optionID) {
		return fmt.Errorf("%w: option %q does not belong to question %q", quiz.ErrValidation, optionID, questionID)
	}

	if q.Type == quiz.SingleChoice {
		return s.Save(questionID, []string{optionID})
	}

	current := s.selections[questionID]
	next := make([]string, 0, len(current)+1)
	removed := false
	for _, id := range current {
		if id == optionID {
			removed = true
			continue
		}
		next = append(next, id)
	}
	if !removed {
		next = append(next, optionID)
	}
	return s.Save(questionID, next)
}

// Selected returns a copy of the options chosen for a question.
func (s *AnswerStore) Selected(questionID string) []string {
	return append([]string(nil), s.selections[questionID]...)
}

// AnsweredCount is the number of questions with at least one selection.
func (s *AnswerStore) AnsweredCount() int {
	return len(s.selections)
}

// Snapshot copies the selections for checkpointing.
func (s *AnswerStore) Snapshot() map[string][]string {
	out := make(map[string][]string, len(s.selections))
	for id, opts := range s.selections {
		out[id] = append([]string(nil), opts...)
	}
	return out
}

// Restore replaces the selections with a checkpointed set. Entries that no
// longer fit the question list are skipped and reported in the count.
func (s *AnswerStore) Restore(selections map[string][]string) (skipped int) {
	s.selections = make(map[string][]string, len(selections))
	for id, opts := range selections {
		if err := s.Save(id, opts); err != nil {
			skipped++
		}
	}
	return skipped
}

// Submission builds the finish payload in declared question order, omitting
// unanswered questions.
func (s *AnswerStore) Submission() quiz.Submission {
	sub := quiz.Submission{Answers: make([]quiz.SubmittedAnswer, 0, len(s.selections))}
	for _, id := range s.order {
		opts, ok := s.selections[id]
		if !ok {
			continue
		}
		sub.Answers = append(sub.Answers, quiz.SubmittedAnswer{
			QuestionID:        id,
			SelectedOptionIDs: append([]string(nil), opts...),
		})
	}
	return sub
}
