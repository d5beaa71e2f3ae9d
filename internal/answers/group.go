package answers

import "github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"

// Result pairs the per-question view with the records it was built from.
type Result struct {
	Grouped []quiz.GroupedAnswer `json:"grouped"`
	Raw     []quiz.AnswerRecord  `json:"raw"`
}

// Group folds per-option records into one entry per question, in the order
// questions first appear. A question is correct only when every record for
// it is correct. Both slices are non-nil.
func Group(records []quiz.AnswerRecord) Result {
	res := Result{
		Grouped: make([]quiz.GroupedAnswer, 0),
		Raw:     append(make([]quiz.AnswerRecord, 0, len(records)), records...),
	}

	index := make(map[string]int)
	for _, rec := range records {
		i, ok := index[rec.QuestionID]
		if !ok {
			i = len(res.Grouped)
			index[rec.QuestionID] = i
			res.Grouped = append(res.Grouped, quiz.GroupedAnswer{
				QuestionID:        rec.QuestionID,
				SelectedOptionIDs: make([]string, 0, 1),
				IsCorrect:         true,
				Answers:           make([]quiz.AnswerRecord, 0, 1),
			})
		}
		g := &res.Grouped[i]
		g.SelectedOptionIDs = append(g.SelectedOptionIDs, rec.ChosenOptionID)
		g.Answers = append(g.Answers, rec)
		g.IsCorrect = g.IsCorrect && rec.IsCorrect
	}
	return res
}
