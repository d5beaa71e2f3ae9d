package stats

import (
	"math"
	"sort"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

const maxWrongChoices = 3

// QuestionStat summarises how a question was answered across attempts.
type QuestionStat struct {
	QuestionID             string        `json:"questionId"`
	Text                   string        `json:"text"`
	Order                  int           `json:"order"`
	TotalAttempts          int           `json:"totalAttempts"`
	CorrectAnswers         int           `json:"correctAnswers"`
	IncorrectAnswers       int           `json:"incorrectAnswers"`
	CorrectRate            float64       `json:"correctRate"`
	MostCommonWrongChoices []WrongChoice `json:"mostCommonWrongChoices"`
	Estimated              bool          `json:"estimated"`
}

// WrongChoice is an incorrect option and how often it was picked.
type WrongChoice struct {
	OptionID string `json:"optionId"`
	Text     string `json:"text,omitempty"`
	Count    int    `json:"count"`
}

type tally struct {
	attempts  map[int]struct{}
	correct   int
	incorrect int
	wrong     map[string]int
}

// Aggregate counts answer records per question. Each element of
// recordsByAttempt holds the records of one attempt. Correct and incorrect
// counts are per record, so a multiple choice question can add several
// incorrect counts for a single attempt. Records for unknown questions are
// ignored.
func Aggregate(questions []quiz.Question, recordsByAttempt [][]quiz.AnswerRecord) []QuestionStat {
	tallies := make(map[string]*tally, len(questions))
	for _, q := range questions {
		tallies[q.ID] = &tally{attempts: map[int]struct{}{}, wrong: map[string]int{}}
	}

	for i, records := range recordsByAttempt {
		for _, rec := range records {
			t, ok := tallies[rec.QuestionID]
			if !ok {
				continue
			}
			t.attempts[i] = struct{}{}
			if rec.IsCorrect {
				t.correct++
				continue
			}
			t.incorrect++
			t.wrong[rec.ChosenOptionID]++
		}
	}

	out := make([]QuestionStat, 0, len(questions))
	for i, q := range questions {
		t := tallies[q.ID]
		out = append(out, QuestionStat{
			QuestionID:             q.ID,
			Text:                   q.Text,
			Order:                  i,
			TotalAttempts:          len(t.attempts),
			CorrectAnswers:         t.correct,
			IncorrectAnswers:       t.incorrect,
			CorrectRate:            rate(t.correct, len(t.attempts)),
			MostCommonWrongChoices: topWrong(q, t.wrong),
		})
	}
	return out
}

// rate is correct/total as a percentage, capped at 100 since a multiple
// choice question can contribute several correct records per attempt.
func rate(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Min(100, float64(correct)/float64(total)*100)
}

func topWrong(q quiz.Question, counts map[string]int) []WrongChoice {
	choices := make([]WrongChoice, 0, len(counts))
	for id, n := range counts {
		wc := WrongChoice{OptionID: id, Count: n}
		for _, opt := range q.Options {
			if opt.ID == id {
				wc.Text = opt.Text
				break
			}
		}
		choices = append(choices, wc)
	}
	sort.Slice(choices, func(i, j int) bool {
		if choices[i].Count != choices[j].Count {
			return choices[i].Count > choices[j].Count
		}
		return choices[i].OptionID < choices[j].OptionID
	})
	if len(choices) > maxWrongChoices {
		choices = choices[:maxWrongChoices]
	}
	return choices
}

// Estimate spreads the average attempt score evenly over the questions. It
// is used when no answer records could be read at all. Attempts without a
// score are skipped; with none left every question gets zero counts.
func Estimate(questions []quiz.Question, attempts []quiz.Attempt) []QuestionStat {
	var (
		scored int
		sum    int
	)
	for _, a := range attempts {
		if a.Score == nil {
			continue
		}
		scored++
		sum += *a.Score
	}

	var pct float64
	if scored > 0 && len(questions) > 0 {
		avg := float64(sum) / float64(scored)
		pct = math.Max(0, math.Min(100, avg/float64(len(questions))*100))
	}
	correct := int(math.Round(pct / 100 * float64(scored)))

	out := make([]QuestionStat, 0, len(questions))
	for i, q := range questions {
		out = append(out, QuestionStat{
			QuestionID:             q.ID,
			Text:                   q.Text,
			Order:                  i,
			TotalAttempts:          scored,
			CorrectAnswers:         correct,
			IncorrectAnswers:       scored - correct,
			CorrectRate:            pct,
			MostCommonWrongChoices: []WrongChoice{},
			Estimated:              scored > 0,
		})
	}
	return out
}

// SortOrder names a display order for question statistics.
type SortOrder string

const (
	SortHardest  SortOrder = "hardest"
	SortCorrect  SortOrder = "correct"
	SortDeclared SortOrder = "order"
)

// ParseSortOrder maps a query value to a sort order, defaulting to declared
// order for anything unknown.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(s) {
	case SortHardest, SortCorrect:
		return SortOrder(s)
	default:
		return SortDeclared
	}
}

// Sorted returns a stably sorted copy of stats.
func Sorted(stats []QuestionStat, order SortOrder) []QuestionStat {
	out := make([]QuestionStat, len(stats))
	copy(out, stats)

	var less func(a, b QuestionStat) bool
	switch order {
	case SortHardest:
		less = func(a, b QuestionStat) bool { return a.CorrectRate < b.CorrectRate }
	case SortCorrect:
		less = func(a, b QuestionStat) bool { return a.CorrectAnswers > b.CorrectAnswers }
	default:
		less = func(a, b QuestionStat) bool { return a.Order < b.Order }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
