package leaderboard

import (
	"math"
	"strconv"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// Normalize maps either wire shape onto the canonical entry. Canonical
// fields win over their guest endpoint aliases.
func Normalize(row quiz.LeaderboardRow) quiz.LeaderboardEntry {
	e := quiz.LeaderboardEntry{
		ID:          row.ID,
		UserID:      row.UserID,
		UserName:    firstString(row.UserName, row.Username),
		TimeSpent:   firstString(row.TimeSpent, row.TimeTaken, row.Duration),
		CompletedAt: row.CompletedAt,
		Score:       row.Score,
	}
	if e.CompletedAt == nil {
		e.CompletedAt = row.FinishedAt
	}
	if e.Score == nil && row.Percentage != nil {
		score := int(math.Round(*row.Percentage))
		e.Score = &score
	}
	return e
}

// NormalizeAll normalizes a whole response.
func NormalizeAll(rows []quiz.LeaderboardRow) []quiz.LeaderboardEntry {
	out := make([]quiz.LeaderboardEntry, len(rows))
	for i, row := range rows {
		out[i] = Normalize(row)
	}
	return out
}

func firstString(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func participantName(position int) string {
	return "Participant " + strconv.Itoa(position)
}
