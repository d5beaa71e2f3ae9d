package leaderboard

import (
	"sort"
	"time"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// nameKey groups entries by display name. A missing name is its own group.
type nameKey struct {
	name    string
	missing bool
}

func keyOf(e quiz.LeaderboardEntry) nameKey {
	if e.UserName == nil {
		return nameKey{missing: true}
	}
	return nameKey{name: *e.UserName}
}

// BestAttemptsPerUser keeps one entry per display name: the highest score,
// then the shortest time, then the earliest completion. Entries keep the
// position where their name first appeared. A missing score counts as zero;
// a missing time or completion loses to a present one.
//
// Grouping is by display name, not user id, so two users sharing a name
// compete for one slot.
func BestAttemptsPerUser(entries []quiz.LeaderboardEntry) []quiz.LeaderboardEntry {
	best := make([]quiz.LeaderboardEntry, 0, len(entries))
	index := make(map[nameKey]int, len(entries))

	for _, e := range entries {
		k := keyOf(e)
		i, ok := index[k]
		if !ok {
			index[k] = len(best)
			best = append(best, e)
			continue
		}
		if ranksBefore(e, best[i]) {
			best[i] = e
		}
	}
	return best
}

// ranksBefore orders by score descending, time ascending and completion
// ascending. A missing score counts as zero; a missing or unreadable time and
// a missing completion rank after present ones.
func ranksBefore(a, b quiz.LeaderboardEntry) bool {
	as, bs := scoreOrZero(a.Score), scoreOrZero(b.Score)
	if as != bs {
		return as > bs
	}

	at, aok := parseTime(a.TimeSpent)
	bt, bok := parseTime(b.TimeSpent)
	if aok != bok {
		return aok
	}
	if at != bt {
		return at < bt
	}

	if (a.CompletedAt == nil) != (b.CompletedAt == nil) {
		return a.CompletedAt != nil
	}
	if a.CompletedAt != nil {
		return a.CompletedAt.Before(*b.CompletedAt)
	}
	return false
}

func parseTime(raw *string) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	return quiz.ParseTimeSpan(*raw)
}

// Eligible drops unfinished and zero-duration entries, and entries under the
// guest display name when excludeGuests is set.
func Eligible(entries []quiz.LeaderboardEntry, excludeGuests bool, guestName string) []quiz.LeaderboardEntry {
	out := make([]quiz.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if e.CompletedAt == nil {
			continue
		}
		if e.TimeSpent != nil && *e.TimeSpent == quiz.ZeroTimeSpan {
			continue
		}
		if excludeGuests && e.UserName != nil && *e.UserName == guestName {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SortStandings orders entries by score descending, time ascending and
// completion ascending. Missing values sort last. The sort is stable.
func SortStandings(entries []quiz.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return ranksBefore(entries[i], entries[j])
	})
}

func scoreOrZero(score *int) int {
	if score == nil {
		return 0
	}
	return *score
}

// Standing is a ranked leaderboard row ready for display.
type Standing struct {
	Position    int        `json:"position"`
	ID          string     `json:"id"`
	UserID      string     `json:"userId,omitempty"`
	UserName    string     `json:"userName"`
	Score       int        `json:"score"`
	TimeSpent   string     `json:"timeSpent"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Display assigns 1-based positions and fills missing values with
// placeholders.
func Display(entries []quiz.LeaderboardEntry) []Standing {
	out := make([]Standing, len(entries))
	for i, e := range entries {
		s := Standing{
			Position:    i + 1,
			ID:          e.ID,
			UserID:      e.UserID,
			UserName:    participantName(i + 1),
			Score:       scoreOrZero(e.Score),
			TimeSpent:   quiz.ZeroTimeSpan,
			CompletedAt: e.CompletedAt,
		}
		if e.UserName != nil && *e.UserName != "" {
			s.UserName = *e.UserName
		}
		if e.TimeSpent != nil && *e.TimeSpent != "" {
			s.TimeSpent = *e.TimeSpent
		}
		out[i] = s
	}
	return out
}
