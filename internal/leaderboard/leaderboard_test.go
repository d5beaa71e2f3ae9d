package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func timePtr(t *testing.T, raw string) *time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, raw)
	require.NoError(t, err)
	return &ts
}

func entry(t *testing.T, id, name string, score int, spent, completed string) quiz.LeaderboardEntry {
	return quiz.LeaderboardEntry{
		ID:          id,
		UserName:    strPtr(name),
		Score:       intPtr(score),
		TimeSpent:   strPtr(spent),
		CompletedAt: timePtr(t, completed),
	}
}

func TestBestAttemptsPerUserEmpty(t *testing.T) {
	assert.Empty(t, BestAttemptsPerUser(nil))
	assert.NotNil(t, BestAttemptsPerUser([]quiz.LeaderboardEntry{}))
}

func TestBestAttemptsPerUserHigherScoreWins(t *testing.T) {
	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		entry(t, "a1", "A", 8, "00:30:00", "2024-01-01T10:00:00Z"),
		entry(t, "a2", "A", 9, "00:25:00", "2024-01-02T10:00:00Z"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, 9, *got[0].Score)
	assert.Equal(t, "a2", got[0].ID)
}

func TestBestAttemptsPerUserLowerScoreNeverReplaces(t *testing.T) {
	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		entry(t, "a1", "A", 9, "00:30:00", "2024-01-01T10:00:00Z"),
		entry(t, "a2", "A", 8, "00:01:00", "2023-01-01T10:00:00Z"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
}

func TestBestAttemptsPerUserFasterTimeBreaksTie(t *testing.T) {
	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		entry(t, "b1", "B", 7, "00:20:00", "2024-01-01T10:00:00Z"),
		entry(t, "b2", "B", 7, "00:15:00", "2024-01-01T11:00:00Z"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "00:15:00", *got[0].TimeSpent)
}

func TestBestAttemptsPerUserFractionalSeconds(t *testing.T) {
	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		entry(t, "b1", "B", 7, "00:00:10.500", "2024-01-01T10:00:00Z"),
		entry(t, "b2", "B", 7, "00:00:10.250", "2024-01-01T11:00:00Z"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "b2", got[0].ID)
}

func TestBestAttemptsPerUserEarlierCompletionBreaksTie(t *testing.T) {
	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		entry(t, "c1", "C", 5, "00:10:00", "2024-01-01T10:00:00Z"),
		entry(t, "c2", "C", 5, "00:10:00", "2024-01-01T09:00:00Z"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ID)
}

func TestBestAttemptsPerUserKeepsFirstAppearanceOrder(t *testing.T) {
	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		entry(t, "z1", "Zed", 1, "00:10:00", "2024-01-01T10:00:00Z"),
		entry(t, "a1", "Amy", 3, "00:10:00", "2024-01-01T10:00:00Z"),
		entry(t, "z2", "Zed", 4, "00:10:00", "2024-01-01T10:00:00Z"),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "z2", got[0].ID)
	assert.Equal(t, "a1", got[1].ID)
}

func TestBestAttemptsPerUserToleratesMissingValues(t *testing.T) {
	noName := quiz.LeaderboardEntry{ID: "n1", Score: intPtr(3)}
	noName2 := quiz.LeaderboardEntry{ID: "n2", Score: intPtr(6), TimeSpent: strPtr("00:01:00")}
	noScore := quiz.LeaderboardEntry{ID: "d2", UserName: strPtr("D")}
	badTime := quiz.LeaderboardEntry{ID: "e2", UserName: strPtr("E"), Score: intPtr(4), TimeSpent: strPtr("garbage")}
	noCompletion := quiz.LeaderboardEntry{ID: "f2", UserName: strPtr("F"), Score: intPtr(4), TimeSpent: strPtr("00:05:00")}

	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		noName,
		entry(t, "d1", "D", 2, "00:05:00", "2024-01-01T10:00:00Z"),
		entry(t, "e1", "E", 4, "00:05:00", "2024-01-01T10:00:00Z"),
		entry(t, "f1", "F", 4, "00:05:00", "2024-01-01T10:00:00Z"),
		noScore,
		badTime,
		noCompletion,
		noName2,
	})

	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"n2", "d1", "e1", "f1"}, ids)
}

func TestBestAttemptsPerUserReplacesMissingScore(t *testing.T) {
	noScore := quiz.LeaderboardEntry{
		ID:          "a1",
		UserName:    strPtr("A"),
		TimeSpent:   strPtr("00:30:00"),
		CompletedAt: timePtr(t, "2024-01-01T10:00:00Z"),
	}

	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		noScore,
		entry(t, "a2", "A", 9, "00:10:00", "2024-01-01T11:00:00Z"),
	})

	require.Len(t, got, 1)
	assert.Equal(t, "a2", got[0].ID)
	assert.Equal(t, 9, Display(got)[0].Score)
}

func TestBestAttemptsPerUserMissingTimeAndCompletionLose(t *testing.T) {
	noTime := quiz.LeaderboardEntry{ID: "b1", UserName: strPtr("B"), Score: intPtr(5), CompletedAt: timePtr(t, "2024-01-01T10:00:00Z")}
	noCompletion := quiz.LeaderboardEntry{ID: "c1", UserName: strPtr("C"), Score: intPtr(5), TimeSpent: strPtr("00:05:00")}

	got := BestAttemptsPerUser([]quiz.LeaderboardEntry{
		noTime,
		noCompletion,
		entry(t, "b2", "B", 5, "00:20:00", "2024-01-01T12:00:00Z"),
		entry(t, "c2", "C", 5, "00:05:00", "2024-01-01T12:00:00Z"),
	})

	require.Len(t, got, 2)
	assert.Equal(t, "b2", got[0].ID)
	assert.Equal(t, "c2", got[1].ID)
}

func TestEligibleFilters(t *testing.T) {
	entries := []quiz.LeaderboardEntry{
		entry(t, "ok", "A", 5, "00:01:00", "2024-01-01T10:00:00Z"),
		{ID: "unfinished", UserName: strPtr("B"), Score: intPtr(5), TimeSpent: strPtr("00:01:00")},
		entry(t, "zero", "C", 5, "00:00:00", "2024-01-01T10:00:00Z"),
		entry(t, "guest", "Guest", 5, "00:01:00", "2024-01-01T10:00:00Z"),
	}

	full := Eligible(entries, true, "Guest")
	require.Len(t, full, 1)
	assert.Equal(t, "ok", full[0].ID)

	simple := Eligible(entries, false, "Guest")
	require.Len(t, simple, 2)
	assert.Equal(t, "guest", simple[1].ID)
}

func TestSortStandings(t *testing.T) {
	entries := []quiz.LeaderboardEntry{
		entry(t, "slow", "A", 9, "00:20:00", "2024-01-01T10:00:00Z"),
		entry(t, "late", "B", 9, "00:10:00", "2024-01-02T10:00:00Z"),
		entry(t, "low", "C", 3, "00:01:00", "2024-01-01T10:00:00Z"),
		entry(t, "early", "D", 9, "00:10:00", "2024-01-01T10:00:00Z"),
		{ID: "blank", UserName: strPtr("E")},
	}
	SortStandings(entries)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"early", "late", "slow", "low", "blank"}, ids)
}

func TestDisplayFillsPlaceholders(t *testing.T) {
	got := Display([]quiz.LeaderboardEntry{
		entry(t, "a", "Ann", 7, "00:02:00", "2024-01-01T10:00:00Z"),
		{ID: "b"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Position)
	assert.Equal(t, "Ann", got[0].UserName)
	assert.Equal(t, Standing{Position: 2, ID: "b", UserName: "Participant 2", Score: 0, TimeSpent: "00:00:00"}, got[1])
}

func TestNormalizeGuestShape(t *testing.T) {
	pct := 66.6
	finished := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	e := Normalize(quiz.LeaderboardRow{
		ID:         "g1",
		Username:   strPtr("guest-user"),
		Duration:   strPtr("00:03:00"),
		FinishedAt: &finished,
		Percentage: &pct,
	})
	assert.Equal(t, "guest-user", *e.UserName)
	assert.Equal(t, "00:03:00", *e.TimeSpent)
	assert.Equal(t, finished, *e.CompletedAt)
	assert.Equal(t, 67, *e.Score)

	e = Normalize(quiz.LeaderboardRow{TimeSpent: strPtr("00:01:00"), TimeTaken: strPtr("00:09:00"), Score: intPtr(2), Percentage: &pct})
	assert.Equal(t, "00:01:00", *e.TimeSpent)
	assert.Equal(t, 2, *e.Score)
	assert.Nil(t, e.UserName)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Leaderboard(ctx context.Context, quizID, credential, guestSessionID, accessKey string) ([]quiz.LeaderboardRow, error) {
	args := m.Called(ctx, quizID, credential, guestSessionID, accessKey)
	rows, _ := args.Get(0).([]quiz.LeaderboardRow)
	return rows, args.Error(1)
}

func guestRows() []quiz.LeaderboardRow {
	finished := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	pct := 80.0
	return []quiz.LeaderboardRow{
		{ID: "g1", Username: strPtr("Sam"), TimeTaken: strPtr("00:04:00"), FinishedAt: &finished, Percentage: &pct},
	}
}

func TestServiceForbiddenWithGuestRetriesOnce(t *testing.T) {
	f := new(mockFetcher)
	f.On("Leaderboard", mock.Anything, "quiz-1", "token", "", "").Return(nil, quiz.ErrForbidden).Once()
	f.On("Leaderboard", mock.Anything, "quiz-1", "", "guest-1", "").Return(guestRows(), nil).Once()

	svc := NewService(f, zerolog.Nop(), ServiceOptions{})
	board := svc.Get(context.Background(), Request{QuizID: "quiz-1", Credential: "token", GuestSessionID: "guest-1"})

	assert.Equal(t, SourceGuest, board.Source)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "Sam", board.Entries[0].UserName)
	assert.Equal(t, 80, board.Entries[0].Score)
	f.AssertExpectations(t)
	f.AssertNumberOfCalls(t, "Leaderboard", 2)
}

func TestServiceExplicitGuestBeatsStored(t *testing.T) {
	f := new(mockFetcher)
	f.On("Leaderboard", mock.Anything, "quiz-1", "", "", "").Return(nil, quiz.ErrUnauthorized).Once()
	f.On("Leaderboard", mock.Anything, "quiz-1", "", "explicit", "").Return(guestRows(), nil).Once()

	svc := NewService(f, zerolog.Nop(), ServiceOptions{})
	board := svc.Get(context.Background(), Request{QuizID: "quiz-1", GuestSessionID: "explicit", StoredGuestSessionID: "stored"})
	assert.Len(t, board.Entries, 1)
	f.AssertExpectations(t)
}

func TestServiceStoredGuestUsedWhenNoExplicit(t *testing.T) {
	f := new(mockFetcher)
	f.On("Leaderboard", mock.Anything, "quiz-1", "token", "", "key").Return(nil, quiz.ErrForbidden).Once()
	f.On("Leaderboard", mock.Anything, "quiz-1", "", "stored", "key").Return(guestRows(), nil).Once()

	svc := NewService(f, zerolog.Nop(), ServiceOptions{})
	board := svc.Get(context.Background(), Request{QuizID: "quiz-1", Credential: "token", StoredGuestSessionID: "stored", AccessKey: "key"})
	assert.Len(t, board.Entries, 1)
	f.AssertExpectations(t)
}

func TestServiceForbiddenWithoutGuestIsEmpty(t *testing.T) {
	f := new(mockFetcher)
	f.On("Leaderboard", mock.Anything, "quiz-1", "token", "", "").Return(nil, quiz.ErrForbidden).Once()

	svc := NewService(f, zerolog.Nop(), ServiceOptions{})
	board := svc.Get(context.Background(), Request{QuizID: "quiz-1", Credential: "token"})

	assert.Equal(t, SourceEmpty, board.Source)
	assert.NotNil(t, board.Entries)
	assert.Empty(t, board.Entries)
	f.AssertNumberOfCalls(t, "Leaderboard", 1)
}

func TestServiceFallbackFailureIsEmpty(t *testing.T) {
	f := new(mockFetcher)
	f.On("Leaderboard", mock.Anything, "quiz-1", "token", "", "").Return(nil, quiz.ErrForbidden).Once()
	f.On("Leaderboard", mock.Anything, "quiz-1", "", "guest-1", "").Return(nil, quiz.ErrNetwork).Once()

	svc := NewService(f, zerolog.Nop(), ServiceOptions{})
	board := svc.Get(context.Background(), Request{QuizID: "quiz-1", Credential: "token", GuestSessionID: "guest-1"})
	assert.Empty(t, board.Entries)
	f.AssertNumberOfCalls(t, "Leaderboard", 2)
}

func TestServiceOtherErrorsDoNotFallBack(t *testing.T) {
	f := new(mockFetcher)
	f.On("Leaderboard", mock.Anything, "quiz-1", "token", "", "").Return(nil, errors.New("boom")).Once()

	svc := NewService(f, zerolog.Nop(), ServiceOptions{})
	board := svc.Get(context.Background(), Request{QuizID: "quiz-1", Credential: "token", GuestSessionID: "guest-1"})
	assert.Empty(t, board.Entries)
	f.AssertNumberOfCalls(t, "Leaderboard", 1)
}

func TestServiceRanksAndFilters(t *testing.T) {
	completed := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rows := []quiz.LeaderboardRow{
		{ID: "a1", UserName: strPtr("A"), Score: intPtr(5), TimeSpent: strPtr("00:05:00"), CompletedAt: &completed},
		{ID: "a2", UserName: strPtr("A"), Score: intPtr(8), TimeSpent: strPtr("00:06:00"), CompletedAt: &completed},
		{ID: "b1", UserName: strPtr("B"), Score: intPtr(9), TimeSpent: strPtr("00:07:00"), CompletedAt: &completed},
		{ID: "g1", UserName: strPtr("Guest"), Score: intPtr(10), TimeSpent: strPtr("00:01:00"), CompletedAt: &completed},
		{ID: "z1", UserName: strPtr("Z"), Score: intPtr(10), TimeSpent: strPtr("00:00:00"), CompletedAt: &completed},
	}
	f := new(mockFetcher)
	f.On("Leaderboard", mock.Anything, "quiz-1", "token", "", "").Return(rows, nil)

	svc := NewService(f, zerolog.Nop(), ServiceOptions{})

	full := svc.Get(context.Background(), Request{QuizID: "quiz-1", Credential: "token"})
	require.Len(t, full.Entries, 2)
	assert.Equal(t, "b1", full.Entries[0].ID)
	assert.Equal(t, "a2", full.Entries[1].ID)
	assert.Equal(t, 2, full.Entries[1].Position)

	simple := svc.Get(context.Background(), Request{QuizID: "quiz-1", Credential: "token", Variant: VariantSimple})
	require.Len(t, simple.Entries, 3)
	assert.Equal(t, "g1", simple.Entries[0].ID)
}
