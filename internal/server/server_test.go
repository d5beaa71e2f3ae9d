package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/answers"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/auth"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/auth/jwt"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/checkpoint"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/leaderboard"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/session"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/stats"
	ws "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/ws"
)

type fakeBackend struct {
	mu             sync.Mutex
	quizAccessKeys []string
	leaderboardErr error
	guestRows      []quiz.LeaderboardRow
	userAttempts   []quiz.Attempt
	records        map[string][]quiz.AnswerRecord
}

func testQuestions() []quiz.Question {
	return []quiz.Question{
		{ID: "q1", Type: quiz.SingleChoice, Options: []quiz.Option{{ID: "q1-a"}, {ID: "q1-b"}}},
		{ID: "q2", Type: quiz.MultipleChoice, Options: []quiz.Option{{ID: "q2-a"}, {ID: "q2-b"}}},
	}
}

func (f *fakeBackend) StartAttempt(_ context.Context, credential, quizID, _ string) (*quiz.Attempt, error) {
	return &quiz.Attempt{ID: "a1", QuizID: quizID, StartedAt: time.Now()}, nil
}

func (f *fakeBackend) FinishAttempt(_ context.Context, _, attemptID string, sub quiz.Submission) (*quiz.Attempt, error) {
	score := len(sub.Answers)
	spent := "00:01:00"
	now := time.Now()
	return &quiz.Attempt{ID: attemptID, QuizID: "quiz-1", Score: &score, TimeSpent: &spent, CompletedAt: &now}, nil
}

func (f *fakeBackend) Quiz(_ context.Context, quizID, _, accessKey string) (*quiz.Quiz, error) {
	f.mu.Lock()
	f.quizAccessKeys = append(f.quizAccessKeys, accessKey)
	f.mu.Unlock()
	if quizID == "missing" {
		return nil, quiz.ErrNotFound
	}
	return &quiz.Quiz{ID: quizID, QuestionsCount: 2}, nil
}

func (f *fakeBackend) Questions(context.Context, string, string, string) ([]quiz.Question, error) {
	return testQuestions(), nil
}

func (f *fakeBackend) QuizAttempts(context.Context, string, string, string) ([]quiz.Attempt, error) {
	now := time.Now()
	score := 1
	return []quiz.Attempt{{ID: "a1", CompletedAt: &now, Score: &score}, {ID: "a2", CompletedAt: &now, Score: &score}}, nil
}

func (f *fakeBackend) AttemptByID(_ context.Context, attemptID, _, _ string) (*quiz.Attempt, error) {
	guest := "g-from-attempt"
	return &quiz.Attempt{ID: attemptID, GuestSessionID: &guest}, nil
}

func (f *fakeBackend) AttemptAnswers(_ context.Context, attemptID, credential, guestSessionID string) ([]quiz.AnswerRecord, error) {
	if credential != "" && attemptID == "guest-attempt" {
		return nil, quiz.ErrForbidden
	}
	if attemptID == "guest-attempt" && guestSessionID != "g-from-attempt" {
		return nil, quiz.ErrForbidden
	}
	return f.records[attemptID], nil
}

func (f *fakeBackend) Leaderboard(_ context.Context, _, credential, _, _ string) ([]quiz.LeaderboardRow, error) {
	if credential != "" && f.leaderboardErr != nil {
		return nil, f.leaderboardErr
	}
	return f.guestRows, nil
}

func (f *fakeBackend) UserAttempts(context.Context, string, string) ([]quiz.Attempt, error) {
	return f.userAttempts, nil
}

type harness struct {
	handler  http.Handler
	backend  *fakeBackend
	sessions *session.Manager
	store    *checkpoint.MemoryStore
}

func newHarness(t *testing.T, health map[string]Pinger) *harness {
	t.Helper()
	logger := zerolog.Nop()
	backend := &fakeBackend{records: map[string][]quiz.AnswerRecord{
		"a1":            {{ID: "r1", AttemptID: "a1", QuestionID: "q1", ChosenOptionID: "q1-a", IsCorrect: true}},
		"a2":            {{ID: "r2", AttemptID: "a2", QuestionID: "q1", ChosenOptionID: "q1-b"}},
		"guest-attempt": {{ID: "r3", QuestionID: "q2", ChosenOptionID: "q2-a", IsCorrect: true}},
	}}
	store := checkpoint.NewMemoryStore(time.Hour)
	sessions := session.NewManager(store, backend, session.ManagerOptions{TickInterval: 50 * time.Millisecond}, logger)
	t.Cleanup(sessions.Shutdown)

	answerSvc := answers.NewService(backend, logger)
	handler := NewRouter(Deps{
		Sessions:    sessions,
		Backend:     backend,
		AccessKeys:  store,
		Answers:     answerSvc,
		Leaderboard: leaderboard.NewService(backend, logger, leaderboard.ServiceOptions{}),
		Stats:       stats.NewService(backend, answerSvc, logger, stats.ServiceOptions{}),
		Hub:         ws.NewHub(logger),
		Resolver:    auth.NewResolver(jwt.NewParser(nil)),
		Health:      health,
	}, logger)

	return &harness{handler: handler, backend: backend, sessions: sessions, store: store}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, jwt.Claims{UserID: userID}).SignedString([]byte("unused"))
	require.NoError(t, err)
	return s
}

func (h *harness) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) session.View {
	t.Helper()
	var v session.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestOpenSessionRequiresIdentity(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "identity_required", errorCode(t, rec))
}

func TestOpenSessionAsAnonymousGuestNeedsCredential(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/quizzes/quiz-1/session", nil)
	req.Header.Set(auth.GuestSessionHeader, "g1")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication_required", errorCode(t, rec))
}

func TestSessionFlow(t *testing.T) {
	h := newHarness(t, nil)
	tok := token(t, "u1")

	rec := h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, "a1", v.AttemptID)
	assert.Equal(t, session.StateActive, v.State)
	assert.Equal(t, session.Progress{Current: 1, Total: 2}, v.Progress)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = h.do(t, http.MethodPut, "/v1/quizzes/quiz-1/session/answers/q1", tok, saveAnswerRequest{SelectedOptionIDs: []string{"q1-a", "q1-b"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_selection", errorCode(t, rec))

	rec = h.do(t, http.MethodPut, "/v1/quizzes/quiz-1/session/answers/q1", tok, saveAnswerRequest{SelectedOptionIDs: []string{"q1-b"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"q1-b"}, decodeView(t, rec).Answers["q1"])

	rec = h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session/answers/q2/toggle", tok, toggleOptionRequest{OptionID: "q2-b"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeView(t, rec).AnsweredCount)

	rec = h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session/cursor", tok, cursorRequest{Action: "next"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "q2", decodeView(t, rec).CurrentQuestionID)

	rec = h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session/cursor", tok, cursorRequest{Action: "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session/visits/q1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"q1", "q2"}, decodeView(t, rec).VisitedQuestionIDs)

	rec = h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session/finish", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.Equal(t, session.StateSubmitted, v.State)
	require.NotNil(t, v.Result)
	assert.Equal(t, 2, *v.Result.Score)

	rec = h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session/finish", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", errorCode(t, rec))

	_, live := h.sessions.Get("quiz-1", "user:u1")
	assert.False(t, live, "submitted sessions are released")

	cp, err := h.store.Load(context.Background(), checkpoint.Key("quiz-1", "user:u1"))
	require.NoError(t, err)
	assert.Nil(t, cp, "submission clears the checkpoint")
}

func TestGetAndAbandonSession(t *testing.T) {
	h := newHarness(t, nil)
	tok := token(t, "u1")

	rec := h.do(t, http.MethodGet, "/v1/quizzes/quiz-1/session", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", errorCode(t, rec))

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session", tok, nil).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/quizzes/quiz-1/session", tok, nil).Code)

	rec = h.do(t, http.MethodDelete, "/v1/quizzes/quiz-1/session", tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/quizzes/quiz-1/session", tok, nil).Code)
}

func TestOpenSessionPropagatesMissingQuiz(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/v1/quizzes/missing/session", token(t, "u1"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoredAccessKeyIsReused(t *testing.T) {
	h := newHarness(t, nil)
	tok := token(t, "u1")

	rec := h.do(t, http.MethodPut, "/v1/quizzes/quiz-1/access-key", tok, accessKeyRequest{AccessKey: "secret"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session", tok, nil).Code)
	assert.Equal(t, []string{"secret"}, h.backend.quizAccessKeys)

	rec = h.do(t, http.MethodPut, "/v1/quizzes/quiz-1/access-key", tok, accessKeyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttemptAnswersUsesGuestFromAttemptRecord(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/v1/attempts/guest-attempt/answers", token(t, "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res answers.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Grouped, 1)
	assert.Equal(t, "q2", res.Grouped[0].QuestionID)

	rec = h.do(t, http.MethodGet, "/v1/attempts/guest-attempt/answers?guestSessionId=someone-else", token(t, "u1"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLeaderboardFallsBackToExplicitGuest(t *testing.T) {
	h := newHarness(t, nil)
	name := "Sam"
	spent := "00:02:00"
	done := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pct := 75.0
	h.backend.leaderboardErr = quiz.ErrForbidden
	h.backend.guestRows = []quiz.LeaderboardRow{{ID: "e1", Username: &name, TimeTaken: &spent, FinishedAt: &done, Percentage: &pct}}

	rec := h.do(t, http.MethodGet, "/v1/quizzes/quiz-1/leaderboard?guestSessionId=g1", token(t, "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var board leaderboard.Board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	assert.Equal(t, leaderboard.SourceGuest, board.Source)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "Sam", board.Entries[0].UserName)

	rec = h.do(t, http.MethodGet, "/v1/quizzes/quiz-1/leaderboard", token(t, "u1"), nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	assert.Equal(t, leaderboard.SourceEmpty, board.Source)
	assert.Empty(t, board.Entries)
}

func TestStatistics(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/v1/quizzes/quiz-1/statistics?sort=hardest", token(t, "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report stats.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, stats.SourceRecords, report.Source)
	assert.Equal(t, stats.SortHardest, report.Sort)
	require.Len(t, report.Questions, 2)
	assert.Equal(t, "q2", report.Questions[0].QuestionID)
	assert.InDelta(t, 50.0, report.Questions[1].CorrectRate, 0.001)
}

func TestUserAttemptsRequiresAuth(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/v1/users/u1/attempts", "", nil).Code)

	rec := h.do(t, http.MethodGet, "/v1/users/u1/attempts", token(t, "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	h := newHarness(t, map[string]Pinger{
		"redis": PingFunc(func(context.Context) error { return nil }),
	})
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"redis":"up"}}`, rec.Body.String())

	h = newHarness(t, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return errors.New("down") }),
	})
	rec = h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionStream(t *testing.T) {
	h := newHarness(t, nil)
	tok := token(t, "u1")
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/quizzes/quiz-1/session", tok, nil).Code)

	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quizzes/quiz-1/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypeSessionState, msg.Type)

	var v session.View
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	assert.Equal(t, "a1", v.AttemptID)

	require.NoError(t, conn.WriteJSON(ws.Message{Type: ws.TypePing, RequestID: "r1"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypePong, msg.Type)
	assert.Equal(t, "r1", msg.RequestID)

	require.NoError(t, conn.WriteJSON(ws.Message{Type: "shout"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypeError, msg.Type)
}

func TestSessionStreamWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/ws/quizzes/quiz-1/session", token(t, "u1"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
