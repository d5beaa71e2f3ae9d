package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

const (
	headerRequestID    = "X-Request-ID"
	headerGuestSession = "X-Guest-Session-Id"
	maxResponseBytes   = 4 << 20
)

// Client talks to the quiz REST backend. Identical concurrent GETs are
// collapsed into one request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	group      singleflight.Group
	logger     zerolog.Logger
}

// NewClient creates a backend client. A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With().Str("component", "backend_client").Logger(),
	}
}

type call struct {
	op         string
	method     string
	path       string
	query      url.Values
	credential string
	guest      string
	body       any
}

// StartAttempt creates an attempt for the bearer of credential.
func (c *Client) StartAttempt(ctx context.Context, credential, quizID, accessKey string) (*quiz.Attempt, error) {
	if credential == "" {
		return nil, quiz.ErrAuthRequired
	}
	body := struct {
		AccessKey string `json:"accessKey,omitempty"`
	}{AccessKey: accessKey}

	var attempt quiz.Attempt
	err := c.do(ctx, call{
		op:         "start attempt",
		method:     http.MethodPost,
		path:       "/api/quizzes/" + url.PathEscape(quizID) + "/attempts",
		credential: credential,
		body:       body,
	}, &attempt)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FinishAttempt submits the answers of an attempt.
func (c *Client) FinishAttempt(ctx context.Context, credential, attemptID string, sub quiz.Submission) (*quiz.Attempt, error) {
	if credential == "" {
		return nil, quiz.ErrAuthRequired
	}
	var attempt quiz.Attempt
	err := c.do(ctx, call{
		op:         "finish attempt",
		method:     http.MethodPost,
		path:       "/api/attempts/" + url.PathEscape(attemptID) + "/finish",
		credential: credential,
		body:       sub,
	}, &attempt)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// AttemptByID reads one attempt.
func (c *Client) AttemptByID(ctx context.Context, attemptID, credential, guestSessionID string) (*quiz.Attempt, error) {
	var attempt quiz.Attempt
	err := c.do(ctx, call{
		op:         "get attempt",
		method:     http.MethodGet,
		path:       "/api/attempts/" + url.PathEscape(attemptID),
		query:      guestQuery(guestSessionID),
		credential: credential,
		guest:      guestSessionID,
	}, &attempt)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// AttemptAnswers reads the per-option answer records of an attempt.
func (c *Client) AttemptAnswers(ctx context.Context, attemptID, credential, guestSessionID string) ([]quiz.AnswerRecord, error) {
	var records []quiz.AnswerRecord
	err := c.do(ctx, call{
		op:         "get attempt answers",
		method:     http.MethodGet,
		path:       "/api/attempts/" + url.PathEscape(attemptID) + "/answers",
		query:      guestQuery(guestSessionID),
		credential: credential,
		guest:      guestSessionID,
	}, &records)
	return records, err
}

// Leaderboard reads the raw leaderboard rows of a quiz.
func (c *Client) Leaderboard(ctx context.Context, quizID, credential, guestSessionID, accessKey string) ([]quiz.LeaderboardRow, error) {
	query := guestQuery(guestSessionID)
	if accessKey != "" {
		if query == nil {
			query = url.Values{}
		}
		query.Set("accessKey", accessKey)
	}

	var rows []quiz.LeaderboardRow
	err := c.do(ctx, call{
		op:         "get leaderboard",
		method:     http.MethodGet,
		path:       "/api/quizzes/" + url.PathEscape(quizID) + "/leaderboard",
		query:      query,
		credential: credential,
		guest:      guestSessionID,
	}, &rows)
	return rows, err
}

// UserAttempts lists the attempts of a user.
func (c *Client) UserAttempts(ctx context.Context, credential, userID string) ([]quiz.Attempt, error) {
	if credential == "" {
		return nil, quiz.ErrAuthRequired
	}
	var attempts []quiz.Attempt
	err := c.do(ctx, call{
		op:         "get user attempts",
		method:     http.MethodGet,
		path:       "/api/users/" + url.PathEscape(userID) + "/attempts",
		credential: credential,
	}, &attempts)
	return attempts, err
}

// Quiz reads a quiz header.
func (c *Client) Quiz(ctx context.Context, quizID, credential, accessKey string) (*quiz.Quiz, error) {
	var q quiz.Quiz
	err := c.do(ctx, call{
		op:         "get quiz",
		method:     http.MethodGet,
		path:       "/api/quizzes/" + url.PathEscape(quizID),
		query:      accessKeyQuery(accessKey),
		credential: credential,
	}, &q)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Questions reads the questions of a quiz in declared order.
func (c *Client) Questions(ctx context.Context, quizID, credential, accessKey string) ([]quiz.Question, error) {
	var questions []quiz.Question
	err := c.do(ctx, call{
		op:         "get questions",
		method:     http.MethodGet,
		path:       "/api/quizzes/" + url.PathEscape(quizID) + "/questions",
		query:      accessKeyQuery(accessKey),
		credential: credential,
	}, &questions)
	return questions, err
}

// QuizAttempts lists every completed attempt of a quiz.
func (c *Client) QuizAttempts(ctx context.Context, quizID, credential, accessKey string) ([]quiz.Attempt, error) {
	var attempts []quiz.Attempt
	err := c.do(ctx, call{
		op:         "get quiz attempts",
		method:     http.MethodGet,
		path:       "/api/quizzes/" + url.PathEscape(quizID) + "/attempts",
		query:      accessKeyQuery(accessKey),
		credential: credential,
	}, &attempts)
	return attempts, err
}

func guestQuery(guestSessionID string) url.Values {
	if guestSessionID == "" {
		return nil
	}
	return url.Values{"guestSessionId": {guestSessionID}}
}

func accessKeyQuery(accessKey string) url.Values {
	if accessKey == "" {
		return nil
	}
	return url.Values{"accessKey": {accessKey}}
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	if cl.method != http.MethodGet {
		data, err := c.roundTrip(ctx, cl, target)
		if err != nil {
			return err
		}
		return decode(cl.op, data, out)
	}

	// the shared call outlives any single caller; each caller still stops
	// waiting when its own context ends
	key := strings.Join([]string{cl.method, target, cl.credential, cl.guest}, "\x00")
	ch := c.group.DoChan(key, func() (any, error) {
		return c.roundTrip(context.WithoutCancel(ctx), cl, target)
	})
	select {
	case <-ctx.Done():
		return &APIError{Op: cl.op, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return decode(cl.op, res.Val.([]byte), out)
	}
}

func (c *Client) roundTrip(ctx context.Context, cl call, target string) ([]byte, error) {
	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal body: %w", cl.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", cl.op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.credential != "" {
		req.Header.Set("Authorization", "Bearer "+cl.credential)
	}
	if cl.guest != "" {
		req.Header.Set(headerGuestSession, cl.guest)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Op: cl.op, RequestID: requestID, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &APIError{Op: cl.op, RequestID: requestID, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug().
		Str("op", cl.op).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Op: cl.op, Status: resp.StatusCode, RequestID: requestID}
		var env errorEnvelope
		if json.Unmarshal(data, &env) == nil {
			apiErr.Code = env.Error
			apiErr.Message = env.Message
		}
		return nil, apiErr
	}
	return data, nil
}

func decode(op string, data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
