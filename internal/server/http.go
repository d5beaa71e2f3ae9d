package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/answers"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/auth"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/checkpoint"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/config"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/leaderboard"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/logging"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/session"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/stats"
	ws "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/ws"
)

const headerRequestID = "X-Request-ID"

// Backend is the part of the REST collaborator the adapter calls directly.
type Backend interface {
	session.Backend
	Quiz(ctx context.Context, quizID, credential, accessKey string) (*quiz.Quiz, error)
	Questions(ctx context.Context, quizID, credential, accessKey string) ([]quiz.Question, error)
	AttemptByID(ctx context.Context, attemptID, credential, guestSessionID string) (*quiz.Attempt, error)
	UserAttempts(ctx context.Context, credential, userID string) ([]quiz.Attempt, error)
}

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps are the collaborators behind the HTTP routes.
type Deps struct {
	Sessions    *session.Manager
	Backend     Backend
	AccessKeys  checkpoint.AccessKeyStore
	Answers     *answers.Service
	Leaderboard *leaderboard.Service
	Stats       *stats.Service
	Hub         *ws.Hub
	Resolver    *auth.Resolver
	Health      map[string]Pinger
}

// Handlers serves the attempt engine over HTTP.
type Handlers struct {
	deps   Deps
	logger zerolog.Logger
}

// NewRouter wires every route of the adapter.
func NewRouter(deps Deps, logger zerolog.Logger) http.Handler {
	h := &Handlers{deps: deps, logger: logger.With().Str("component", "http").Logger()}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/quizzes/{quizID}/session", h.openSession)
	mux.HandleFunc("GET /v1/quizzes/{quizID}/session", h.getSession)
	mux.HandleFunc("DELETE /v1/quizzes/{quizID}/session", h.abandonSession)
	mux.HandleFunc("PUT /v1/quizzes/{quizID}/session/answers/{questionID}", h.saveAnswer)
	mux.HandleFunc("POST /v1/quizzes/{quizID}/session/answers/{questionID}/toggle", h.toggleOption)
	mux.HandleFunc("POST /v1/quizzes/{quizID}/session/visits/{questionID}", h.markVisited)
	mux.HandleFunc("POST /v1/quizzes/{quizID}/session/cursor", h.moveCursor)
	mux.HandleFunc("POST /v1/quizzes/{quizID}/session/finish", h.finishSession)
	mux.HandleFunc("GET /ws/quizzes/{quizID}/session", h.sessionStream)

	mux.HandleFunc("GET /v1/attempts/{attemptID}/answers", h.attemptAnswers)
	mux.HandleFunc("GET /v1/quizzes/{quizID}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /v1/quizzes/{quizID}/statistics", h.statistics)
	mux.Handle("GET /v1/users/{userID}/attempts", auth.RequireAuth(http.HandlerFunc(h.userAttempts)))
	mux.HandleFunc("PUT /v1/quizzes/{quizID}/access-key", h.setAccessKey)

	return requestContext(logger)(auth.Middleware(deps.Resolver, logger)(mux))
}

// NewHTTPServer wraps the router in a server listening on the configured address.
func NewHTTPServer(cfg *config.App, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// requestContext tags every request with an id and a request scoped logger.
func requestContext(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(headerRequestID, requestID)

			reqLogger := logger.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(logging.IntoContext(r.Context(), reqLogger)))
			reqLogger.Debug().Dur("duration", time.Since(start)).Msg("request served")
		})
	}
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	log := logging.FromContext(r.Context())
	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Health))
	for name, p := range h.deps.Health {
		if err := p.Ping(ctx); err != nil {
			log.Error().Err(err).Str("dependency", name).Msg("dependency ping failed")
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
