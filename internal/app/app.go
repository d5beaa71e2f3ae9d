package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/answers"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/auth"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/auth/jwt"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/backend"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/checkpoint"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/config"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/events"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/leaderboard"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/logging"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/server"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/session"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/stats"
	ws "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/ws"
)

// checkpointStore is what the session engine and the adapter need from storage.
type checkpointStore interface {
	checkpoint.Store
	checkpoint.AccessKeyStore
}

// backendClient is every collaborator read and write the engine makes.
type backendClient interface {
	server.Backend
	answers.Fetcher
	leaderboard.Fetcher
	stats.Fetcher
}

// Application aggregates shared infrastructure (stores, hub, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool     *pgxpool.Pool
	redis    *redis.Client
	http     *http.Server
	hub      *ws.Hub
	sessions *session.Manager

	broadcaster *events.Broadcaster
	bgCancels   []context.CancelFunc
}

// New bootstraps logger, storage, the backend client and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Str("checkpoint_store", cfg.Checkpoint.Store).Msg("starting application bootstrap")

	a := &Application{cfg: cfg, logger: logger, bgCancels: make([]context.CancelFunc, 0, 1)}
	health := map[string]server.Pinger{}

	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		health["redis"] = server.PingFunc(func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}

	if cfg.Checkpoint.Store == config.StorePostgres {
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("parse postgres config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Postgres.MaxConns)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		health["postgres"] = server.PingFunc(pool.Ping)
	}

	var store checkpointStore
	switch cfg.Checkpoint.Store {
	case config.StoreRedis:
		store = checkpoint.NewRedisStore(a.redis, cfg.Checkpoint.TTL, cfg.Checkpoint.AccessKeyTTL)
	case config.StorePostgres:
		store = checkpoint.NewPostgresStore(a.pool, cfg.Checkpoint.TTL, cfg.Checkpoint.AccessKeyTTL)
	default:
		logger.Warn().Msg("using in-memory checkpoints; progress is lost on restart")
		store = checkpoint.NewMemoryStore(cfg.Checkpoint.TTL)
	}

	a.hub = ws.NewHub(logger)
	var publisher events.Publisher = events.NewHubPublisher(a.hub)
	if a.redis != nil {
		publisher = events.NewRedisPublisher(a.redis, cfg.Events.Channel)
		a.broadcaster = events.NewBroadcaster(a.redis, a.hub, cfg.Events.Channel, logger)
	}

	base := backend.NewClient(cfg.Backend.BaseURL, &http.Client{Timeout: cfg.Backend.Timeout}, logger)
	var client backendClient = base
	if a.redis != nil && cfg.Backend.CacheTTL > 0 {
		client = backend.NewCachingClient(base, backend.NewContentCache(a.redis, cfg.Backend.CacheTTL))
	}

	a.sessions = session.NewManager(store, client, session.ManagerOptions{
		TickInterval: cfg.Session.TickInterval,
		OnEvent:      events.Relay(publisher, logger),
	}, logger)

	answerSvc := answers.NewService(client, logger)
	handler := server.NewRouter(server.Deps{
		Sessions:    a.sessions,
		Backend:     client,
		AccessKeys:  store,
		Answers:     answerSvc,
		Leaderboard: leaderboard.NewService(client, logger, leaderboard.ServiceOptions{GuestName: cfg.Session.GuestDisplayName}),
		Stats:       stats.NewService(client, answerSvc, logger, stats.ServiceOptions{Concurrency: cfg.Stats.Concurrency}),
		Hub:         a.hub,
		Resolver:    auth.NewResolver(jwt.NewParser([]byte(cfg.Security.JWTSecret))),
		Health:      health,
	}, logger)
	if cfg.Security.JWTSecret == "" {
		logger.Warn().Msg("JWT secret not configured; bearer tokens are read without verification")
	}

	a.http = server.NewHTTPServer(cfg, handler)
	return a, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	// checkpoints survive; sessions are restored on the next open
	a.sessions.Shutdown()
	a.hub.CloseAll()

	for _, cancel := range a.bgCancels {
		cancel()
	}

	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	if a.broadcaster == nil {
		return
	}
	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancels = append(a.bgCancels, cancel)
	go func() {
		if err := a.broadcaster.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Msg("session event broadcaster stopped")
		}
	}()
}
