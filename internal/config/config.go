package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Checkpoint store kinds.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quiz-attempt-engine"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Backend    Backend
	Redis      Redis
	Postgres   Postgres
	Checkpoint Checkpoint
	Session    Session
	Stats      Stats
	Events     Events
	Security   Security
}

// Backend points at the quiz REST API. CacheTTL applies to quiz and question
// reads when Redis is configured; zero disables the cache.
type Backend struct {
	BaseURL  string        `env:"BACKEND_BASE_URL,notEmpty"`
	Timeout  time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	CacheTTL time.Duration `env:"BACKEND_CACHE_TTL" envDefault:"5m"`
}

// Redis holds checkpoint and event fan-out configuration. An empty address
// disables Redis entirely.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Enabled reports whether a Redis address is configured.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

// Postgres captures connection info for the optional checkpoint database.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:"localhost"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:""`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:""`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// DSN returns a keyword/value connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Checkpoint selects where attempt progress is persisted.
type Checkpoint struct {
	Store        string        `env:"CHECKPOINT_STORE" envDefault:"memory"`
	TTL          time.Duration `env:"CHECKPOINT_TTL" envDefault:"24h"`
	AccessKeyTTL time.Duration `env:"ACCESS_KEY_TTL" envDefault:"720h"`
}

// Session groups attempt runtime defaults.
type Session struct {
	TickInterval     time.Duration `env:"SESSION_TICK_INTERVAL" envDefault:"1s"`
	GuestDisplayName string        `env:"GUEST_DISPLAY_NAME" envDefault:"Guest"`
}

// Stats bounds the statistics fan-out.
type Stats struct {
	Concurrency int `env:"STATS_CONCURRENCY" envDefault:"8"`
}

// Events configures session event fan-out across instances.
type Events struct {
	Channel string `env:"SESSION_EVENTS_CHANNEL" envDefault:"session:events"`
}

// Security stores the optional bearer verification secret.
type Security struct {
	JWTSecret string `env:"JWT_SECRET" envDefault:""`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPostgres parses only the Postgres section.
func LoadPostgres() (*Postgres, error) {
	cfg := &Postgres{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	return cfg, nil
}

func (a *App) validate() error {
	switch a.Checkpoint.Store {
	case StoreMemory:
	case StoreRedis:
		if !a.Redis.Enabled() {
			return fmt.Errorf("CHECKPOINT_STORE=redis requires REDIS_ADDR")
		}
	case StorePostgres:
		if a.Postgres.User == "" || a.Postgres.Database == "" {
			return fmt.Errorf("CHECKPOINT_STORE=postgres requires PG_USER and PG_DATABASE")
		}
	default:
		return fmt.Errorf("unknown CHECKPOINT_STORE %q", a.Checkpoint.Store)
	}
	if a.Session.TickInterval <= 0 {
		return fmt.Errorf("SESSION_TICK_INTERVAL must be positive")
	}
	return nil
}
