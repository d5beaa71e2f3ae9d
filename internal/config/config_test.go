package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "http://backend:5000")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "quiz-attempt-engine", cfg.Name)
	assert.Equal(t, StoreMemory, cfg.Checkpoint.Store)
	assert.Equal(t, 24*time.Hour, cfg.Checkpoint.TTL)
	assert.Equal(t, time.Second, cfg.Session.TickInterval)
	assert.Equal(t, "Guest", cfg.Session.GuestDisplayName)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Backend.CacheTTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.Empty(t, cfg.Security.JWTSecret)
}

func TestLoadRequiresBackend(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")
	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoadValidatesStore(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "http://backend:5000")

	t.Setenv("CHECKPOINT_STORE", "redis")
	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "REDIS_ADDR")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.Redis.Enabled())

	t.Setenv("CHECKPOINT_STORE", "postgres")
	_, err = Load(context.Background())
	assert.ErrorContains(t, err, "PG_USER")

	t.Setenv("CHECKPOINT_STORE", "disk")
	_, err = Load(context.Background())
	assert.ErrorContains(t, err, "unknown CHECKPOINT_STORE")
}

func TestPostgresDSN(t *testing.T) {
	t.Setenv("PG_USER", "quiz")
	t.Setenv("PG_PASSWORD", "pw")
	t.Setenv("PG_DATABASE", "attempts")

	pg, err := LoadPostgres()
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=quiz password=pw dbname=attempts sslmode=disable", pg.DSN())
}
