package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of pgxpool.Pool used by PostgresStore.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	loadCheckpointSQL = `SELECT payload FROM attempt_checkpoints WHERE key = $1 AND expires_at > $2`
	saveCheckpointSQL = `INSERT INTO attempt_checkpoints (key, payload, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`
	clearCheckpointSQL = `DELETE FROM attempt_checkpoints WHERE key = $1`

	loadAccessKeySQL = `SELECT access_key FROM quiz_access_keys WHERE quiz_id = $1 AND expires_at > $2`
	saveAccessKeySQL = `INSERT INTO quiz_access_keys (quiz_id, access_key, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (quiz_id) DO UPDATE SET access_key = EXCLUDED.access_key, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`
	clearAccessKeySQL = `DELETE FROM quiz_access_keys WHERE quiz_id = $1`
)

// PostgresStore persists checkpoints in a key/value table for deployments
// that prefer durable storage over Redis. Schema lives in db/migrations.
type PostgresStore struct {
	db           querier
	ttl          time.Duration
	accessKeyTTL time.Duration
	clock        func() time.Time
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ AccessKeyStore = (*PostgresStore)(nil)
)

// NewPostgresStore accepts a *pgxpool.Pool (or anything with the same Exec/QueryRow).
func NewPostgresStore(db querier, ttl, accessKeyTTL time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = defaultCheckpointTTL
	}
	if accessKeyTTL <= 0 {
		accessKeyTTL = defaultAccessKeyTTL
	}
	return &PostgresStore{db: db, ttl: ttl, accessKeyTTL: accessKeyTTL, clock: time.Now}
}

func (s *PostgresStore) Load(ctx context.Context, key string) (*Checkpoint, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, loadCheckpointSQL, key, s.clock().UTC()).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, cp Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	now := s.clock().UTC()
	if _, err := s.db.Exec(ctx, saveCheckpointSQL, key, payload, now.Add(s.ttl), now); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, clearCheckpointSQL, key); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccessKey(ctx context.Context, quizID string) (string, error) {
	var accessKey string
	err := s.db.QueryRow(ctx, loadAccessKeySQL, quizID, s.clock().UTC()).Scan(&accessKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load access key: %w", err)
	}
	return accessKey, nil
}

func (s *PostgresStore) SetAccessKey(ctx context.Context, quizID, accessKey string) error {
	if accessKey == "" {
		if _, err := s.db.Exec(ctx, clearAccessKeySQL, quizID); err != nil {
			return fmt.Errorf("clear access key: %w", err)
		}
		return nil
	}
	now := s.clock().UTC()
	if _, err := s.db.Exec(ctx, saveAccessKeySQL, quizID, accessKey, now.Add(s.accessKeyTTL), now); err != nil {
		return fmt.Errorf("save access key: %w", err)
	}
	return nil
}
