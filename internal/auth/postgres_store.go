package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists session credentials in the session_tokens table.
type PostgresStore struct {
	pool DBPool
}

func NewPostgresStore(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	var value string
	row := s.pool.QueryRow(ctx, `SELECT value FROM session_tokens WHERE session_id = $1 AND key = $2`, sessionID, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select session token: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, sessionID, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_tokens (session_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, sessionID, key, value)
	if err != nil {
		return fmt.Errorf("upsert session token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_tokens WHERE session_id = $1 AND key = ANY($2)`, sessionID, keys); err != nil {
		return fmt.Errorf("delete session tokens: %w", err)
	}
	return nil
}
