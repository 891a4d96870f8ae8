package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionStore persists sessions to the shared Postgres pool, allowing
// multiple API replicas to share authentication state.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore wraps an existing connection pool. The sessions
// table is created by the repository migrations.
func NewPostgresSessionStore(pool *pgxpool.Pool) (*PostgresSessionStore, error) {
	if pool == nil {
		return nil, errors.New("postgres session pool required")
	}
	return &PostgresSessionStore{pool: pool}, nil
}

func (s *PostgresSessionStore) Save(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
                INSERT INTO sessions (token, user_id, expires_at)
                VALUES ($1, $2, $3)
                ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at`,
		token, userID, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Get(ctx context.Context, token string) (SessionRecord, bool, error) {
	record := SessionRecord{Token: token}
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = $1`,
		token,
	).Scan(&record.UserID, &record.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, false, nil
	} else if err != nil {
		return SessionRecord{}, false, fmt.Errorf("select session: %w", err)
	}
	return record, true, nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) PurgeExpired(ctx context.Context, now time.Time) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC()); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return nil
}

// Ping verifies the shared pool is reachable.
func (s *PostgresSessionStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ SessionStore = (*PostgresSessionStore)(nil)
