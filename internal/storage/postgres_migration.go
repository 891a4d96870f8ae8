package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresMigrations holds the schema in order. Each entry runs once; applied
// versions are tracked in schema_migrations.
var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
                id TEXT PRIMARY KEY,
                email TEXT NOT NULL,
                password_hash TEXT NOT NULL,
                display_name TEXT NOT NULL,
                avatar_url TEXT NOT NULL DEFAULT '',
                channel_name TEXT NOT NULL,
                channel_description TEXT NOT NULL DEFAULT '',
                subscriber_count INTEGER NOT NULL DEFAULT 0,
                created_at TIMESTAMPTZ NOT NULL,
                updated_at TIMESTAMPTZ NOT NULL
        );
        CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx ON users (email);
        CREATE UNIQUE INDEX IF NOT EXISTS users_channel_name_idx ON users (LOWER(channel_name));`,

	`CREATE TABLE IF NOT EXISTS videos (
                id TEXT PRIMARY KEY,
                owner_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
                title TEXT NOT NULL,
                description TEXT NOT NULL DEFAULT '',
                tags TEXT[] NOT NULL DEFAULT '{}',
                visibility TEXT NOT NULL DEFAULT 'public',
                video_url TEXT NOT NULL,
                thumbnail_url TEXT NOT NULL DEFAULT '',
                views INTEGER NOT NULL DEFAULT 0,
                likes INTEGER NOT NULL DEFAULT 0,
                dislikes INTEGER NOT NULL DEFAULT 0,
                created_at TIMESTAMPTZ NOT NULL,
                updated_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS videos_owner_idx ON videos (owner_id);
        CREATE INDEX IF NOT EXISTS videos_visibility_created_idx ON videos (visibility, created_at DESC);`,

	`CREATE TABLE IF NOT EXISTS likes (
                id TEXT PRIMARY KEY,
                user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
                video_id TEXT NOT NULL,
                status TEXT NOT NULL CHECK (status IN ('like', 'dislike')),
                created_at TIMESTAMPTZ NOT NULL,
                updated_at TIMESTAMPTZ NOT NULL,
                UNIQUE (user_id, video_id)
        );
        CREATE INDEX IF NOT EXISTS likes_video_idx ON likes (video_id);`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
                id TEXT PRIMARY KEY,
                subscriber_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
                channel_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
                created_at TIMESTAMPTZ NOT NULL,
                UNIQUE (subscriber_id, channel_id)
        );
        CREATE INDEX IF NOT EXISTS subscriptions_channel_idx ON subscriptions (channel_id);`,

	`CREATE TABLE IF NOT EXISTS history (
                id TEXT PRIMARY KEY,
                user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
                video_id TEXT NOT NULL,
                watched_at TIMESTAMPTZ NOT NULL,
                UNIQUE (user_id, video_id)
        );
        CREATE INDEX IF NOT EXISTS history_user_watched_idx ON history (user_id, watched_at DESC);`,

	`CREATE TABLE IF NOT EXISTS sessions (
                token TEXT PRIMARY KEY,
                user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
                expires_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS sessions_expires_idx ON sessions (expires_at);`,
}

// MigratePostgres applies any schema migrations not yet recorded for this
// database. It is safe to run on every startup.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
                CREATE TABLE IF NOT EXISTS schema_migrations (
                        version INTEGER PRIMARY KEY,
                        applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
                )`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for version, statement := range postgresMigrations {
		var applied bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`,
			version+1,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", version+1, err)
		}
		if applied {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version+1, err)
		}
		if _, err := tx.Exec(ctx, statement); err != nil {
			rollbackTx(ctx, tx)
			return fmt.Errorf("apply migration %d: %w", version+1, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version+1,
		); err != nil {
			rollbackTx(ctx, tx)
			return fmt.Errorf("record migration %d: %w", version+1, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", version+1, err)
		}
	}
	return nil
}

// Migrate applies pending migrations using the repository's own pool.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	return MigratePostgres(ctx, r.pool)
}
