package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 25

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the schema idempotently at startup.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS viewers (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'regular',
			twitch_user_id TEXT,
			twitch_username TEXT,
			twitch_verified BOOLEAN NOT NULL DEFAULT FALSE,
			twitch_verified_at TIMESTAMPTZ,
			kick_user_id TEXT,
			kick_username TEXT,
			kick_verified BOOLEAN NOT NULL DEFAULT FALSE,
			kick_verified_at TIMESTAMPTZ,
			x_user_id TEXT,
			x_username TEXT,
			x_verified BOOLEAN NOT NULL DEFAULT FALSE,
			x_verified_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_viewers_twitch_user_id ON viewers(twitch_user_id) WHERE twitch_user_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_viewers_kick_user_id ON viewers(kick_user_id) WHERE kick_user_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_viewers_x_user_id ON viewers(x_user_id) WHERE x_user_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_viewers_twitch_username ON viewers(twitch_username)`,
		`CREATE INDEX IF NOT EXISTS idx_viewers_kick_username ON viewers(kick_username)`,
		`CREATE TABLE IF NOT EXISTS provider_tokens (
			viewer_id UUID NOT NULL REFERENCES viewers(id) ON DELETE CASCADE,
			platform TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (viewer_id, platform)
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			platform TEXT NOT NULL,
			username TEXT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (platform, username)
		)`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	slog.Info("Database migrations completed")
	return nil
}
