package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KickTools/ape-server/internal/domain"
)

// ProfileRepo stores denormalized provider profile snapshots. Profiles are
// informational only; identity decisions never read them.
type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) Upsert(ctx context.Context, platform domain.Platform, username string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal profile data: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO profiles (platform, username, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (platform, username) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()`,
		string(platform), strings.ToLower(username), payload)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *ProfileRepo) Get(ctx context.Context, platform domain.Platform, username string) (*domain.Profile, error) {
	var profile domain.Profile
	var payload []byte

	err := r.pool.QueryRow(ctx,
		`SELECT platform, username, data, updated_at FROM profiles WHERE platform = $1 AND username = $2`,
		string(platform), strings.ToLower(username)).
		Scan(&profile.Platform, &profile.Username, &payload, &profile.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if err := json.Unmarshal(payload, &profile.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile data: %w", err)
	}
	return &profile, nil
}
