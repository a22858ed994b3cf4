package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KickTools/ape-server/internal/crypto"
	"github.com/KickTools/ape-server/internal/domain"
)

// tokenColumns must match the Scan order in scanToken.
const tokenColumns = `viewer_id, platform, access_token, refresh_token, expires_at, created_at, updated_at`

// TokenRepo implements domain.TokenRepository backed by PostgreSQL. Tokens
// are encrypted before they hit the database and decrypted on the way out.
type TokenRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
}

func NewTokenRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service) *TokenRepo {
	return &TokenRepo{pool: pool, crypto: cryptoSvc}
}

func (r *TokenRepo) scanToken(row scannable) (*domain.ProviderToken, error) {
	var t domain.ProviderToken
	var platform string
	err := row.Scan(&t.ViewerID, &platform, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Platform = domain.Platform(platform)

	if t.AccessToken, err = r.crypto.Decrypt(t.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if t.RefreshToken, err = r.crypto.Decrypt(t.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &t, nil
}

func (r *TokenRepo) encryptPair(accessToken, refreshToken string) (string, string, error) {
	encAccess, err := r.crypto.Encrypt(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := r.crypto.Encrypt(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return encAccess, encRefresh, nil
}

func (r *TokenRepo) Upsert(ctx context.Context, viewerID uuid.UUID, platform domain.Platform, accessToken, refreshToken string, expiresAt time.Time) (*domain.ProviderToken, error) {
	encAccess, encRefresh, err := r.encryptPair(accessToken, refreshToken)
	if err != nil {
		return nil, err
	}

	token, err := r.scanToken(r.pool.QueryRow(ctx, `
		INSERT INTO provider_tokens (viewer_id, platform, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (viewer_id, platform) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING `+tokenColumns,
		viewerID, string(platform), encAccess, encRefresh, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert provider token: %w", err)
	}
	return token, nil
}

func (r *TokenRepo) Get(ctx context.Context, viewerID uuid.UUID, platform domain.Platform) (*domain.ProviderToken, error) {
	token, err := r.scanToken(r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM provider_tokens WHERE viewer_id = $1 AND platform = $2`,
		viewerID, string(platform)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider token: %w", err)
	}
	return token, nil
}

func (r *TokenRepo) UpdateTokens(ctx context.Context, viewerID uuid.UUID, platform domain.Platform, accessToken, refreshToken string, expiresAt time.Time) error {
	encAccess, encRefresh, err := r.encryptPair(accessToken, refreshToken)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE provider_tokens
		SET access_token = $1, refresh_token = $2, expires_at = $3, updated_at = NOW()
		WHERE viewer_id = $4 AND platform = $5`,
		encAccess, encRefresh, expiresAt, viewerID, string(platform))
	if err != nil {
		return fmt.Errorf("failed to update provider token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepo) Delete(ctx context.Context, viewerID uuid.UUID, platform domain.Platform) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM provider_tokens WHERE viewer_id = $1 AND platform = $2`,
		viewerID, string(platform))
	if err != nil {
		return fmt.Errorf("failed to delete provider token: %w", err)
	}
	return nil
}
