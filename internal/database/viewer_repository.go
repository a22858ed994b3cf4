package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KickTools/ape-server/internal/domain"
)

// viewerColumns must match the Scan order in scanViewer.
const viewerColumns = `id, name, role,
	twitch_user_id, twitch_username, twitch_verified, twitch_verified_at,
	kick_user_id, kick_username, kick_verified, kick_verified_at,
	x_user_id, x_username, x_verified, x_verified_at,
	created_at, updated_at`

// ViewerRepo implements domain.ViewerRepository backed by PostgreSQL.
type ViewerRepo struct {
	pool *pgxpool.Pool
}

func NewViewerRepo(pool *pgxpool.Pool) *ViewerRepo {
	return &ViewerRepo{pool: pool}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanViewer(row scannable) (*domain.Viewer, error) {
	var v domain.Viewer
	var role string
	var twitchID, twitchName, kickID, kickName, xID, xName *string

	err := row.Scan(
		&v.ID, &v.Name, &role,
		&twitchID, &twitchName, &v.Twitch.Verified, &v.Twitch.VerifiedAt,
		&kickID, &kickName, &v.Kick.Verified, &v.Kick.VerifiedAt,
		&xID, &xName, &v.X.Verified, &v.X.VerifiedAt,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Role = domain.Role(role)
	v.Twitch.UserID = deref(twitchID)
	v.Twitch.Username = deref(twitchName)
	v.Kick.UserID = deref(kickID)
	v.Kick.Username = deref(kickName)
	v.X.UserID = deref(xID)
	v.X.Username = deref(xName)
	return &v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// platformColumn whitelists the per-platform column prefix. Platform values
// reach SQL only through this function.
func platformColumn(platform domain.Platform) (string, error) {
	if !platform.Valid() {
		return "", fmt.Errorf("unknown platform %q", platform)
	}
	return string(platform), nil
}

func (r *ViewerRepo) GetByID(ctx context.Context, viewerID uuid.UUID) (*domain.Viewer, error) {
	viewer, err := scanViewer(r.pool.QueryRow(ctx,
		`SELECT `+viewerColumns+` FROM viewers WHERE id = $1`, viewerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrViewerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get viewer by ID: %w", err)
	}
	return viewer, nil
}

func (r *ViewerRepo) FindByPlatformUserID(ctx context.Context, platform domain.Platform, platformUserID string) (*domain.Viewer, error) {
	col, err := platformColumn(platform)
	if err != nil {
		return nil, err
	}

	viewer, err := scanViewer(r.pool.QueryRow(ctx,
		`SELECT `+viewerColumns+` FROM viewers WHERE `+col+`_user_id = $1`, platformUserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrViewerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find viewer by %s user ID: %w", platform, err)
	}
	return viewer, nil
}

func (r *ViewerRepo) UpsertPlatformIdentity(ctx context.Context, viewerID *uuid.UUID, platform domain.Platform, identity domain.PlatformIdentity, displayName string) (*domain.Viewer, error) {
	col, err := platformColumn(platform)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	targetID := viewerID
	if targetID == nil {
		// Login flow: reuse the viewer already owning this platform identity.
		var existing uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT id FROM viewers WHERE `+col+`_user_id = $1`, identity.UserID).Scan(&existing)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// First verification of any platform creates the viewer.
		case err != nil:
			return nil, fmt.Errorf("failed to look up viewer: %w", err)
		default:
			targetID = &existing
		}
	}

	var viewer *domain.Viewer
	if targetID != nil {
		viewer, err = scanViewer(tx.QueryRow(ctx, `
			UPDATE viewers SET
				`+col+`_user_id = $1,
				`+col+`_username = $2,
				`+col+`_verified = TRUE,
				`+col+`_verified_at = $3,
				updated_at = NOW()
			WHERE id = $4
			RETURNING `+viewerColumns,
			identity.UserID, identity.Username, identity.VerifiedAt, *targetID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrViewerNotFound
		}
	} else {
		viewer, err = scanViewer(tx.QueryRow(ctx, `
			INSERT INTO viewers (name, role, `+col+`_user_id, `+col+`_username, `+col+`_verified, `+col+`_verified_at)
			VALUES ($1, $2, $3, $4, TRUE, $5)
			RETURNING `+viewerColumns,
			displayName, string(domain.RoleRegular), identity.UserID, identity.Username, identity.VerifiedAt))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert %s identity: %w", platform, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return viewer, nil
}

func (r *ViewerRepo) UpdateRole(ctx context.Context, viewerID uuid.UUID, role domain.Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE viewers SET role = $1, updated_at = NOW() WHERE id = $2`, string(role), viewerID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrViewerNotFound
	}
	return nil
}
