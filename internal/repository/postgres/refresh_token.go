package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sushilparajuli/note-app-fullstack/internal/domain"
	"github.com/sushilparajuli/note-app-fullstack/pkg/database"
	apperrors "github.com/sushilparajuli/note-app-fullstack/pkg/errors"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using
// PostgreSQL. Deleted rows are the revocation mechanism; there is no
// separate blacklist.
type RefreshTokenRepository struct {
	pool database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(pool database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

// Create stores a new refresh token hash with its expiry.
func (r *RefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, uuid.New().String(), userID, tokenHash, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByHash retrieves a refresh token record by its hash.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	var rt domain.RefreshToken
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &rt, nil
}

// DeleteByID removes a specific refresh token record, used on rotation.
func (r *RefreshTokenRepository) DeleteByID(ctx context.Context, id string) error {
	query := `DELETE FROM refresh_tokens WHERE id = $1`

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("refresh token", id)
	}

	return nil
}

// DeleteByHash removes all refresh token records matching the hash, used on
// logout. Deleting a token that was already deleted is a no-op, which makes
// logout idempotent.
func (r *RefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1`

	_, err := r.pool.Exec(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("delete refresh tokens by hash: %w", err)
	}

	return nil
}
