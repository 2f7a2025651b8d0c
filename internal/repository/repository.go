package repository

import (
	"context"
	"time"

	"github.com/sushilparajuli/note-app-fullstack/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store. Returns an already-exists
	// error when the email is taken (uniqueness is enforced by storage).
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Delete removes a user from the store by their identifier. Stored
	// refresh tokens for the user are removed by the storage engine's
	// referential cleanup.
	Delete(ctx context.Context, id string) error
}

// RefreshTokenRepository defines the interface for refresh token persistence.
// Revocation is deletion: a rotated or logged-out token's row is removed so
// subsequent lookups cannot find it.
type RefreshTokenRepository interface {
	// Create stores a new refresh token hash with its expiry.
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// GetByHash retrieves a refresh token record by its hash.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// DeleteByID removes a specific record, used on rotation.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByHash removes all records matching the hash, used on logout.
	// Zero matching rows is not an error.
	DeleteByHash(ctx context.Context, tokenHash string) error
}
