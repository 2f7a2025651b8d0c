package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sushilparajuli/note-app-fullstack/internal/auth"
	"github.com/sushilparajuli/note-app-fullstack/internal/domain"
	"github.com/sushilparajuli/note-app-fullstack/internal/event"
	"github.com/sushilparajuli/note-app-fullstack/internal/repository"
	apperrors "github.com/sushilparajuli/note-app-fullstack/pkg/errors"
	"github.com/sushilparajuli/note-app-fullstack/pkg/logger"
)

// AuthService implements registration, login, token rotation and account
// operations on top of the user and refresh token repositories.
type AuthService struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	jwt    *auth.JWTManager
	hasher *auth.PasswordHasher
	events *event.Producer
	log    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	jwt *auth.JWTManager,
	hasher *auth.PasswordHasher,
	events *event.Producer,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		jwt:    jwt,
		hasher: hasher,
		events: events,
		log:    log,
	}
}

// Register creates a new account and signs the user in, returning a fresh
// token pair. The email must not already belong to an existing account.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.TokenPair, *domain.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		logger.WithContext(ctx, s.log).Warn("failed to publish user.registered event",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	logger.WithContext(ctx, s.log).Info("user registered", slog.String("user_id", user.ID))
	tokenPairsIssued.WithLabelValues("register").Inc()

	return pair, user, nil
}

// Login verifies the credentials and returns a fresh token pair. Unknown
// email and wrong password produce the same error so callers cannot probe
// which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, *domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			loginFailures.Inc()
			return nil, nil, apperrors.Unauthorized("Invalid email or password")
		}
		return nil, nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		loginFailures.Inc()
		return nil, nil, apperrors.Unauthorized("Invalid email or password")
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	logger.WithContext(ctx, s.log).Info("user logged in", slog.String("user_id", user.ID))
	tokenPairsIssued.WithLabelValues("login").Inc()

	return pair, user, nil
}

// RefreshToken rotates a refresh token: the presented token is checked
// against the store, a new pair is issued and the old token is invalidated
// so it cannot be replayed. Unexpected storage or signing failures are
// reported as a refresh failure rather than a generic rejection.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	pair, err := s.rotate(ctx, refreshToken)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Status == http.StatusUnauthorized {
			return nil, err
		}
		return nil, apperrors.RefreshFailed(err)
	}

	refreshRotations.Inc()
	tokenPairsIssued.WithLabelValues("refresh").Inc()
	return pair, nil
}

func (s *AuthService) rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if _, err := s.jwt.ValidateRefreshToken(refreshToken); err != nil {
		return nil, apperrors.Unauthorized("Invalid or expired refresh token")
	}

	stored, err := s.tokens.GetByHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("Invalid or expired refresh token")
		}
		return nil, err
	}

	if !time.Now().UTC().Before(stored.ExpiresAt) {
		return nil, apperrors.Unauthorized("Invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("Invalid or expired refresh token")
		}
		return nil, err
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.DeleteByID(ctx, stored.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("refresh token rotated", slog.String("user_id", user.ID))
	return pair, nil
}

// ValidateToken verifies an access token signature and expiry, then confirms
// the account it references still exists.
func (s *AuthService) ValidateToken(ctx context.Context, accessToken string) (*auth.Claims, *domain.User, error) {
	claims, err := s.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, nil, apperrors.Unauthorized("Invalid token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.NotFoundMsg("User not found")
		}
		return nil, nil, err
	}

	return claims, user, nil
}

// Logout removes the presented refresh token from the store. Tokens that are
// unknown or already removed are treated as logged out.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.DeleteByHash(ctx, hashToken(refreshToken)); err != nil {
		return err
	}

	logouts.Inc()
	return nil
}

// GetProfile returns the account identified by userID.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMsg("User not found")
		}
		return nil, err
	}
	return user, nil
}

// DeleteAccount removes the account and, through the foreign key cascade,
// every refresh token issued to it.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMsg("User not found")
		}
		return err
	}

	if err := s.events.PublishUserDeleted(ctx, userID); err != nil {
		logger.WithContext(ctx, s.log).Warn("failed to publish user.deleted event",
			slog.String("user_id", userID), slog.Any("error", err))
	}

	logger.WithContext(ctx, s.log).Info("account deleted", slog.String("user_id", userID))
	return nil
}

// issueTokenPair signs a new access and refresh token for the user and
// persists a hash of the refresh token for later rotation and revocation.
func (s *AuthService) issueTokenPair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	refreshToken, err := s.jwt.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	expiresAt := time.Now().UTC().Add(s.jwt.RefreshTTL())
	if err := s.tokens.Create(ctx, user.ID, hashToken(refreshToken), expiresAt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// hashToken returns the hex encoded SHA-256 digest of a token. Only digests
// are stored so a database leak does not expose usable refresh tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
