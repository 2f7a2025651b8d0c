package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sushilparajuli/note-app-fullstack/internal/auth"
	"github.com/sushilparajuli/note-app-fullstack/internal/domain"
	"github.com/sushilparajuli/note-app-fullstack/internal/event"
	apperrors "github.com/sushilparajuli/note-app-fullstack/pkg/errors"
	pkgkafka "github.com/sushilparajuli/note-app-fullstack/pkg/kafka"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) DeleteByID(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTManager() *auth.JWTManager {
	return auth.NewJWTManager("test-access-secret", "test-refresh-secret", 15*time.Minute, 7*24*time.Hour)
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	// Async so publishing never blocks on a broker that is not there.
	kafkaCfg.Async = true
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func newTestService(
	userRepo *mockUserRepository,
	refreshTokenRepo *mockRefreshTokenRepository,
) *AuthService {
	logger := newTestLogger()
	jwtManager := newTestJWTManager()
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	producer := newTestEventProducer()
	return NewAuthService(userRepo, refreshTokenRepo, jwtManager, hasher, producer, logger)
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), 4)
	if err != nil {
		panic(err)
	}
	return string(h)
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	refreshTokenRepo.On("Create", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	pair, user, err := svc.Register(ctx, "john@example.com", "SecurePass123")

	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, pair)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "john@example.com", user.Email)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotZero(t, user.CreatedAt)
	assert.NotZero(t, user.UpdatedAt)

	// The stored hash must verify the original password and never equal it.
	assert.NotEqual(t, "SecurePass123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("SecurePass123")))

	userRepo.AssertExpectations(t)
	refreshTokenRepo.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Return(apperrors.AlreadyExists("user", "email", "john@example.com"))

	pair, user, err := svc.Register(ctx, "john@example.com", "SecurePass123")

	assert.Nil(t, pair)
	assert.Nil(t, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	userRepo.AssertExpectations(t)
	refreshTokenRepo.AssertNotCalled(t, "Create")
}

func TestRegister_DistinctTokens(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	refreshTokenRepo.On("Create", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	pair, _, err := svc.Register(ctx, "john@example.com", "SecurePass123")

	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	stored := &domain.User{
		ID:           "user-1",
		Email:        "john@example.com",
		PasswordHash: hashForTest("SecurePass123"),
	}
	userRepo.On("GetByEmail", ctx, "john@example.com").Return(stored, nil)
	refreshTokenRepo.On("Create", ctx, "user-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	pair, user, err := svc.Login(ctx, "john@example.com", "SecurePass123")

	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	userRepo.AssertExpectations(t)
	refreshTokenRepo.AssertExpectations(t)
}

func TestLogin_UnknownEmail(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	userRepo.On("GetByEmail", ctx, "nobody@example.com").
		Return(nil, apperrors.NotFound("user", "nobody@example.com"))

	pair, user, err := svc.Login(ctx, "nobody@example.com", "SecurePass123")

	assert.Nil(t, pair)
	assert.Nil(t, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Invalid email or password", appErr.Message)
}

func TestLogin_WrongPassword(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	stored := &domain.User{
		ID:           "user-1",
		Email:        "john@example.com",
		PasswordHash: hashForTest("SecurePass123"),
	}
	userRepo.On("GetByEmail", ctx, "john@example.com").Return(stored, nil)

	pair, user, err := svc.Login(ctx, "john@example.com", "WrongPass456")

	assert.Nil(t, pair)
	assert.Nil(t, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Wrong password and unknown account must be indistinguishable.
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Invalid email or password", appErr.Message)

	refreshTokenRepo.AssertNotCalled(t, "Create")
}

// --- Refresh Tests ---

func TestRefreshToken_RotatesAndInvalidatesOld(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	refreshToken, err := jwtManager.GenerateRefreshToken("user-1", "john@example.com")
	require.NoError(t, err)

	stored := &domain.RefreshToken{
		ID:        "token-1",
		UserID:    "user-1",
		TokenHash: hashToken(refreshToken),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	user := &domain.User{ID: "user-1", Email: "john@example.com"}

	refreshTokenRepo.On("GetByHash", ctx, hashToken(refreshToken)).Return(stored, nil)
	userRepo.On("GetByID", ctx, "user-1").Return(user, nil)
	refreshTokenRepo.On("Create", ctx, "user-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)
	refreshTokenRepo.On("DeleteByID", ctx, "token-1").Return(nil)

	pair, err := svc.RefreshToken(ctx, refreshToken)

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, refreshToken, pair.RefreshToken)

	refreshTokenRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestRefreshToken_UnknownToken(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	refreshToken, err := jwtManager.GenerateRefreshToken("user-1", "john@example.com")
	require.NoError(t, err)

	refreshTokenRepo.On("GetByHash", ctx, hashToken(refreshToken)).
		Return(nil, apperrors.NotFound("refresh token", "hash"))

	pair, err := svc.RefreshToken(ctx, refreshToken)

	assert.Nil(t, pair)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Invalid or expired refresh token", appErr.Message)
}

func TestRefreshToken_Garbage(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	pair, err := svc.RefreshToken(ctx, "not-a-jwt")

	assert.Nil(t, pair)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	refreshTokenRepo.AssertNotCalled(t, "GetByHash")
}

func TestRefreshToken_StoredExpiryAtNowRejected(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	refreshToken, err := jwtManager.GenerateRefreshToken("user-1", "john@example.com")
	require.NoError(t, err)

	// Stored expiry in the past while the JWT itself is still valid. The
	// stored record is the authority, so the rotation must fail.
	stored := &domain.RefreshToken{
		ID:        "token-1",
		UserID:    "user-1",
		TokenHash: hashToken(refreshToken),
		ExpiresAt: time.Now().UTC().Add(-time.Second),
	}
	refreshTokenRepo.On("GetByHash", ctx, hashToken(refreshToken)).Return(stored, nil)

	pair, err := svc.RefreshToken(ctx, refreshToken)

	assert.Nil(t, pair)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	userRepo.AssertNotCalled(t, "GetByID")
	refreshTokenRepo.AssertNotCalled(t, "Create")
}

func TestRefreshToken_DeletedUser(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	refreshToken, err := jwtManager.GenerateRefreshToken("user-1", "john@example.com")
	require.NoError(t, err)

	stored := &domain.RefreshToken{
		ID:        "token-1",
		UserID:    "user-1",
		TokenHash: hashToken(refreshToken),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	refreshTokenRepo.On("GetByHash", ctx, hashToken(refreshToken)).Return(stored, nil)
	userRepo.On("GetByID", ctx, "user-1").Return(nil, apperrors.NotFound("user", "user-1"))

	pair, err := svc.RefreshToken(ctx, refreshToken)

	assert.Nil(t, pair)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	refreshTokenRepo.AssertNotCalled(t, "Create")
}

func TestRefreshToken_StorageFailureIsRefreshFailed(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	refreshToken, err := jwtManager.GenerateRefreshToken("user-1", "john@example.com")
	require.NoError(t, err)

	refreshTokenRepo.On("GetByHash", ctx, hashToken(refreshToken)).
		Return(nil, errors.New("connection reset"))

	pair, err := svc.RefreshToken(ctx, refreshToken)

	assert.Nil(t, pair)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefreshToken_DeleteFailureIsRefreshFailed(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	refreshToken, err := jwtManager.GenerateRefreshToken("user-1", "john@example.com")
	require.NoError(t, err)

	stored := &domain.RefreshToken{
		ID:        "token-1",
		UserID:    "user-1",
		TokenHash: hashToken(refreshToken),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	user := &domain.User{ID: "user-1", Email: "john@example.com"}

	refreshTokenRepo.On("GetByHash", ctx, hashToken(refreshToken)).Return(stored, nil)
	userRepo.On("GetByID", ctx, "user-1").Return(user, nil)
	refreshTokenRepo.On("Create", ctx, "user-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)
	refreshTokenRepo.On("DeleteByID", ctx, "token-1").Return(errors.New("connection reset"))

	pair, err := svc.RefreshToken(ctx, refreshToken)

	assert.Nil(t, pair)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRefreshFailed)
}

// --- Validate Tests ---

func TestValidateToken_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	accessToken, err := jwtManager.GenerateAccessToken("user-1", "john@example.com")
	require.NoError(t, err)

	user := &domain.User{ID: "user-1", Email: "john@example.com"}
	userRepo.On("GetByID", ctx, "user-1").Return(user, nil)

	claims, got, err := svc.ValidateToken(ctx, accessToken)

	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "john@example.com", claims.Email)
	assert.Equal(t, "user-1", got.ID)
}

func TestValidateToken_RefreshTokenRejected(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	// A refresh token is signed with the other secret and must not pass
	// access verification.
	jwtManager := newTestJWTManager()
	refreshToken, err := jwtManager.GenerateRefreshToken("user-1", "john@example.com")
	require.NoError(t, err)

	claims, user, err := svc.ValidateToken(ctx, refreshToken)

	assert.Nil(t, claims)
	assert.Nil(t, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	userRepo.AssertNotCalled(t, "GetByID")
}

func TestValidateToken_DeletedUser(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	jwtManager := newTestJWTManager()
	accessToken, err := jwtManager.GenerateAccessToken("user-1", "john@example.com")
	require.NoError(t, err)

	userRepo.On("GetByID", ctx, "user-1").Return(nil, apperrors.NotFound("user", "user-1"))

	claims, user, err := svc.ValidateToken(ctx, accessToken)

	assert.Nil(t, claims)
	assert.Nil(t, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "User not found", appErr.Message)
}

// --- Logout Tests ---

func TestLogout_DeletesToken(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	refreshTokenRepo.On("DeleteByHash", ctx, hashToken("some-token")).Return(nil)

	err := svc.Logout(ctx, "some-token")

	require.NoError(t, err)
	refreshTokenRepo.AssertExpectations(t)
}

func TestLogout_UnknownTokenStillSucceeds(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	// The repository treats zero deleted rows as success, so logging out
	// twice with the same token is fine.
	refreshTokenRepo.On("DeleteByHash", ctx, hashToken("gone-token")).Return(nil)

	require.NoError(t, svc.Logout(ctx, "gone-token"))
	require.NoError(t, svc.Logout(ctx, "gone-token"))
}

// --- Account Tests ---

func TestGetProfile_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	user := &domain.User{ID: "user-1", Email: "john@example.com"}
	userRepo.On("GetByID", ctx, "user-1").Return(user, nil)

	got, err := svc.GetProfile(ctx, "user-1")

	require.NoError(t, err)
	assert.Equal(t, "john@example.com", got.Email)
}

func TestDeleteAccount_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	userRepo.On("Delete", ctx, "user-1").Return(nil)

	require.NoError(t, svc.DeleteAccount(ctx, "user-1"))
	userRepo.AssertExpectations(t)
}

func TestDeleteAccount_NotFound(t *testing.T) {
	userRepo := new(mockUserRepository)
	refreshTokenRepo := new(mockRefreshTokenRepository)
	svc := newTestService(userRepo, refreshTokenRepo)
	ctx := context.Background()

	userRepo.On("Delete", ctx, "ghost").Return(apperrors.NotFound("user", "ghost"))

	err := svc.DeleteAccount(ctx, "ghost")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
