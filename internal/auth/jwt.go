package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification failure modes. Callers branch on these: an expired
// token is rejected outright, while a signature or parse failure on a
// refresh token still goes through the persistence check in the service.
var (
	// ErrTokenExpired means the signature was valid but the token is at or
	// past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid means the token is malformed, tampered with, or signed
	// with the wrong key.
	ErrTokenInvalid = errors.New("token invalid")
)

const issuer = "auth-service"

// Claims is the payload embedded in every signed token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies access and refresh tokens. The two token
// classes use independent secrets so that compromise of one cannot forge
// the other.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewJWTManager creates a new JWT manager with independent secrets and TTLs
// for the two token classes.
func NewJWTManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTManager {
	return &JWTManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (m *JWTManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *JWTManager) RefreshTTL() time.Duration { return m.refreshTTL }

// GenerateAccessToken creates a signed short-lived access token.
func (m *JWTManager) GenerateAccessToken(userID, email string) (string, error) {
	return m.generate(userID, email, m.accessSecret, m.accessTTL)
}

// GenerateRefreshToken creates a signed long-lived refresh token carrying
// the same claims as the access token.
func (m *JWTManager) GenerateRefreshToken(userID, email string) (string, error) {
	return m.generate(userID, email, m.refreshSecret, m.refreshTTL)
}

func (m *JWTManager) generate(userID, email string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateAccessToken parses and validates an access token, returning the
// claims. Returns ErrTokenExpired or ErrTokenInvalid on failure.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, m.accessSecret)
}

// ValidateRefreshToken parses and validates a refresh token, returning the
// claims. Returns ErrTokenExpired or ErrTokenInvalid on failure.
func (m *JWTManager) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, m.refreshSecret)
}

func (m *JWTManager) validate(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
