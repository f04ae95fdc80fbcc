// Package auth issues and verifies the access and refresh tokens used by the
// HTTP API, and hashes user passwords.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/nutrilink/platform/internal/app/domain/user"
	apperrors "github.com/nutrilink/platform/internal/errors"
)

// Claims carries the authenticated principal inside a signed token.
type Claims struct {
	UserID string    `json:"uid"`
	Role   user.Role `json:"role"`
	jwt.RegisteredClaims
}

// Config holds signing material and token lifetimes.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
}

// Manager signs and verifies tokens.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager creates a Manager from the given config.
func NewManager(cfg Config) *Manager {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Manager{cfg: cfg, now: time.Now}
}

// TokenPair is the access plus refresh token handed out at login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IssuePair signs a fresh access and refresh token for the user.
func (m *Manager) IssuePair(u user.User) (TokenPair, error) {
	access, err := m.sign(u, m.cfg.AccessSecret, m.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.sign(u, m.cfg.RefreshSecret, m.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *Manager) sign(u user.User, secret string, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(raw string) (Claims, error) {
	return m.verify(raw, m.cfg.AccessSecret)
}

// VerifyRefresh parses and validates a refresh token.
func (m *Manager) VerifyRefresh(raw string) (Claims, error) {
	return m.verify(raw, m.cfg.RefreshSecret)
}

func (m *Manager) verify(raw, secret string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.InvalidToken("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return Claims{}, apperrors.InvalidToken("invalid or expired token")
	}
	return claims, nil
}

// HashPassword hashes a plaintext password with bcrypt.
func (m *Manager) HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), m.cfg.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against its stored hash.
func (m *Manager) CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
