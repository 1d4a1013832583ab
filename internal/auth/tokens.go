// internal/auth/tokens.go
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"translator-back/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the payload of both token kinds.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

type TokenService struct {
	db            *gorm.DB
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenService(db *gorm.DB, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		db:            db,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// RefreshTTL is used for the refresh cookie max-age.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs a short-lived token carrying {id: userID}.
func (s *TokenService) IssueAccessToken(userID string) (string, error) {
	token, _, err := s.sign(userID, s.accessSecret, s.accessTTL)
	return token, err
}

// IssueRefreshToken signs a long-lived token. It is not persisted; use
// RotateRefreshToken for the stored variant.
func (s *TokenService) IssueRefreshToken(userID string) (string, time.Time, error) {
	return s.sign(userID, s.refreshSecret, s.refreshTTL)
}

// RotateRefreshToken drops every stored refresh token of the user and
// persists a fresh one.
func (s *TokenService) RotateRefreshToken(ctx context.Context, userID string) (string, time.Time, error) {
	token, exp, err := s.IssueRefreshToken(userID)
	if err != nil {
		return "", time.Time{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.RefreshToken{
			UserID:    userID,
			TokenHash: HashToken(token),
			ExpiresAt: exp,
		}).Error
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return token, exp, nil
}

// RevokeRefreshTokens removes every stored refresh token of the user.
func (s *TokenService) RevokeRefreshTokens(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

// ValidateAccessToken checks signature and expiry only.
func (s *TokenService) ValidateAccessToken(token string) (*Claims, error) {
	return Validate(token, s.accessSecret)
}

// ValidateRefreshToken checks the signature and that the token is still the
// stored one for its user.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := Validate(token, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	var stored models.RefreshToken
	err = s.db.WithContext(ctx).
		Where("token_hash = ? AND user_id = ?", HashToken(token), claims.UserID).
		First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: refresh token not recognised", ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if s.now().After(stored.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token", ErrTokenExpired)
	}
	return claims, nil
}

// Validate parses an HS256 token signed with secret.
func Validate(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashToken is the stored form of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *TokenService) sign(userID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}
