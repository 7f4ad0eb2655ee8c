package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zainab-hr/ProjetProduits/internal/auth/domain"
	"github.com/zainab-hr/ProjetProduits/internal/auth/repository"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
)

// RefreshTokenStore manages persisted rotation credentials. Tokens are
// opaque random strings, never JWTs: they carry no claims and cannot be
// forged offline.
type RefreshTokenStore struct {
	repo repository.RefreshTokenRepository
	ttl  time.Duration
}

// NewRefreshTokenStore creates a new RefreshTokenStore
func NewRefreshTokenStore(repo repository.RefreshTokenRepository, ttl time.Duration) *RefreshTokenStore {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RefreshTokenStore{repo: repo, ttl: ttl}
}

// IssueFor generates a fresh token for the user. All prior tokens for the
// user are revoked before the new one is inserted, so there is never a
// window with two live tokens.
func (s *RefreshTokenStore) IssueFor(ctx context.Context, userID string) (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, err
	}
	token := base64.URLEncoding.EncodeToString(raw)
	expiry := time.Now().Add(s.ttl)

	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return "", time.Time{}, err
	}

	if err := s.repo.Create(ctx, &domain.RefreshToken{
		ID:         uuid.New().String(),
		UserID:     userID,
		Token:      token,
		ExpiryDate: expiry,
		CreatedAt:  time.Now(),
	}); err != nil {
		return "", time.Time{}, err
	}

	return token, expiry, nil
}

// Redeem resolves a token string to its owning user id. An expired token is
// deleted on sight and reported as ErrTokenExpired; it is not reusable even
// once. A valid token is NOT deleted here: rotation is the caller's job.
func (s *RefreshTokenStore) Redeem(ctx context.Context, token string) (string, error) {
	rt, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if rt == nil {
		return "", ErrTokenNotFound
	}

	if time.Now().After(rt.ExpiryDate) {
		_ = s.repo.DeleteByToken(ctx, token)
		return "", ErrTokenExpired
	}

	return rt.UserID, nil
}

// RevokeAllFor deletes every token owned by the user (idempotent)
func (s *RefreshTokenStore) RevokeAllFor(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// Revoke deletes a single token by its string (idempotent)
func (s *RefreshTokenStore) Revoke(ctx context.Context, token string) error {
	return s.repo.DeleteByToken(ctx, token)
}

// PurgeExpired deletes every expired token row. Redeem already removes
// expired tokens on sight; this sweeps the ones nobody presents again.
func (s *RefreshTokenStore) PurgeExpired(ctx context.Context) error {
	return s.repo.DeleteExpired(ctx)
}
