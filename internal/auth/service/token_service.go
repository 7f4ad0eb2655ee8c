package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zainab-hr/ProjetProduits/internal/auth/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenService issues and verifies signed access tokens. Verification is
// pure computation: no database or network access, so the gateway can call
// it on every request without blocking.
type TokenService interface {
	// Issue produces a signed token for the given subject and role
	Issue(username string, role domain.Role) (string, error)
	// Verify checks signature and expiry and returns the embedded claims
	Verify(tokenString string) (*domain.Claims, error)
	// RemainingLifetimeSeconds reports the configured validity window
	RemainingLifetimeSeconds() int64
}

type tokenService struct {
	secret    []byte
	accessTTL time.Duration
}

// NewTokenService creates a new TokenService signing with HMAC-SHA256
func NewTokenService(secret string, accessTTL time.Duration) TokenService {
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	return &tokenService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
	}
}

func (s *tokenService) Issue(username string, role domain.Role) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  username,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.accessTTL).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *tokenService) Verify(tokenString string) (*domain.Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return nil, ErrInvalidToken
	}
	role, ok := claims["role"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &domain.Claims{
		Username: username,
		Role:     domain.Role(role),
	}, nil
}

func (s *tokenService) RemainingLifetimeSeconds() int64 {
	return int64(s.accessTTL.Seconds())
}
