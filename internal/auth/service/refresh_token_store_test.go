package service

import (
	"context"
	"testing"
	"time"

	"github.com/zainab-hr/ProjetProduits/internal/auth/domain"
)

func TestRefreshTokenStore_IssueFor(t *testing.T) {
	repo := newMockRefreshTokenRepository()
	store := NewRefreshTokenStore(repo, 7*24*time.Hour)

	token, expiry, err := store.IssueFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}
	if token == "" {
		t.Fatal("IssueFor() returned an empty token")
	}
	if expiry.Before(time.Now().Add(6 * 24 * time.Hour)) {
		t.Errorf("IssueFor() expiry = %v, too soon", expiry)
	}

	t.Run("reissue revokes the prior token", func(t *testing.T) {
		second, _, err := store.IssueFor(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("IssueFor() error = %v", err)
		}
		if second == token {
			t.Error("IssueFor() repeated a token value")
		}
		if repo.countForUser("user-1") != 1 {
			t.Errorf("token count = %d, want 1", repo.countForUser("user-1"))
		}
		if _, err := store.Redeem(context.Background(), token); err != ErrTokenNotFound {
			t.Errorf("Redeem(revoked) error = %v, want %v", err, ErrTokenNotFound)
		}
	})

	t.Run("tokens of other users survive", func(t *testing.T) {
		if _, _, err := store.IssueFor(context.Background(), "user-2"); err != nil {
			t.Fatalf("IssueFor() error = %v", err)
		}
		if repo.countForUser("user-1") != 1 || repo.countForUser("user-2") != 1 {
			t.Error("IssueFor() touched another user's tokens")
		}
	})
}

func TestRefreshTokenStore_Redeem(t *testing.T) {
	repo := newMockRefreshTokenRepository()
	store := NewRefreshTokenStore(repo, 7*24*time.Hour)

	token, _, err := store.IssueFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}

	t.Run("valid token resolves and survives", func(t *testing.T) {
		userID, err := store.Redeem(context.Background(), token)
		if err != nil {
			t.Fatalf("Redeem() error = %v", err)
		}
		if userID != "user-1" {
			t.Errorf("Redeem() userID = %v, want user-1", userID)
		}

		// Redeem alone does not consume a valid token
		if _, err := store.Redeem(context.Background(), token); err != nil {
			t.Errorf("Redeem(again) error = %v", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := store.Redeem(context.Background(), "missing")
		if err != ErrTokenNotFound {
			t.Errorf("Redeem() error = %v, want %v", err, ErrTokenNotFound)
		}
	})

	t.Run("expired token is deleted on sight", func(t *testing.T) {
		repo.Create(context.Background(), &domain.RefreshToken{
			ID:         "expired-id",
			UserID:     "user-3",
			Token:      "expired-token",
			ExpiryDate: time.Now().Add(-time.Minute),
			CreatedAt:  time.Now().Add(-8 * 24 * time.Hour),
		})

		_, err := store.Redeem(context.Background(), "expired-token")
		if err != ErrTokenExpired {
			t.Errorf("Redeem() error = %v, want %v", err, ErrTokenExpired)
		}

		_, err = store.Redeem(context.Background(), "expired-token")
		if err != ErrTokenNotFound {
			t.Errorf("Redeem(deleted) error = %v, want %v", err, ErrTokenNotFound)
		}
	})
}

func TestRefreshTokenStore_Revoke(t *testing.T) {
	repo := newMockRefreshTokenRepository()
	store := NewRefreshTokenStore(repo, 7*24*time.Hour)

	token, _, err := store.IssueFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}

	if err := store.Revoke(context.Background(), token); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := store.Redeem(context.Background(), token); err != ErrTokenNotFound {
		t.Errorf("Redeem(revoked) error = %v, want %v", err, ErrTokenNotFound)
	}

	// Revoking an absent token is a no-op
	if err := store.Revoke(context.Background(), token); err != nil {
		t.Errorf("Revoke(twice) error = %v", err)
	}

	t.Run("revoke all for user", func(t *testing.T) {
		if _, _, err := store.IssueFor(context.Background(), "user-1"); err != nil {
			t.Fatalf("IssueFor() error = %v", err)
		}
		if err := store.RevokeAllFor(context.Background(), "user-1"); err != nil {
			t.Fatalf("RevokeAllFor() error = %v", err)
		}
		if repo.countForUser("user-1") != 0 {
			t.Errorf("token count = %d, want 0", repo.countForUser("user-1"))
		}
	})
}

func TestRefreshTokenStore_PurgeExpired(t *testing.T) {
	repo := newMockRefreshTokenRepository()
	store := NewRefreshTokenStore(repo, 7*24*time.Hour)

	expired := &domain.RefreshToken{
		ID:         "rt-expired",
		UserID:     "user-1",
		Token:      "stale-token",
		ExpiryDate: time.Now().Add(-time.Hour),
		CreatedAt:  time.Now().Add(-8 * 24 * time.Hour),
	}
	if err := repo.Create(context.Background(), expired); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	live, _, err := store.IssueFor(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}

	if err := store.PurgeExpired(context.Background()); err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}

	if repo.countForUser("user-1") != 0 {
		t.Errorf("expired token count = %d, want 0", repo.countForUser("user-1"))
	}
	if _, err := store.Redeem(context.Background(), live); err != nil {
		t.Errorf("Redeem(live) error = %v, want nil", err)
	}
}
