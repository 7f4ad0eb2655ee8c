package service

import (
	"context"
	"testing"
	"time"

	"github.com/zainab-hr/ProjetProduits/internal/auth/domain"
	"github.com/zainab-hr/ProjetProduits/internal/auth/dto"
	"golang.org/x/crypto/bcrypt"
)

// mockUserRepository is a mock implementation of UserRepository
type mockUserRepository struct {
	users         map[string]*domain.User
	usernameIndex map[string]*domain.User
	emailIndex    map[string]*domain.User
	createError   error
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users:         make(map[string]*domain.User),
		usernameIndex: make(map[string]*domain.User),
		emailIndex:    make(map[string]*domain.User),
	}
}

func (r *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if r.createError != nil {
		return r.createError
	}
	r.users[user.ID] = user
	r.usernameIndex[user.Username] = user
	r.emailIndex[user.Email] = user
	return nil
}

func (r *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.users[id], nil
}

func (r *mockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.usernameIndex[username], nil
}

func (r *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.emailIndex[email], nil
}

func (r *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, exists := r.usernameIndex[username]
	return exists, nil
}

func (r *mockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, exists := r.emailIndex[email]
	return exists, nil
}

func (r *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	r.users[user.ID] = user
	r.usernameIndex[user.Username] = user
	r.emailIndex[user.Email] = user
	return nil
}

func (r *mockUserRepository) Delete(ctx context.Context, id string) error {
	user := r.users[id]
	if user != nil {
		delete(r.usernameIndex, user.Username)
		delete(r.emailIndex, user.Email)
		delete(r.users, id)
	}
	return nil
}

func (r *mockUserRepository) addUser(user *domain.User) {
	r.users[user.ID] = user
	r.usernameIndex[user.Username] = user
	r.emailIndex[user.Email] = user
}

// mockRefreshTokenRepository is a mock implementation of RefreshTokenRepository
type mockRefreshTokenRepository struct {
	tokens     map[string]*domain.RefreshToken
	tokenIndex map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens:     make(map[string]*domain.RefreshToken),
		tokenIndex: make(map[string]*domain.RefreshToken),
	}
}

func (r *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	r.tokens[token.ID] = token
	r.tokenIndex[token.Token] = token
	return nil
}

func (r *mockRefreshTokenRepository) GetByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	return r.tokenIndex[token], nil
}

func (r *mockRefreshTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	rt := r.tokenIndex[token]
	if rt != nil {
		delete(r.tokens, rt.ID)
		delete(r.tokenIndex, token)
	}
	return nil
}

func (r *mockRefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) error {
	for id, rt := range r.tokens {
		if rt.UserID == userID {
			delete(r.tokenIndex, rt.Token)
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *mockRefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	for id, rt := range r.tokens {
		if time.Now().After(rt.ExpiryDate) {
			delete(r.tokenIndex, rt.Token)
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *mockRefreshTokenRepository) countForUser(userID string) int {
	count := 0
	for _, rt := range r.tokens {
		if rt.UserID == userID {
			count++
		}
	}
	return count
}

// mockNotifier records propagation calls; Propagate runs on a detached
// goroutine so the channel lets tests wait for the dispatch
type mockNotifier struct {
	calls chan propagateCall
}

type propagateCall struct {
	username string
	email    string
	segment  string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{calls: make(chan propagateCall, 8)}
}

func (n *mockNotifier) Propagate(ctx context.Context, username, email, segment string) {
	n.calls <- propagateCall{username: username, email: email, segment: segment}
}

func (n *mockNotifier) waitForCall(t *testing.T) propagateCall {
	t.Helper()
	select {
	case call := <-n.calls:
		return call
	case <-time.After(time.Second):
		t.Fatal("no replication dispatch observed")
		return propagateCall{}
	}
}

func newTestAuthService(userRepo *mockUserRepository, tokenRepo *mockRefreshTokenRepository, notifier *mockNotifier) AuthService {
	store := NewRefreshTokenStore(tokenRepo, 7*24*time.Hour)
	tokens := NewTokenService("test-secret-key", 15*time.Minute)
	// Lower cost for faster tests
	return NewAuthService(userRepo, store, tokens, notifier, &AuthServiceConfig{BcryptCost: 4})
}

func TestAuthService_Register(t *testing.T) {
	userRepo := newMockUserRepository()
	tokenRepo := newMockRefreshTokenRepository()
	notifier := newMockNotifier()
	svc := newTestAuthService(userRepo, tokenRepo, notifier)

	t.Run("successful registration", func(t *testing.T) {
		req := &dto.RegisterRequest{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "Password1!",
			Segment:  "segment_a",
		}

		resp, err := svc.Register(context.Background(), req)
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		if resp.AccessToken == "" {
			t.Error("Register() AccessToken is empty")
		}
		if resp.RefreshToken == "" {
			t.Error("Register() RefreshToken is empty")
		}
		if resp.TokenType != "Bearer" {
			t.Errorf("Register() TokenType = %v, want Bearer", resp.TokenType)
		}
		if resp.User.Username != req.Username {
			t.Errorf("Register() User.Username = %v, want %v", resp.User.Username, req.Username)
		}
		if resp.User.Role != "USER" {
			t.Errorf("Register() User.Role = %v, want USER", resp.User.Role)
		}
		if resp.User.Segment != "SEGMENT_A" {
			t.Errorf("Register() User.Segment = %v, want SEGMENT_A", resp.User.Segment)
		}

		stored := userRepo.usernameIndex["alice"]
		if stored == nil {
			t.Fatal("Register() did not persist the user")
		}
		if !stored.Enabled {
			t.Error("Register() stored user is not enabled")
		}
		if stored.PasswordHash == req.Password {
			t.Error("Register() stored the plaintext password")
		}

		call := notifier.waitForCall(t)
		if call.username != "alice" || call.email != "alice@example.com" || call.segment != "SEGMENT_A" {
			t.Errorf("Register() propagated %+v", call)
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		req := &dto.RegisterRequest{
			Username: "alice", // Same username as previous test
			Email:    "other@example.com",
			Password: "Password2!",
			Segment:  "SEGMENT_B",
		}

		_, err := svc.Register(context.Background(), req)
		if err != ErrUsernameTaken {
			t.Errorf("Register() error = %v, want %v", err, ErrUsernameTaken)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		req := &dto.RegisterRequest{
			Username: "bob",
			Email:    "alice@example.com", // Same email as first test
			Password: "Password2!",
			Segment:  "SEGMENT_B",
		}

		_, err := svc.Register(context.Background(), req)
		if err != ErrEmailTaken {
			t.Errorf("Register() error = %v, want %v", err, ErrEmailTaken)
		}
	})

	t.Run("unknown segment is rejected before anything persists", func(t *testing.T) {
		req := &dto.RegisterRequest{
			Username: "carol",
			Email:    "carol@example.com",
			Password: "Password3!",
			Segment:  "SEGMENT_X",
		}

		_, err := svc.Register(context.Background(), req)
		if err != ErrUnknownSegment {
			t.Errorf("Register() error = %v, want %v", err, ErrUnknownSegment)
		}
		if userRepo.usernameIndex["carol"] != nil {
			t.Error("Register() persisted a user with an unknown segment")
		}
		select {
		case call := <-notifier.calls:
			t.Errorf("Register() propagated %+v for a rejected segment", call)
		default:
		}
	})

	t.Run("username conflict wins when both collide", func(t *testing.T) {
		req := &dto.RegisterRequest{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "Password2!",
			Segment:  "SEGMENT_A",
		}

		_, err := svc.Register(context.Background(), req)
		if err != ErrUsernameTaken {
			t.Errorf("Register() error = %v, want %v", err, ErrUsernameTaken)
		}
	})
}

func TestAuthService_Login(t *testing.T) {
	userRepo := newMockUserRepository()
	tokenRepo := newMockRefreshTokenRepository()
	notifier := newMockNotifier()
	svc := newTestAuthService(userRepo, tokenRepo, notifier)

	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("Password1!"), 4)
	userRepo.addUser(&domain.User{
		ID:           "login-user-id",
		Username:     "carol",
		Email:        "carol@example.com",
		PasswordHash: string(hashedPassword),
		Role:         domain.RoleUser,
		Segment:      domain.SegmentB,
		Enabled:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})

	t.Run("successful login", func(t *testing.T) {
		resp, err := svc.Login(context.Background(), &dto.LoginRequest{
			Username: "carol",
			Password: "Password1!",
		})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}

		if resp.AccessToken == "" {
			t.Error("Login() AccessToken is empty")
		}
		if resp.RefreshToken == "" {
			t.Error("Login() RefreshToken is empty")
		}
		if resp.User.Username != "carol" {
			t.Errorf("Login() User.Username = %v, want carol", resp.User.Username)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(context.Background(), &dto.LoginRequest{
			Username: "carol",
			Password: "WrongPassword1!",
		})
		if err != ErrInvalidCredentials {
			t.Errorf("Login() error = %v, want %v", err, ErrInvalidCredentials)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.Login(context.Background(), &dto.LoginRequest{
			Username: "nobody",
			Password: "Password1!",
		})
		if err != ErrInvalidCredentials {
			t.Errorf("Login() error = %v, want %v", err, ErrInvalidCredentials)
		}
	})

	t.Run("disabled user reports the same error as bad credentials", func(t *testing.T) {
		userRepo.addUser(&domain.User{
			ID:           "disabled-user-id",
			Username:     "dave",
			Email:        "dave@example.com",
			PasswordHash: string(hashedPassword),
			Role:         domain.RoleUser,
			Segment:      domain.SegmentA,
			Enabled:      false,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		})

		_, err := svc.Login(context.Background(), &dto.LoginRequest{
			Username: "dave",
			Password: "Password1!",
		})
		if err != ErrInvalidCredentials {
			t.Errorf("Login() error = %v, want %v", err, ErrInvalidCredentials)
		}
	})

	t.Run("login revokes the previous refresh token", func(t *testing.T) {
		first, err := svc.Login(context.Background(), &dto.LoginRequest{
			Username: "carol",
			Password: "Password1!",
		})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}

		_, err = svc.Login(context.Background(), &dto.LoginRequest{
			Username: "carol",
			Password: "Password1!",
		})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}

		if tokenRepo.countForUser("login-user-id") != 1 {
			t.Errorf("token count = %d, want 1", tokenRepo.countForUser("login-user-id"))
		}
		if _, err := svc.Refresh(context.Background(), first.RefreshToken); err != ErrTokenNotFound {
			t.Errorf("Refresh(stale) error = %v, want %v", err, ErrTokenNotFound)
		}
	})
}

func TestAuthService_Refresh(t *testing.T) {
	userRepo := newMockUserRepository()
	tokenRepo := newMockRefreshTokenRepository()
	notifier := newMockNotifier()
	svc := newTestAuthService(userRepo, tokenRepo, notifier)

	resp, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "erin",
		Email:    "erin@example.com",
		Password: "Password1!",
		Segment:  "SEGMENT_A",
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	t.Run("successful rotation", func(t *testing.T) {
		rotated, err := svc.Refresh(context.Background(), resp.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}

		if rotated.RefreshToken == resp.RefreshToken {
			t.Error("Refresh() returned the same refresh token")
		}
		if rotated.AccessToken == "" {
			t.Error("Refresh() AccessToken is empty")
		}
		if rotated.User.Username != "erin" {
			t.Errorf("Refresh() User.Username = %v, want erin", rotated.User.Username)
		}

		// The redeemed token must be unusable after rotation
		if _, err := svc.Refresh(context.Background(), resp.RefreshToken); err != ErrTokenNotFound {
			t.Errorf("Refresh(redeemed) error = %v, want %v", err, ErrTokenNotFound)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := svc.Refresh(context.Background(), "no-such-token")
		if err != ErrTokenNotFound {
			t.Errorf("Refresh() error = %v, want %v", err, ErrTokenNotFound)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		expired := &domain.RefreshToken{
			ID:         "expired-id",
			UserID:     resp.User.ID,
			Token:      "expired-token",
			ExpiryDate: time.Now().Add(-time.Hour),
			CreatedAt:  time.Now().Add(-8 * 24 * time.Hour),
		}
		tokenRepo.Create(context.Background(), expired)

		_, err := svc.Refresh(context.Background(), "expired-token")
		if err != ErrTokenExpired {
			t.Errorf("Refresh() error = %v, want %v", err, ErrTokenExpired)
		}

		// Expired tokens are deleted on first sight
		_, err = svc.Refresh(context.Background(), "expired-token")
		if err != ErrTokenNotFound {
			t.Errorf("Refresh(deleted) error = %v, want %v", err, ErrTokenNotFound)
		}
	})
}

func TestAuthService_Logout(t *testing.T) {
	userRepo := newMockUserRepository()
	tokenRepo := newMockRefreshTokenRepository()
	notifier := newMockNotifier()
	svc := newTestAuthService(userRepo, tokenRepo, notifier)

	resp, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "frank",
		Email:    "frank@example.com",
		Password: "Password1!",
		Segment:  "SEGMENT_B",
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if err := svc.Logout(context.Background(), resp.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if _, err := svc.Refresh(context.Background(), resp.RefreshToken); err != ErrTokenNotFound {
		t.Errorf("Refresh(after logout) error = %v, want %v", err, ErrTokenNotFound)
	}

	// Logging out twice is a no-op
	if err := svc.Logout(context.Background(), resp.RefreshToken); err != nil {
		t.Errorf("Logout(twice) error = %v", err)
	}
}

func TestAuthService_Delete(t *testing.T) {
	userRepo := newMockUserRepository()
	tokenRepo := newMockRefreshTokenRepository()
	notifier := newMockNotifier()
	svc := newTestAuthService(userRepo, tokenRepo, notifier)

	resp, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "grace",
		Email:    "grace@example.com",
		Password: "Password1!",
		Segment:  "SEGMENT_A",
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	t.Run("delete by username", func(t *testing.T) {
		if err := svc.DeleteByUsername(context.Background(), "grace"); err != nil {
			t.Fatalf("DeleteByUsername() error = %v", err)
		}
		if userRepo.usernameIndex["grace"] != nil {
			t.Error("DeleteByUsername() left the user behind")
		}
		if tokenRepo.countForUser(resp.User.ID) != 0 {
			t.Error("DeleteByUsername() left refresh tokens behind")
		}
	})

	t.Run("delete missing user", func(t *testing.T) {
		if err := svc.DeleteByUsername(context.Background(), "grace"); err != ErrUserNotFound {
			t.Errorf("DeleteByUsername() error = %v, want %v", err, ErrUserNotFound)
		}
	})

	t.Run("delete by email", func(t *testing.T) {
		if _, err := svc.Register(context.Background(), &dto.RegisterRequest{
			Username: "heidi",
			Email:    "heidi@example.com",
			Password: "Password1!",
			Segment:  "SEGMENT_B",
		}); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}

		if err := svc.DeleteByEmail(context.Background(), "heidi@example.com"); err != nil {
			t.Fatalf("DeleteByEmail() error = %v", err)
		}
		if err := svc.DeleteByEmail(context.Background(), "heidi@example.com"); err != ErrUserNotFound {
			t.Errorf("DeleteByEmail() error = %v, want %v", err, ErrUserNotFound)
		}
	})
}
