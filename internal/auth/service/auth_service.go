package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zainab-hr/ProjetProduits/internal/auth/domain"
	"github.com/zainab-hr/ProjetProduits/internal/auth/dto"
	"github.com/zainab-hr/ProjetProduits/internal/auth/repository"
	"github.com/zainab-hr/ProjetProduits/internal/auth/sync"
	"github.com/zainab-hr/ProjetProduits/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnknownSegment     = errors.New("unknown segment")
)

// AuthServiceConfig holds configuration for AuthService
type AuthServiceConfig struct {
	BcryptCost int
}

// AuthService orchestrates registration, login, token rotation, logout and
// account deletion
type AuthService interface {
	// Register creates a new user, replicates it to its segment store
	// (best-effort) and returns a token pair
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error)
	// Login authenticates a user and returns a fresh token pair
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error)
	// Refresh rotates a refresh token into a new token pair
	Refresh(ctx context.Context, refreshToken string) (*dto.AuthResponse, error)
	// Logout revokes a refresh token (idempotent)
	Logout(ctx context.Context, refreshToken string) error
	// DeleteByUsername removes a user and all of its refresh tokens
	DeleteByUsername(ctx context.Context, username string) error
	// DeleteByEmail removes a user and all of its refresh tokens
	DeleteByEmail(ctx context.Context, email string) error
}

// authService implements AuthService
type authService struct {
	userRepo     repository.UserRepository
	refreshStore *RefreshTokenStore
	tokens       TokenService
	notifier     sync.Notifier
	config       *AuthServiceConfig
}

// NewAuthService creates a new AuthService
func NewAuthService(
	userRepo repository.UserRepository,
	refreshStore *RefreshTokenStore,
	tokens TokenService,
	notifier sync.Notifier,
	config *AuthServiceConfig,
) AuthService {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &authService{
		userRepo:     userRepo,
		refreshStore: refreshStore,
		tokens:       tokens,
		notifier:     notifier,
		config:       config,
	}
}

// Register creates a new user. The username check runs before the email
// check, so when both collide only the username conflict is reported. The
// replication step is best-effort and can never fail registration.
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.register")
	defer span.End()

	span.SetAttributes(attribute.String("username", req.Username))

	// An unknown tag would persist a user no profile store ever receives,
	// and the segment is immutable after registration.
	segment, ok := domain.ParseSegment(req.Segment)
	if !ok {
		span.SetStatus(codes.Error, "unknown segment")
		return nil, ErrUnknownSegment
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if exists {
		span.SetStatus(codes.Error, "username already exists")
		return nil, ErrUsernameTaken
	}

	exists, err = s.userRepo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if exists {
		span.SetStatus(codes.Error, "email already exists")
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		Role:         domain.RoleUser,
		Segment:      segment,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Best-effort replica in the segment profile store; the notifier logs
	// and swallows every failure and registration never waits on it. The
	// detached context outlives this request; the notifier bounds it with
	// its own timeout.
	go s.notifier.Propagate(context.WithoutCancel(ctx), user.Username, user.Email, string(user.Segment))

	resp, err := s.issueTokenPair(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Login authenticates by username and password. Unknown username, wrong
// password and disabled account all collapse to ErrInvalidCredentials so
// the response never reveals which one happened.
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.login")
	defer span.End()

	span.SetAttributes(attribute.String("username", req.Username))

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if user == nil {
		span.SetStatus(codes.Error, "invalid credentials")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		span.SetStatus(codes.Error, "invalid credentials")
		return nil, ErrInvalidCredentials
	}

	if !user.Enabled {
		span.SetStatus(codes.Error, "invalid credentials")
		return nil, ErrInvalidCredentials
	}

	resp, err := s.issueTokenPair(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Refresh rotates a refresh token. Redeeming an expired token deletes it,
// so a second attempt with the same string reports not-found.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.AuthResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.refresh")
	defer span.End()

	userID, err := s.refreshStore.Redeem(ctx, refreshToken)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("user_id", userID))

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if user == nil {
		span.SetStatus(codes.Error, "owning user no longer exists")
		return nil, ErrTokenNotFound
	}

	// issueTokenPair revokes every token for the user before inserting the
	// replacement, which closes the replay window on the redeemed token
	resp, err := s.issueTokenPair(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Logout revokes the refresh token; revoking an absent token is a no-op
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.logout")
	defer span.End()

	if err := s.refreshStore.Revoke(ctx, refreshToken); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// DeleteByUsername deletes the user and cascades to its refresh tokens
func (s *authService) DeleteByUsername(ctx context.Context, username string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.delete_by_username")
	defer span.End()

	span.SetAttributes(attribute.String("username", username))

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return s.deleteUser(ctx, span, user)
}

// DeleteByEmail deletes the user and cascades to its refresh tokens
func (s *authService) DeleteByEmail(ctx context.Context, email string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.delete_by_email")
	defer span.End()

	span.SetAttributes(attribute.String("email", email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return s.deleteUser(ctx, span, user)
}

func (s *authService) deleteUser(ctx context.Context, span trace.Span, user *domain.User) error {
	if user == nil {
		span.SetStatus(codes.Error, "user not found")
		return ErrUserNotFound
	}

	if err := s.refreshStore.RevokeAllFor(ctx, user.ID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.userRepo.Delete(ctx, user.ID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// issueTokenPair mints an access token and rotates in a fresh refresh token
func (s *authService) issueTokenPair(ctx context.Context, user *domain.User) (*dto.AuthResponse, error) {
	accessToken, err := s.tokens.Issue(user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	refreshToken, _, err := s.refreshStore.IssueFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.tokens.RemainingLifetimeSeconds(),
		User: dto.UserResponse{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     string(user.Role),
			Segment:  string(user.Segment),
		},
	}, nil
}
