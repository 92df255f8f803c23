package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/librarium/librarium-server/internal/auth"
	"github.com/librarium/librarium-server/internal/domain"
	domainerrors "github.com/librarium/librarium-server/internal/errors"
	"github.com/librarium/librarium-server/internal/id"
	"github.com/librarium/librarium-server/internal/store"
	"github.com/librarium/librarium-server/internal/validation"
)

// AuthService handles account creation, login, and token verification.
type AuthService struct {
	store        *store.Store
	tokenService *auth.TokenService
	validator    *validation.Validator
	logger       *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(s *store.Store, tokenService *auth.TokenService, validator *validation.Validator, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:        s,
		tokenService: tokenService,
		validator:    validator,
		logger:       logger,
	}
}

// CreateUserRequest contains user registration data.
type CreateUserRequest struct {
	Username      string `json:"username" validate:"required,min=3,max=64"`
	Password      string `json:"password" validate:"required,min=8,max=1024"`
	FavoriteGenre string `json:"favorite_genre" validate:"max=100"`
}

// LoginRequest contains user credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the issued access token and the authenticated user.
type LoginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// CreateUser registers a new account. This is deliberately reachable
// without a token: account creation must work for first-time users.
func (s *AuthService) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := id.Generate("user")
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	user := &domain.User{
		Username:      req.Username,
		PasswordHash:  passwordHash,
		FavoriteGenre: req.FavoriteGenre,
	}
	user.ID = userID
	user.InitTimestamps()

	if err := s.store.Users.Create(ctx, userID, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.Validation("username already taken").
				WithDetails(map[string]string{"username": req.Username})
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user created",
		slog.String("user_id", userID),
		slog.String("username", user.Username))

	created := *user
	created.PasswordHash = ""
	return &created, nil
}

// Login authenticates a user and issues a signed access token.
//
// Unknown usernames and wrong passwords fail with the same
// InvalidCredentials error so the endpoint can't be used to enumerate
// accounts.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.store.Users.GetByIndex(ctx, "username", req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same argon2 work as the wrong-password path so
			// response timing does not reveal whether the account exists.
			auth.VerifyDummy(req.Password)
			return nil, domainerrors.InvalidCredentials("invalid username or password")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	valid, err := auth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, domainerrors.InvalidCredentials("invalid username or password")
	}

	token, err := s.tokenService.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username))

	authenticated := *user
	authenticated.PasswordHash = ""
	return &LoginResponse{
		Token: token,
		User:  &authenticated,
	}, nil
}

// VerifyAccessToken validates a token and resolves it to a live user.
// Used by the authentication middleware.
func (s *AuthService) VerifyAccessToken(ctx context.Context, tokenString string) (*domain.User, *auth.Claims, error) {
	claims, err := s.tokenService.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid token: %w", err)
	}

	user, err := s.store.Users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errors.New("user not found")
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	return user, claims, nil
}
