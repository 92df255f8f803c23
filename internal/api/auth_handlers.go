package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/librarium/librarium-server/internal/domain"
	"github.com/librarium/librarium-server/internal/service"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "createUser",
		Method:      http.MethodPost,
		Path:        "/api/v1/users",
		Summary:     "Create user",
		Description: "Registers a new account. Reachable without a token.",
		Tags:        []string{"Authentication"},
	}, s.handleCreateUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "User login",
		Description: "Authenticates a user and returns a signed access token",
		Tags:        []string{"Authentication"},
	}, s.handleLogin)
}

// === DTOs ===

// UserResponse contains user data in API responses.
// The password hash never appears here.
type UserResponse struct {
	ID            string    `json:"id" doc:"User ID"`
	Username      string    `json:"username" doc:"Username"`
	FavoriteGenre string    `json:"favorite_genre,omitempty" doc:"Favorite genre"`
	CreatedAt     time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt     time.Time `json:"updated_at" doc:"Last update time"`
}

// CreateUserRequest is the request body for creating a user.
type CreateUserRequest struct {
	Username      string `json:"username" validate:"required,min=3,max=64" doc:"Unique username"`
	Password      string `json:"password" validate:"required,min=8,max=1024" doc:"Password"`
	FavoriteGenre string `json:"favorite_genre,omitempty" validate:"omitempty,max=100" doc:"Favorite genre"`
}

// CreateUserInput wraps the create user request for Huma.
type CreateUserInput struct {
	Body          CreateUserRequest
	XForwardedFor string `header:"X-Forwarded-For"`
	XRealIP       string `header:"X-Real-IP"`
}

// UserOutput wraps the user response for Huma.
type UserOutput struct {
	Body UserResponse
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Username string `json:"username" validate:"required" doc:"Username"`
	Password string `json:"password" validate:"required,max=1024" doc:"Password"`
}

// LoginInput wraps the login request with headers for Huma.
type LoginInput struct {
	Body          LoginRequest
	XForwardedFor string `header:"X-Forwarded-For"`
	XRealIP       string `header:"X-Real-IP"`
}

// LoginResponse contains the issued token and user info.
type LoginResponse struct {
	Token     string       `json:"token" doc:"PASETO access token"`
	TokenType string       `json:"token_type" doc:"Token type (Bearer)"`
	User      UserResponse `json:"user" doc:"Authenticated user"`
}

// LoginOutput wraps the login response for Huma.
type LoginOutput struct {
	Body LoginResponse
}

// === Handlers ===

func (s *Server) handleCreateUser(ctx context.Context, input *CreateUserInput) (*UserOutput, error) {
	ip := clientIP(input.XForwardedFor, input.XRealIP, "")
	if err := s.checkRateLimit(ip, "/api/v1/users"); err != nil {
		return nil, err
	}

	user, err := s.services.Auth.CreateUser(ctx, service.CreateUserRequest{
		Username:      input.Body.Username,
		Password:      input.Body.Password,
		FavoriteGenre: input.Body.FavoriteGenre,
	})
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: toUserResponse(user)}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
	ip := clientIP(input.XForwardedFor, input.XRealIP, "")
	if err := s.checkRateLimit(ip, "/api/v1/auth/login"); err != nil {
		return nil, err
	}

	resp, err := s.services.Auth.Login(ctx, service.LoginRequest{
		Username: input.Body.Username,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}

	return &LoginOutput{
		Body: LoginResponse{
			Token:     resp.Token,
			TokenType: "Bearer",
			User:      toUserResponse(resp.User),
		},
	}, nil
}

// toUserResponse converts a domain user to its API representation.
func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		FavoriteGenre: u.FavoriteGenre,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
