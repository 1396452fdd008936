package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/authgate/authgate-go/internal/crypto"
	"github.com/authgate/authgate-go/internal/model"
	"github.com/authgate/authgate-go/internal/repository"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("invalid token")
)

// RegisterResult is the stored user plus a session token bound to it.
type RegisterResult struct {
	User  model.User
	Token string
}

// LoginResult carries the authenticated user id and a fresh session token.
type LoginResult struct {
	UserID string
	Token  string
}

// LogoutResult acknowledges a logout. Nothing is recorded server-side.
type LogoutResult struct {
	Message string
}

// AuthService handles authentication business logic.
type AuthService struct {
	repo      repository.UserRepository
	hasher    *crypto.Hasher
	validate  *validator.Validate
	jwtSecret string
	jwtExpiry time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo repository.UserRepository, hasher *crypto.Hasher, secret string, expiry time.Duration) *AuthService {
	return &AuthService{
		repo:      repo,
		hasher:    hasher,
		validate:  newValidator(),
		jwtSecret: secret,
		jwtExpiry: expiry,
	}
}

// Register creates a new user account and returns a session token for it.
// The email lookup happens before the insert; the store's uniqueness
// guarantee catches registrations racing past the lookup.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (RegisterResult, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = normalizeEmail(req.Email)

	if err := s.validateRequest(req); err != nil {
		return RegisterResult{}, err
	}

	_, err := s.repo.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return RegisterResult{}, ErrUserExists
	case !errors.Is(err, repository.ErrUserNotFound):
		return RegisterResult{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return RegisterResult{}, &ValidationError{Fields: []model.FieldError{
				{Field: "password", Message: "Password is too long"},
			}}
		}
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return RegisterResult{}, ErrUserExists
		}
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	token, err := crypto.GenerateToken(user.ID, s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("sign token: %w", err)
	}

	return RegisterResult{User: user, Token: token}, nil
}

// Login checks the credentials and returns a session token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (LoginResult, error) {
	req.Email = normalizeEmail(req.Email)

	if err := s.validateRequest(req); err != nil {
		return LoginResult{}, err
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LoginResult{}, ErrUserNotFound
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	match, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := crypto.GenerateToken(user.ID, s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}

	return LoginResult{UserID: user.ID, Token: token}, nil
}

// Verify returns the user id embedded in token. It trusts the claim for the
// token's lifetime and does not check that the user still exists.
func (s *AuthService) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}

	claims, err := crypto.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}

// Logout always succeeds; the caller clears the session cookie.
func (s *AuthService) Logout() LogoutResult {
	return LogoutResult{Message: "User logged out successfully"}
}

// GetUser retrieves a user by ID and returns safe user data.
func (s *AuthService) GetUser(ctx context.Context, userID string) (model.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUserNotFound
		}
		return model.UserResponse{}, err
	}

	return model.UserResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, nil
}
