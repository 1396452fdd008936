package repository

import (
	"context"
	"errors"

	"github.com/authgate/authgate-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserRepository is the credential store. Users are append-only: there is no
// update or delete.
type UserRepository interface {
	// FindByEmail returns ErrUserNotFound when no user has the email.
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByID returns ErrUserNotFound when the id is unknown or malformed.
	FindByID(ctx context.Context, id string) (*model.User, error)
	// Create assigns ID and CreatedAt on user. It returns ErrDuplicateEmail
	// when the backend already holds the email.
	Create(ctx context.Context, user *model.User) error
}
