package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/authgate/authgate-go/internal/model"
)

// NewValkeyClient builds a client from a redis:// or rediss:// URL and
// checks the server answers PING.
func NewValkeyClient(ctx context.Context, url string) (valkey.Client, error) {
	opt, err := valkey.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, err
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}

	return client, nil
}

func userKey(email string) string { return "user:" + email }

func userIDKey(id string) string { return "userid:" + id }

// valkeyUser is the JSON document stored under user:<email>.
type valkeyUser struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ValkeyUserRepository stores each user as a JSON document keyed by email,
// plus a userid:<id> -> email index for lookups by id.
type ValkeyUserRepository struct {
	client valkey.Client
}

// NewValkeyUserRepository creates a new ValkeyUserRepository.
func NewValkeyUserRepository(client valkey.Client) *ValkeyUserRepository {
	return &ValkeyUserRepository{client: client}
}

// Create writes the user document with SET NX, so a concurrent registration
// for the same email loses with ErrDuplicateEmail. The id index is written
// first: an email is never claimed without a way to find it by id.
func (r *ValkeyUserRepository) Create(ctx context.Context, user *model.User) error {
	doc := valkeyUser{
		ID:           uuid.NewString(),
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	if err := r.client.Do(ctx, r.client.B().Set().Key(userIDKey(doc.ID)).Value(doc.Email).Build()).Error(); err != nil {
		return fmt.Errorf("index user id: %w", err)
	}

	err = r.client.Do(ctx, r.client.B().Set().Key(userKey(doc.Email)).Value(string(raw)).Nx().Build()).Error()
	if err != nil {
		r.client.Do(context.WithoutCancel(ctx), r.client.B().Del().Key(userIDKey(doc.ID)).Build())
		if valkey.IsValkeyNil(err) {
			return ErrDuplicateEmail
		}
		return err
	}

	user.ID = doc.ID
	user.CreatedAt = doc.CreatedAt
	return nil
}

func (r *ValkeyUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	raw, err := r.client.Do(ctx, r.client.B().Get().Key(userKey(email)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return decodeValkeyUser(raw)
}

func (r *ValkeyUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	email, err := r.client.Do(ctx, r.client.B().Get().Key(userIDKey(id)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return r.FindByEmail(ctx, email)
}

func decodeValkeyUser(raw string) (*model.User, error) {
	var doc valkeyUser
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}
	return &model.User{
		ID:           doc.ID,
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}, nil
}
