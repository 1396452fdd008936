package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate-go/internal/model"
)

func TestMemoryCreateAndFind(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user := &model.User{FirstName: "A", LastName: "B", Email: "a@b.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, user))
	require.NotEmpty(t, user.ID)
	require.False(t, user.CreatedAt.IsZero())

	byEmail, err := repo.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, *user, *byEmail)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, *user, *byID)
}

func TestMemoryNotFound(t *testing.T) {
	repo := NewMemoryUserRepository()

	_, err := repo.FindByEmail(context.Background(), "missing@b.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryDuplicateEmail(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.User{Email: "a@b.com"}))
	err := repo.Create(ctx, &model.User{Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMemoryConcurrentCreateSameEmail(t *testing.T) {
	repo := NewMemoryUserRepository()

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Create(context.Background(), &model.User{Email: "race@b.com"}); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user := &model.User{FirstName: "A", Email: "a@b.com"}
	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	got.FirstName = "mutated"

	again, err := repo.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "A", again.FirstName)
}
