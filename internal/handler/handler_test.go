package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgate/authgate-go/internal/crypto"
	"github.com/authgate/authgate-go/internal/model"
	"github.com/authgate/authgate-go/internal/repository"
	"github.com/authgate/authgate-go/internal/service"
	"github.com/authgate/authgate-go/internal/session"
	"github.com/authgate/authgate-go/internal/throttle"
)

const testSecret = "handler-test-secret"

type testServer struct {
	handler http.Handler
	repo    repository.UserRepository
}

func newTestServer(t *testing.T, repo repository.UserRepository) *testServer {
	t.Helper()
	if repo == nil {
		repo = repository.NewMemoryUserRepository()
	}
	hasher, err := crypto.NewHasher(crypto.SchemeBcrypt, crypto.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	h := NewRouter(RouterConfig{
		Auth:           service.NewAuthService(repo, hasher, testSecret, 24*time.Hour),
		Cookies:        session.Cookies{Secure: true},
		LoginLimiter:   throttle.NewMemory(throttle.Policy{MaxAttempts: 3, Window: time.Minute, Lock: time.Minute}),
		AllowedOrigins: []string{"http://localhost:5173"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Done:           done,
	})
	return &testServer{handler: h, repo: repo}
}

func (s *testServer) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", session.CookieName)
	return nil
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) model.Response {
	t.Helper()
	var resp model.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

const registerBody = `{"firstName":"A","lastName":"B","email":"a@b.com","password":"secret1"}`

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "User registered successfully", resp.Message)

	regCookie := sessionCookie(t, rec)
	assert.NotEmpty(t, regCookie.Value)
	assert.True(t, regCookie.HttpOnly)
	assert.True(t, regCookie.Secure)
	assert.Equal(t, 86400, regCookie.MaxAge)

	user, err := srv.repo.FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	rec = srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	loginCookie := sessionCookie(t, rec)
	resp = decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "User logged in successfully", resp.Message)
	assert.Equal(t, user.ID, resp.UserID)

	rec = srv.do(http.MethodGet, "/api/auth/validate-token", "", loginCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, decodeResponse(t, rec).UserID)

	rec = srv.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	rec = srv.do(http.MethodGet, "/api/auth/validate-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeResponse(t, rec).Message)
}

func TestRegisterDuplicate(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/auth/register", registerBody).Code)

	rec := srv.do(http.MethodPost, "/api/users/register", registerBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "User already exists", resp.Message)
	assert.Empty(t, rec.Result().Cookies())
}

func TestUsersRegisterRoute(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/users/register", registerBody)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, sessionCookie(t, rec).Value)
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/auth/register", `{"firstName":"","lastName":"B","email":"nope","password":"123"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, []model.FieldError{
		{Field: "firstName", Message: "Firstname is required"},
		{Field: "email", Message: "a valid email is required"},
		{Field: "password", Message: "Password must be at least 6 characters long"},
	}, resp.Errors)
}

func TestMalformedBody(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/auth/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeResponse(t, rec).Message)

	big := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec = srv.do(http.MethodPost, "/api/auth/login", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLoginFailures(t *testing.T) {
	srv := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/auth/register", registerBody).Code)

	rec := srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"wrong-pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid Credentials", decodeResponse(t, rec).Message)
	assert.Empty(t, rec.Result().Cookies())

	rec = srv.do(http.MethodPost, "/api/auth/login", `{"email":"who@b.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User not found", decodeResponse(t, rec).Message)
}

func TestLoginLockout(t *testing.T) {
	srv := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/auth/register", registerBody).Code)

	for i := 0; i < 3; i++ {
		rec := srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"wrong-pw"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	srv := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/auth/register", registerBody).Code)

	for i := 0; i < 2; i++ {
		srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"wrong-pw"}`)
	}
	require.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret1"}`).Code)

	for i := 0; i < 2; i++ {
		srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"wrong-pw"}`)
	}
	assert.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret1"}`).Code)
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	srv := newTestServer(t, nil)

	forged, err := crypto.GenerateToken("u1", "some-other-secret", time.Hour)
	require.NoError(t, err)

	rec := srv.do(http.MethodGet, "/api/auth/validate-token", "", &http.Cookie{Name: session.CookieName, Value: forged})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", decodeResponse(t, rec).Message)
}

func TestLogoutWithoutSession(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/auth/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "User logged out successfully", resp.Message)
}

func TestMe(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	cookie := sessionCookie(t, rec)

	rec = srv.do(http.MethodGet, "/api/users/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var me model.UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "a@b.com", me.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	ghost, err := crypto.GenerateToken("ghost", testSecret, time.Hour)
	require.NoError(t, err)
	rec = srv.do(http.MethodGet, "/api/users/me", "", &http.Cookie{Name: session.CookieName, Value: ghost})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type brokenRepo struct{}

var errStoreDown = errors.New("store down")

func (brokenRepo) FindByEmail(context.Context, string) (*model.User, error) { return nil, errStoreDown }
func (brokenRepo) FindByID(context.Context, string) (*model.User, error)    { return nil, errStoreDown }
func (brokenRepo) Create(context.Context, *model.User) error                { return errStoreDown }

func TestStoreFailuresAreHidden(t *testing.T) {
	srv := newTestServer(t, brokenRepo{})

	rec := srv.do(http.MethodPost, "/api/auth/register", registerBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An error occurred while saving the user", decodeResponse(t, rec).Message)

	rec = srv.do(http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Login error: something went wrong", decodeResponse(t, rec).Message)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
