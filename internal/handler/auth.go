package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/authgate/authgate-go/internal/middleware"
	"github.com/authgate/authgate-go/internal/model"
	"github.com/authgate/authgate-go/internal/service"
	"github.com/authgate/authgate-go/internal/session"
	"github.com/authgate/authgate-go/internal/throttle"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
	cookies session.Cookies
	limiter throttle.Limiter
}

// NewAuthHandler creates a new AuthHandler. limiter guards the login route
// against password guessing.
func NewAuthHandler(svc *service.AuthService, cookies session.Cookies, limiter throttle.Limiter) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, limiter: limiter}
}

// HandleRegister handles POST /api/auth/register and POST /api/users/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			writeValidationError(w, verr.Fields)
		case errors.Is(err, service.ErrUserExists):
			respond(w, http.StatusBadRequest, "User already exists")
		default:
			slog.Error("register user", "error", err)
			respond(w, http.StatusInternalServerError, "An error occurred while saving the user")
		}
		return
	}

	http.SetCookie(w, h.cookies.Issue(res.Token))
	respond(w, http.StatusCreated, "User registered successfully")
}

// HandleLogin handles POST /api/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := middleware.ClientIP(r)
	if locked, err := h.limiter.Check(r.Context(), key); err != nil {
		slog.Warn("login throttle check failed", "error", err)
	} else if locked > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(locked.Seconds()))))
		respond(w, http.StatusTooManyRequests, "Too many failed login attempts, please try again later")
		return
	}

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			writeValidationError(w, verr.Fields)
		case errors.Is(err, service.ErrUserNotFound):
			h.recordFailure(r, key)
			respond(w, http.StatusBadRequest, "User not found")
		case errors.Is(err, service.ErrInvalidCredentials):
			h.recordFailure(r, key)
			respond(w, http.StatusBadRequest, "Invalid Credentials")
		default:
			slog.Error("login", "error", err)
			respond(w, http.StatusInternalServerError, "Login error: something went wrong")
		}
		return
	}

	if err := h.limiter.Reset(r.Context(), key); err != nil {
		slog.Warn("login throttle reset failed", "error", err)
	}

	http.SetCookie(w, h.cookies.Issue(res.Token))
	writeJSON(w, http.StatusOK, model.Response{
		Success: true,
		Message: "User logged in successfully",
		UserID:  res.UserID,
	})
}

func (h *AuthHandler) recordFailure(r *http.Request, key string) {
	left, err := h.limiter.Fail(r.Context(), key)
	if err != nil {
		slog.Warn("login throttle update failed", "error", err)
		return
	}
	if left == 0 {
		slog.Warn("login locked", "remote", key)
	}
}

// HandleLogout handles POST /api/auth/logout. It needs no session and
// always succeeds.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	res := h.service.Logout()
	http.SetCookie(w, h.cookies.Clear())
	respond(w, http.StatusOK, res.Message)
}

// HandleValidateToken handles GET /api/auth/validate-token behind CookieAuth.
func (h *AuthHandler) HandleValidateToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, model.Response{
		Success: true,
		Message: "Token is valid",
		UserID:  userID,
	})
}
