package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/authgate/authgate-go/internal/middleware"
	"github.com/authgate/authgate-go/internal/service"
	"github.com/authgate/authgate-go/internal/session"
	"github.com/authgate/authgate-go/internal/throttle"
)

// RouterConfig holds everything the HTTP surface needs.
type RouterConfig struct {
	Auth           *service.AuthService
	Cookies        session.Cookies
	LoginLimiter   throttle.Limiter
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	// Done stops background cleanup when closed.
	Done <-chan struct{}
}

// NewRouter wires the middleware stack and all routes.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth, cfg.Cookies, cfg.LoginLimiter)
	userHandler := NewUserHandler(cfg.Auth)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	limit := middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Done)
	requireSession := middleware.CookieAuth(cfg.Auth)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(limit).Post("/register", authHandler.HandleRegister)
		r.With(limit).Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.With(requireSession).Get("/validate-token", authHandler.HandleValidateToken)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.With(limit).Post("/register", authHandler.HandleRegister)
		r.With(requireSession).Get("/me", userHandler.HandleMe)
	})

	return r
}
