package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/authgate/authgate-go/internal/config"
	"github.com/authgate/authgate-go/internal/crypto"
	"github.com/authgate/authgate-go/internal/handler"
	"github.com/authgate/authgate-go/internal/repository"
	"github.com/authgate/authgate-go/internal/service"
	"github.com/authgate/authgate-go/internal/session"
	"github.com/authgate/authgate-go/internal/throttle"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg))

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
		slog.Warn("JWT_SECRET_KEY not set, using a random secret; sessions will not survive a restart")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	repo, closeStore, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("store unavailable", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	limiter, closeLimiter, err := openLoginLimiter(cfg)
	if err != nil {
		slog.Error("login throttle unavailable", "error", err)
		os.Exit(1)
	}
	defer closeLimiter()

	hasher, err := crypto.NewHasher(cfg.HashScheme)
	if err != nil {
		slog.Error("password hasher", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	defer close(done)

	router := handler.NewRouter(handler.RouterConfig{
		Auth:           service.NewAuthService(repo, hasher, cfg.JWTSecret, cfg.JWTExpiry),
		Cookies:        session.Cookies{Secure: cfg.IsProduction(), MaxAge: cfg.JWTExpiry},
		LoginLimiter:   limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Done:           done,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openStore connects the configured user store and returns a func that
// releases it.
func openStore(ctx context.Context, cfg config.Config) (repository.UserRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := repository.NewMongoClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoUserRepository(client.Database(cfg.DatabaseName))
		if err := repo.EnsureIndexes(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() { client.Disconnect(context.Background()) }, nil

	case config.DriverMySQL:
		db, err := repository.NewMySQL(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewMySQLUserRepository(db), func() { db.Close() }, nil

	case config.DriverValkey:
		client, err := repository.NewValkeyClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewValkeyUserRepository(client), client.Close, nil

	case config.DriverMemory:
		slog.Warn("using in-memory store; users are lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openLoginLimiter(cfg config.Config) (throttle.Limiter, func(), error) {
	policy := throttle.Policy{
		MaxAttempts: cfg.LoginMaxAttempts,
		Window:      cfg.LoginWindow,
		Lock:        cfg.LoginLock,
	}

	if strings.TrimSpace(cfg.ThrottleRedisURL) == "" {
		return throttle.NewMemory(policy), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := throttle.NewRedisClient(ctx, cfg.ThrottleRedisURL)
	if err != nil {
		return nil, nil, err
	}
	return throttle.NewRedis(rdb, policy), func() { rdb.Close() }, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
