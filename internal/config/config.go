package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/authgate/authgate-go/internal/crypto"
)

const (
	DriverMongo  = "mongo"
	DriverMySQL  = "mysql"
	DriverValkey = "valkey"
	DriverMemory = "memory"

	envProduction = "production"
)

var (
	ErrSecretRequired      = errors.New("JWT_SECRET_KEY must be set in production environment")
	ErrDatabaseURLRequired = errors.New("DATABASE_URL is required for the selected store driver")
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreDriver  string
	DatabaseURL  string
	DatabaseName string

	JWTSecret  string
	JWTExpiry  time.Duration
	HashScheme string

	AllowedOrigins []string

	RateLimitRPS   float64
	RateLimitBurst int

	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginLock        time.Duration
	ThrottleRedisURL string
}

// Load builds a Config from the process environment. Callers are expected to
// have loaded any .env file beforehand.
func Load() (Config, error) {
	cfg := Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		DatabaseURL:  getEnv("DATABASE_URL", os.Getenv("MONGO_URL")),
		DatabaseName: getEnv("DATABASE_NAME", "authgate"),

		JWTSecret:  os.Getenv("JWT_SECRET_KEY"),
		JWTExpiry:  getEnvAsDuration("JWT_EXPIRY", 24*time.Hour),
		HashScheme: strings.ToLower(getEnv("PASSWORD_HASH_SCHEME", crypto.SchemeArgon2id)),

		AllowedOrigins: splitList(getEnv("FRONTEND_URL", "http://localhost:5173")),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),

		LoginMaxAttempts: getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:      getEnvAsDuration("LOGIN_WINDOW", 15*time.Minute),
		LoginLock:        getEnvAsDuration("LOGIN_LOCK", 10*time.Minute),
		ThrottleRedisURL: os.Getenv("THROTTLE_REDIS_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings that cannot be defaulted safely.
func (c Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return ErrSecretRequired
	}

	switch c.StoreDriver {
	case DriverMongo, DriverMySQL, DriverValkey:
		if c.DatabaseURL == "" {
			return ErrDatabaseURLRequired
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.HashScheme {
	case crypto.SchemeArgon2id, crypto.SchemeBcrypt:
	default:
		return fmt.Errorf("unknown PASSWORD_HASH_SCHEME %q", c.HashScheme)
	}

	if c.JWTExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive, got %s", c.JWTExpiry)
	}
	if c.LoginMaxAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be at least 1, got %d", c.LoginMaxAttempts)
	}

	return nil
}

// IsProduction reports whether cookies must carry the Secure attribute.
func (c Config) IsProduction() bool {
	return c.Env == envProduction
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
