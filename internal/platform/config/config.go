package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration for the identity engine.
type Config struct {
	Addr          string
	PostgresDSN   string
	Redis         RedisConfig
	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration

	// MergeSessionTTL bounds how long a "multiple accounts found" response
	// stays actionable. ResetCodeTTL bounds password reset codes.
	MergeSessionTTL time.Duration
	ResetCodeTTL    time.Duration
}

// RedisConfig captures Redis connection settings. An empty URL means Redis is
// not configured and in-memory stores are used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:          envOr("MARINER_ADDR", ":8080"),
		PostgresDSN:   envOr("MARINER_POSTGRES_DSN", ""),
		JWTSigningKey: envOr("MARINER_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("MARINER_JWT_ISSUER", "mariner"),
		TokenTTL:      envDurationOr("MARINER_TOKEN_TTL", 24*time.Hour),

		MergeSessionTTL: envDurationOr("MARINER_MERGE_SESSION_TTL", 30*time.Minute),
		ResetCodeTTL:    envDurationOr("MARINER_RESET_CODE_TTL", 15*time.Minute),

		Redis: RedisConfig{
			URL:          envOr("MARINER_REDIS_URL", ""),
			PoolSize:     envIntOr("MARINER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("MARINER_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("MARINER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("MARINER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("MARINER_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
