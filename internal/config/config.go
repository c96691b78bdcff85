package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the revocation registry backend settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TokenConfig holds signing and lifetime settings for both token tiers.
type TokenConfig struct {
	Secret         string
	Issuer         string
	GatewayTTL     time.Duration
	OperationalTTL time.Duration
	RefreshTTL     time.Duration
}

// LockoutConfig controls failed-login throttling for operators.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
}

// Config aggregates all service configuration.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Token    TokenConfig
	Lockout  LockoutConfig
	LogLevel string
}

// Load reads configuration from the environment. A .env file is honored
// when present but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("E7GEZLY_ADDR", ":8080"),
			ShutdownTimeout: getDuration("E7GEZLY_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: DBConfig{
			DSN:             os.Getenv("E7GEZLY_PG_DSN"),
			MaxOpenConns:    getInt("E7GEZLY_PG_MAX_OPEN", 50),
			MaxIdleConns:    getInt("E7GEZLY_PG_MAX_IDLE", 25),
			ConnMaxLifetime: getDuration("E7GEZLY_PG_CONN_LIFETIME", 15*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("E7GEZLY_REDIS_ADDR"),
			Password: os.Getenv("E7GEZLY_REDIS_PASSWORD"),
			DB:       getInt("E7GEZLY_REDIS_DB", 0),
		},
		Token: TokenConfig{
			Secret:         os.Getenv("E7GEZLY_AUTH_SECRET"),
			Issuer:         getEnv("E7GEZLY_TOKEN_ISSUER", "e7gezly"),
			GatewayTTL:     getDuration("E7GEZLY_GATEWAY_TOKEN_TTL", 12*time.Hour),
			OperationalTTL: getDuration("E7GEZLY_OPERATIONAL_TOKEN_TTL", 30*time.Minute),
			RefreshTTL:     getDuration("E7GEZLY_REFRESH_TOKEN_TTL", 14*24*time.Hour),
		},
		Lockout: LockoutConfig{
			Threshold: getInt("E7GEZLY_LOCKOUT_THRESHOLD", 3),
			Window:    getDuration("E7GEZLY_LOCKOUT_WINDOW", 15*time.Minute),
		},
		LogLevel: getEnv("E7GEZLY_LOG_LEVEL", "info"),
	}

	if cfg.Token.Secret == "" {
		return nil, fmt.Errorf("E7GEZLY_AUTH_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
