package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	// Server
	Host        string
	Port        string
	Environment string
	LogLevel    string

	// Redis — the only broker this server talks to, required in every
	// environment (spec.md §6).
	RedisURL string

	// Security
	JWTSecret      []byte
	TokenDuration  time.Duration
	AllowedOrigins []string // CORS allowed origins (empty = allow all in dev)

	// MailboxCapacity bounds every connection/agent/channel mailbox (spec.md
	// §3/§5). Default 100.
	MailboxCapacity int
}

// Load reads configuration from environment variables, loading a .env file
// first if one is present. redisURLOverride, when non-empty, takes priority
// over REDIS_URL and is considered before the required check runs, so a
// caller-supplied --redis-url flag can satisfy the requirement on its own
// (spec.md §6).
func Load(redisURLOverride string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	cfg := &Config{
		Host:            getEnv("HOST", "127.0.0.1"),
		Port:            getEnv("PORT", "5000"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RedisURL:        getEnv("REDIS_URL", ""),
		TokenDuration:   time.Duration(getEnvInt("TOKEN_DURATION_HOURS", 720)) * time.Hour,
		MailboxCapacity: getEnvInt("MAILBOX_CAPACITY", 100),
	}
	if redisURLOverride != "" {
		cfg.RedisURL = redisURLOverride
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production - generate with: openssl rand -base64 32")
		}
		jwtSecret = "INSECURE_DEV_SECRET_CHANGE_IN_PRODUCTION"
		log.Println("WARNING: using insecure default JWT secret. Set JWT_SECRET in production!")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	cfg.JWTSecret = []byte(jwtSecret)

	corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if corsOrigins != "" {
		cfg.AllowedOrigins = strings.Split(corsOrigins, ",")
		for i, origin := range cfg.AllowedOrigins {
			cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
		}
	} else if cfg.Environment == "production" {
		return nil, fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production (comma-separated list)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
