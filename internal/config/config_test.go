package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOST", "PORT", "ENVIRONMENT", "LOG_LEVEL", "REDIS_URL",
		"JWT_SECRET", "TOKEN_DURATION_HOURS", "MAILBOX_CAPACITY",
		"CORS_ALLOWED_ORIGINS",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadRequiresRedisURL(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoadRedisURLOverrideSatisfiesRequirement(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("redis://localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	defer os.Unsetenv("REDIS_URL")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, 100, cfg.MailboxCapacity)
}

func TestLoadRejectsProductionWithoutJWTSecret(t *testing.T) {
	clearEnv(t)
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("ENVIRONMENT", "production")
	defer clearEnv(t)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadParsesCORSOrigins(t *testing.T) {
	clearEnv(t)
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	defer clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
