package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.UsesMemoryStore())
	assert.Equal(t, int64(60), cfg.RateLimitLimit)
	assert.Equal(t, time.Minute, cfg.RateLimitPeriod)
	assert.Equal(t, 5.0, cfg.WSActionsPerSecond)
	assert.Equal(t, 10, cfg.WSActionBurst)
	assert.Equal(t, int64(4), cfg.AIMaxConcurrent)
	assert.Equal(t, 90*time.Second, cfg.AITimeout)
	assert.Equal(t, 24*time.Hour, cfg.SessionPendingTTL)
	assert.Equal(t, 72*time.Hour, cfg.SessionEvidenceTTL)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoad_PlatformDatabaseVariables(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "db")
	t.Setenv("POSTGRESQL_USER", "court")
	t.Setenv("POSTGRESQL_PASSWORD", "p@ss")
	t.Setenv("POSTGRESQL_DBNAME", "kittycourt")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.UsesMemoryStore())
	assert.Equal(t, "postgres://court:p%40ss@db:5432/kittycourt?sslmode=disable", cfg.DatabaseURL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SESSION_PENDING_TTL", "tomorrow")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_PENDING_TTL")
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_SplitsOrigins(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
