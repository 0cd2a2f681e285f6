package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("SUMMARY_MODE", "bogus")
	t.Setenv("RETENTION_DAYS", "not-a-number")
	t.Setenv("CORS_ORIGINS", " http://a.test , ,http://b.test")

	require.NoError(t, Load())
	require.True(t, IsStaging)
	require.False(t, IsProduction)
	require.Equal(t, "sqlite", DBDriver)
	require.Equal(t, "inline", SummaryMode)
	require.Equal(t, 30, RetentionDays)
	require.Equal(t, 3600, SummaryCacheTTLSeconds)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, CORSOrigins)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("APP_ENV", "qa")
	require.Error(t, Load())
}

func TestLoadProductionNeedsSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET_KEY", "")
	require.Error(t, Load())

	t.Setenv("JWT_SECRET_KEY", "s3cret")
	require.NoError(t, Load())
	require.Equal(t, "s3cret", JWTSecret)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_DRIVER", "oracle")
	require.Error(t, Load())
}
