package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("HOST", "http://localhost:8080")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("WEATHER_CACHE_TTL", "")
	t.Setenv("OTP_MAX_ATTEMPTS", "")

	cfg := Load()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 10*time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, 10*time.Minute, cfg.OtpTTL)
	assert.Equal(t, 3, cfg.OtpMaxAttempts)
	assert.Equal(t, "memory", cfg.OtpStore)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.AllowedHost)
	require.NoError(t, cfg.Validate())
}

func TestLoadProductionHost(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HOST", "https://api.krishi.example:443/")
	t.Setenv("ALLOWED_ORIGINS", "https://app.krishi.example, ")
	t.Setenv("OTP_SECRET", "s3cret")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "api.krishi.example", cfg.AllowedHost)
	assert.Equal(t, []string{
		"https://app.krishi.example",
		"https://krishi.example",
		"https://www.krishi.example",
	}, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WEATHER_CACHE_TTL", "2m")
	t.Setenv("OTP_MAX_ATTEMPTS", "5")
	t.Setenv("OTP_STORE", "REDIS")
	t.Setenv("WEATHER_TIMEOUT", "not-a-duration")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg := Load()

	assert.Equal(t, 2*time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, 5, cfg.OtpMaxAttempts)
	assert.Equal(t, "redis", cfg.OtpStore)
	assert.Equal(t, 5*time.Second, cfg.WeatherTimeout)
	assert.True(t, cfg.TrustProxyHeaders)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEATHER_TIMEOUT")
}

func TestValidate(t *testing.T) {
	t.Run("unknown otp store", func(t *testing.T) {
		t.Setenv("OTP_STORE", "etcd")
		assert.Error(t, Load().Validate())
	})

	t.Run("production needs otp secret", func(t *testing.T) {
		t.Setenv("ENV", "production")
		t.Setenv("OTP_SECRET", "")
		assert.Error(t, Load().Validate())
	})

	t.Run("unknown context store", func(t *testing.T) {
		t.Setenv("CONTEXT_STORE", "dynamo")
		assert.Error(t, Load().Validate())
	})

	for _, key := range []string{
		"WEATHER_CACHE_SWEEP_INTERVAL",
		"WEATHER_CACHE_MAX_AGE",
		"SESSION_TTL",
		"MAIL_TIMEOUT",
		"OTP_TTL",
	} {
		t.Run(key+" must be positive", func(t *testing.T) {
			t.Setenv(key, "0s")
			err := Load().Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)

			t.Setenv(key, "-1m")
			assert.Error(t, Load().Validate())
		})
	}

	t.Run("malformed values are reported", func(t *testing.T) {
		t.Setenv("OTP_MAX_ATTEMPTS", "abc")
		t.Setenv("TRUST_PROXY_HEADERS", "maybe")
		cfg := Load()
		assert.Equal(t, 3, cfg.OtpMaxAttempts)

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OTP_MAX_ATTEMPTS")
		assert.Contains(t, err.Error(), "TRUST_PROXY_HEADERS")
	})
}

func TestDefaultsValidate(t *testing.T) {
	for _, key := range []string{
		"WEATHER_CACHE_SWEEP_INTERVAL", "WEATHER_CACHE_MAX_AGE", "SESSION_TTL", "MAIL_TIMEOUT",
		"OTP_TTL", "OTP_MAX_ATTEMPTS", "OTP_STORE", "CONTEXT_STORE", "WEATHER_TIMEOUT",
		"WEATHER_CACHE_TTL", "TRUST_PROXY_HEADERS", "ENV",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.MailTimeout)
	assert.Equal(t, time.Hour, cfg.WeatherCacheSweepInterval)
	require.NoError(t, cfg.Validate())
}
