package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_DRIVER", "ALARM_BACKEND", "RETRY_DELAY", "RATE_LIMIT", "SMTP_HOST", "R2_ACCOUNT_ID"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, AlarmBackendLocal, cfg.AlarmBackend)
	assert.Equal(t, 5*time.Minute, cfg.RetryDelay)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.False(t, cfg.SMTP.Enabled())
	assert.False(t, cfg.R2.Enabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ALARM_BACKEND", AlarmBackendAsynq)
	t.Setenv("RETRY_DELAY", "90s")
	t.Setenv("RATE_LIMIT", "oops")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("NOTIFY_EMAIL", "me@example.com")
	t.Setenv("R2_ACCOUNT_ID", "acc")
	t.Setenv("R2_BUCKET_NAME", "bucket")

	cfg := LoadConfig()
	assert.Equal(t, AlarmBackendAsynq, cfg.AlarmBackend)
	assert.Equal(t, 90*time.Second, cfg.RetryDelay)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.Enabled())
	assert.True(t, cfg.R2.Enabled())
}

func TestNegativeRetryDelayFallsBack(t *testing.T) {
	t.Setenv("RETRY_DELAY", "-1m")
	assert.Equal(t, 5*time.Minute, LoadConfig().RetryDelay)
}

func TestCORSOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, Config{ListenAddr: ":3000"}.CORSOrigins())
	assert.Equal(t, []string{"http://127.0.0.1:8080"}, Config{ListenAddr: "127.0.0.1:8080"}.CORSOrigins())
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, Config{}.CORSOrigins())

	t.Setenv("ALLOWED_ORIGINS", " https://app.example.com/ ,http://localhost:5173,")
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:5173"}, LoadConfig().CORSOrigins())
}
