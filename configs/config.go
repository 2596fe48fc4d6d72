package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

// Enabled reports whether media should be staged in R2 instead of inline.
func (r R2) Enabled() bool {
	return r.AccountID != "" && r.BucketName != ""
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func (s SMTP) Enabled() bool {
	return s.Host != "" && s.To != ""
}

type Config struct {
	AppEnv            string
	ListenAddr        string
	AllowedOrigins    []string
	DatabaseDriver    string
	DatabaseURI       string
	AlarmBackend      string
	RedisURI          string
	RetryDelay        time.Duration
	DefaultService    string
	SecretKey         string
	CookieName        string
	APIKey            string
	CredentialBackend string
	FFmpegPath        string
	RateLimit         int
	LogLevel          string
	SentryDSN         string
	R2                R2
	SMTP              SMTP
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	AlarmBackendLocal = "local"
	AlarmBackendAsynq = "asynq"

	CredentialBackendStore   = "store"
	CredentialBackendKeyring = "keyring"
)

func LoadConfig() *Config {
	return &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		ListenAddr:        getEnv("LISTEN_ADDR", ":3000"),
		AllowedOrigins:    getList("ALLOWED_ORIGINS"),
		DatabaseDriver:    getEnv("DATABASE_DRIVER", DriverSQLite),
		DatabaseURI:       getEnv("DATABASE_URI", "data/skyqueue.db"),
		AlarmBackend:      getEnv("ALARM_BACKEND", AlarmBackendLocal),
		RedisURI:          getEnv("REDIS_URI", "localhost:6379"),
		RetryDelay:        getDuration("RETRY_DELAY", 5*time.Minute),
		DefaultService:    getEnv("DEFAULT_SERVICE", "https://bsky.social"),
		SecretKey:         getEnv("SECRET_KEY", ""),
		CookieName:        getEnv("COOKIE_NAME", "skyqueue_session"),
		APIKey:            getEnv("API_KEY", ""),
		CredentialBackend: getEnv("CREDENTIAL_BACKEND", CredentialBackendStore),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		RateLimit:         getInt("RATE_LIMIT", 5),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SMTP: SMTP{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", ""),
			To:       getEnv("NOTIFY_EMAIL", ""),
		},
	}
}

// CORSOrigins lists the origins allowed to call the API with the session
// cookie. Without ALLOWED_ORIGINS only the API's own origin is allowed.
func (c Config) CORSOrigins() []string {
	if len(c.AllowedOrigins) > 0 {
		return c.AllowedOrigins
	}
	host, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil || port == "" {
		host, port = "", "3000"
	}
	switch host {
	case "", "0.0.0.0", "::":
		return []string{"http://localhost:" + port, "http://127.0.0.1:" + port}
	}
	return []string{"http://" + net.JoinHostPort(host, port)}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimRight(strings.TrimSpace(v), "/"); v != "" {
			values = append(values, v)
		}
	}
	return values
}
