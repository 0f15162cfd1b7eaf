package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	// AssessmentURL is the backend WebSocket endpoint; the test id is appended.
	AssessmentURL  string
	CandidateToken string
	ApplicationID  string
	WSWriteTimeout time.Duration

	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	StaleAfter           time.Duration

	// RedisURL enables the Redis snapshot sink when set.
	RedisURL    string
	SnapshotTTL time.Duration

	DatabaseURL string
	MaxDBConns  int32

	// StatusPort serves the local status API when set.
	StatusPort          string
	GinMode             string
	// AllowedOrigins controls CORS on the local status API.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins      []string
	// ActionRatePerMinute caps each action route; 0 disables the limit.
	ActionRatePerMinute int
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "pretty"),
		AssessmentURL:        getEnv("ASSESSMENT_WS_URL", "ws://localhost:8000/ws/assessment"),
		CandidateToken:       getEnv("CANDIDATE_TOKEN", ""),
		ApplicationID:        getEnv("APPLICATION_ID", ""),
		WSWriteTimeout:       time.Duration(getEnvInt("WS_WRITE_TIMEOUT_SECONDS", 10)) * time.Second,
		ReconnectMaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 5),
		ReconnectBaseDelay:   time.Duration(getEnvInt("RECONNECT_BASE_DELAY_MS", 1000)) * time.Millisecond,
		ReconnectMaxDelay:    time.Duration(getEnvInt("RECONNECT_MAX_DELAY_MS", 30000)) * time.Millisecond,
		HeartbeatInterval:    time.Duration(getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 25)) * time.Second,
		StaleAfter:           time.Duration(getEnvInt("STALE_AFTER_SECONDS", 75)) * time.Second,
		RedisURL:             getEnv("REDIS_URL", ""),
		SnapshotTTL:          time.Duration(getEnvInt("SNAPSHOT_TTL_HOURS", 24)) * time.Hour,
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		MaxDBConns:           int32(getEnvInt("MAX_DB_CONNS", 4)),
		StatusPort:           getEnv("STATUS_PORT", "8090"),
		GinMode:              getEnv("GIN_MODE", "release"),
		AllowedOrigins:       parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
		ActionRatePerMinute:  getEnvInt("ACTION_RATE_PER_MINUTE", 60),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
