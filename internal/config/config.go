package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// NonceTTLHours bounds how long a channel verification stays redeemable.
	NonceTTLHours int
	// NonceCleanupAfterHours is the grace window before expired
	// verifications are garbage-collected.
	NonceCleanupAfterHours int

	// AutomationWebhookURL receives the fire-and-forget link notification.
	// Empty disables delivery.
	AutomationWebhookURL string

	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	GenerateRate  float64
	GenerateBurst int
}

type SchedulerConfig struct {
	PeriodResetIntervalMinutes  int
	NonceCleanupIntervalMinutes int
	JobTimeoutSeconds           int
	LockTTLSeconds              int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "chatlink"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "chatlink"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		NonceTTLHours:          getenvInt("NONCE_TTL_HOURS", 24),
		NonceCleanupAfterHours: getenvInt("NONCE_CLEANUP_AFTER_HOURS", 24),

		AutomationWebhookURL: strings.TrimSpace(getenv("AUTOMATION_WEBHOOK_URL", "")),

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			GenerateRate:  getenvFloat("RATE_LIMIT_GENERATE_RATE", 0.2),
			GenerateBurst: getenvInt("RATE_LIMIT_GENERATE_BURST", 5),
		},
		Scheduler: SchedulerConfig{
			PeriodResetIntervalMinutes:  getenvInt("SCHEDULER_PERIOD_RESET_INTERVAL_MINUTES", 1440),
			NonceCleanupIntervalMinutes: getenvInt("SCHEDULER_NONCE_CLEANUP_INTERVAL_MINUTES", 60),
			JobTimeoutSeconds:           getenvInt("SCHEDULER_JOB_TIMEOUT_SECONDS", 300),
			LockTTLSeconds:              getenvInt("SCHEDULER_LOCK_TTL_SECONDS", 600),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
