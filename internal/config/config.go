package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string
	TenantID string
	Timezone string

	// Session persistence
	SessionBackend     string
	SessionTable       string
	SessionTTL         time.Duration
	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	DatabaseURL        string
	SQLitePath         string
	// SessionArchiveBucket receives a JSON copy of every swept session.
	SessionArchiveBucket string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Inbound queue
	QueueURL       string
	UseMemoryQueue bool
	WorkerCount    int

	// Property-management backend
	PMSBaseURL string
	PMSAPIKey  string
	PMSTimeout time.Duration

	// Same-day booking rules
	BookingCutoffHour  int
	MaxRoomsPerBooking int
	BookingURL         string

	// AI fallback
	AIProvider     string
	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string

	// LINE Messaging API
	LineChannelSecret string
	LineChannelToken  string
	LineAPIBaseURL    string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	MessagesPerMinute  int

	// Front-desk notifications
	EmailProvider  string
	NotifyEmailTo  string
	EmailFrom      string
	EmailFromName  string
	SendGridAPIKey string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		TenantID: getEnv("TENANT_ID", "ktw_hotel"),
		Timezone: getEnv("TIMEZONE", "Asia/Taipei"),

		SessionBackend:     strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionTable:       getEnv("SESSION_TABLE", "conversation_sessions"),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 0),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SweepInterval:      getEnvAsDuration("SWEEP_INTERVAL", 0),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/sessions.db"),

		SessionArchiveBucket: getEnv("SESSION_ARCHIVE_BUCKET", ""),

		AWSRegion:           getEnv("AWS_REGION", "ap-northeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		QueueURL:       getEnv("QUEUE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		PMSBaseURL: getEnv("PMS_BASE_URL", ""),
		PMSAPIKey:  getEnv("PMS_API_KEY", ""),
		PMSTimeout: getEnvAsDuration("PMS_TIMEOUT", 5*time.Second),

		BookingCutoffHour:  getEnvAsInt("BOOKING_CUTOFF_HOUR", 22),
		MaxRoomsPerBooking: getEnvAsInt("MAX_ROOMS_PER_BOOKING", 5),
		BookingURL:         getEnv("BOOKING_URL", "https://ktwhotel.com/2cTrT"),

		AIProvider:     strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "none"))),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		LineChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),
		LineChannelToken:  getEnv("LINE_CHANNEL_TOKEN", ""),
		LineAPIBaseURL:    getEnv("LINE_API_BASE_URL", "https://api.line.me"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		MessagesPerMinute:  getEnvAsInt("MESSAGES_PER_MINUTE", 30),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		NotifyEmailTo:  getEnv("NOTIFY_EMAIL_TO", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "KTW Hotel Concierge"),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
	}
}

// Location resolves the configured timezone, falling back to UTC+8 when the
// tz database is unavailable in the container image.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*60*60)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
