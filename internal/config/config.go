package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string
	AdminJWTSecret string
	// Requests per second per admin subject; zero disables limiting.
	AdminRateLimit float64

	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string
	TurnJobsTable        string
	BedrockModelID       string
	SessionArchiveBucket string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Session storage: "redis" or "postgres"
	SessionBackend   string
	SessionTTL       time.Duration
	BacklogThreshold time.Duration

	// Fallback LLM
	GeminiAPIKey  string
	GeminiModelID string
	LLMTimeout    time.Duration

	// WhatsApp Cloud API
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppAppSecret     string
	WhatsAppVerifyToken   string
	WhatsAppAPIBaseURL    string
	WhatsAppAPIVersion    string
	WhatsAppMediaBaseURL  string

	// Credit providers
	FNBBaseURL         string
	FNBAPIKey          string
	GASOTokenURL       string
	GASOClientID       string
	GASOClientSecret   string
	GASODatasetURL     string
	GASOSegmentName    string
	ProviderTimeout    time.Duration
	ProviderBlockTTL   time.Duration
	TestIdentitiesJSON string

	// Engine thresholds
	MinCredit     float64
	MinAge        int
	MaxObjections int

	// Turn processing
	AggregatorWindow   time.Duration
	LockTimeout        time.Duration
	LockSweepInterval  time.Duration
	LockStaleAfter     time.Duration
	RecoveryInterval   time.Duration
	OutboxPollInterval time.Duration

	// Operator alerts
	EmailProvider     string
	OperatorEmails    []string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminRateLimit: getEnvAsFloat("ADMIN_RATE_LIMIT", 5),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		TurnJobsTable:        getEnv("TURN_JOBS_TABLE", "conversation_turns"),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		SessionArchiveBucket: getEnv("SESSION_ARCHIVE_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionBackend:   strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "redis"))),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 72*time.Hour),
		BacklogThreshold: getEnvAsDuration("BACKLOG_THRESHOLD", 10*time.Minute),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),
		LLMTimeout:    getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),

		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAPIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppMediaBaseURL:  getEnv("WHATSAPP_MEDIA_BASE_URL", ""),

		FNBBaseURL:         getEnv("FNB_BASE_URL", ""),
		FNBAPIKey:          getEnv("FNB_API_KEY", ""),
		GASOTokenURL:       getEnv("GASO_TOKEN_URL", ""),
		GASOClientID:       getEnv("GASO_CLIENT_ID", ""),
		GASOClientSecret:   getEnv("GASO_CLIENT_SECRET", ""),
		GASODatasetURL:     getEnv("GASO_DATASET_URL", ""),
		GASOSegmentName:    getEnv("GASO_SEGMENT", "gaso"),
		ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 15*time.Second),
		ProviderBlockTTL:   getEnvAsDuration("PROVIDER_BLOCK_TTL", 30*time.Minute),
		TestIdentitiesJSON: getEnv("TEST_IDENTITIES_JSON", ""),

		MinCredit:     getEnvAsFloat("MIN_CREDIT", 100),
		MinAge:        getEnvAsInt("MIN_AGE", 25),
		MaxObjections: getEnvAsInt("MAX_OBJECTIONS", 3),

		AggregatorWindow:   getEnvAsDuration("AGGREGATOR_WINDOW", 3*time.Second),
		LockTimeout:        getEnvAsDuration("LOCK_TIMEOUT", 90*time.Second),
		LockSweepInterval:  getEnvAsDuration("LOCK_SWEEP_INTERVAL", time.Minute),
		LockStaleAfter:     getEnvAsDuration("LOCK_STALE_AFTER", 5*time.Minute),
		RecoveryInterval:   getEnvAsDuration("RECOVERY_INTERVAL", 5*time.Minute),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		OperatorEmails:    getEnvAsList("OPERATOR_EMAILS"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Credit Sales Bot"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
