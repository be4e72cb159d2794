package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	// WebhookSigningSecret is the shared secret the gateway signs payloads
	// with. The service refuses every delivery when it is empty.
	WebhookSigningSecret string
	// SignatureTolerance bounds the age of a signed timestamp. Zero
	// disables the check.
	SignatureTolerance time.Duration

	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	AnalyticsEndpoint string
	AnalyticsTimeout  time.Duration

	SweepInterval time.Duration
	SweepGrace    time.Duration
	SweepBatch    int

	RedisAddr     string
	RedisPassword string

	OTLPEndpoint string

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
	DBConnMaxIdleTime int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewNotificationConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "offertory"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		WebhookSigningSecret: strings.TrimSpace(getenv("WEBHOOK_SIGNING_SECRET", "")),
		SignatureTolerance:   getenvDuration("WEBHOOK_SIGNATURE_TOLERANCE", 5*time.Minute),

		GatewayBaseURL: strings.TrimRight(getenv("GATEWAY_BASE_URL", ""), "/"),
		GatewayAPIKey:  strings.TrimSpace(getenv("GATEWAY_API_KEY", "")),
		GatewayTimeout: getenvDuration("GATEWAY_TIMEOUT", 10*time.Second),

		AnalyticsEndpoint: strings.TrimSpace(getenv("ANALYTICS_ENDPOINT", "")),
		AnalyticsTimeout:  getenvDuration("ANALYTICS_TIMEOUT", 2*time.Second),

		SweepInterval: getenvDuration("REPROCESS_SWEEP_INTERVAL", 5*time.Minute),
		SweepGrace:    getenvDuration("REPROCESS_SWEEP_GRACE", 10*time.Minute),
		SweepBatch:    getenvInt("REPROCESS_SWEEP_BATCH", 50),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "offertory"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		SMTPHost:     getenv("SMTP_HOST", "localhost"),
		SMTPPort:     getenvInt("SMTP_PORT", 1025),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "receipts@offertory.local"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
