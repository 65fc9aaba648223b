package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Payment gateway
	GatewayURL    string
	GatewayAPIKey string

	// Storefront backend
	BackendURL    string
	BackendAPIKey string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Checkout flows
	PixExpiry        time.Duration
	QRRefreshDelay   time.Duration
	CardPollInterval time.Duration
	CardPollCeiling  time.Duration
	RedirectDelay    time.Duration
	CardEnabled      bool
	ValidationMode   string // production | sandbox

	// Degraded-mode payer placeholders
	DefaultPayerPhone string
	DefaultPayerCEP   string

	// Persistence
	PixSessionFile     string
	BillingAddressFile string

	// JWT / Auth
	JWTSecret string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GatewayURL:    getEnv("GATEWAY_URL", "https://sandbox.asaas.com/api"),
		GatewayAPIKey: getEnv("GATEWAY_API_KEY", ""),

		BackendURL:    getEnv("BACKEND_URL", ""),
		BackendAPIKey: getEnv("BACKEND_API_KEY", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		PixExpiry:        getEnvDuration("PIX_EXPIRY", 300*time.Second),
		QRRefreshDelay:   getEnvDuration("QR_REFRESH_DELAY", time.Second),
		CardPollInterval: getEnvDuration("CARD_POLL_INTERVAL", 3*time.Second),
		CardPollCeiling:  getEnvDuration("CARD_POLL_CEILING", 5*time.Minute),
		RedirectDelay:    getEnvDuration("REDIRECT_DELAY", 2*time.Second),
		CardEnabled:      getEnv("CARD_ENABLED", "true") == "true",
		ValidationMode:   getEnv("VALIDATION_MODE", "production"),

		DefaultPayerPhone: getEnv("DEFAULT_PAYER_PHONE", "11999999999"),
		DefaultPayerCEP:   getEnv("DEFAULT_PAYER_CEP", "01310100"),

		PixSessionFile:     getEnv("PIX_SESSION_FILE", "data/pix_session.json"),
		BillingAddressFile: getEnv("BILLING_ADDRESS_FILE", "data/billing_addresses.json"),

		JWTSecret: getEnv("JWT_SECRET", "checkout-default-dev-secret-change-me"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
