package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	BaseURL     string
	DatabaseURL string
	ServiceName string

	// Secrets, hex-encoded 32-byte keys.
	GrantKey   []byte
	SessionKey []byte

	// Patreon integration.
	PatreonClientID     string
	PatreonClientSecret string
	PatreonWebhookKey   string
	CreatorID           string
	CreatorName         string
	MinTierAmountCents  int

	// Payment provider integration.
	StripeSecretKey     string
	StripeWebhookKey    string
	StripeWebhookSecret string

	// Content serving.
	ExclusiveDir    string
	ContentFilter   string
	BenefitIndexURL string

	// Email.
	MailFromAddress string
	MailFromName    string
	MailAPIURL      string
	MailAPIKey      string

	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		BaseURL:              getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ServiceName:          getEnv("SERVICE_NAME", "earlypilot"),
		PatreonClientID:      os.Getenv("PATREON_CLIENT_ID"),
		PatreonClientSecret:  os.Getenv("PATREON_CLIENT_SECRET"),
		PatreonWebhookKey:    os.Getenv("PATREON_WEBHOOK_KEY"),
		CreatorID:            os.Getenv("CREATOR_ID"),
		CreatorName:          getEnv("CREATOR_NAME", "the creator"),
		MinTierAmountCents:   getInt("MIN_TIER_AMOUNT_CENTS", 500),
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookKey:     os.Getenv("STRIPE_WEBHOOK_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		ExclusiveDir:         getEnv("EXCLUSIVE_DIR", "content/exclusive"),
		ContentFilter:        getEnv("CONTENT_FILTER", "passthrough"),
		BenefitIndexURL:      getEnv("BENEFIT_INDEX_URL", "/"),
		MailFromAddress:      os.Getenv("MAIL_FROM_ADDRESS"),
		MailFromName:         getEnv("MAIL_FROM_NAME", ""),
		MailAPIURL:           os.Getenv("MAIL_API_URL"),
		MailAPIKey:           os.Getenv("MAIL_API_KEY"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.CreatorID == "" {
		return Config{}, fmt.Errorf("CREATOR_ID is required")
	}

	var err error
	if cfg.GrantKey, err = getKey("GRANT_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.SessionKey, err = getKey("SESSION_KEY"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getKey(key string) ([]byte, error) {
	raw, err := hex.DecodeString(os.Getenv(key))
	if err != nil {
		return nil, fmt.Errorf("%s must be hex-encoded: %w", key, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", key, len(raw))
	}
	return raw, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
