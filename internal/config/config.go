// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Gateway (NATS) settings
	GatewayURL         string // endpoint handed to clients in negotiation grants
	GatewayInternalURL string // endpoint the server itself connects to
	GatewayCAFile      string
	GatewayCertFile    string
	GatewayKeyFile     string
	GatewayToken       string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Negotiation grants
	GrantSecret string
	GrantTTL    time.Duration

	// Realtime client reconnect policy
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int

	// Persistence
	StorePath string

	// Notification delivery
	NotifierURL string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Side-effect drain on shutdown
	EffectDrainTimeout time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// Gateway
		GatewayURL:         getEnv("GATEWAY_URL", "nats://localhost:4222"),
		GatewayInternalURL: getEnv("GATEWAY_INTERNAL_URL", "nats://localhost:4222"),
		GatewayCAFile:      getEnv("GATEWAY_CA_FILE", ""),
		GatewayCertFile:    getEnv("GATEWAY_CERT_FILE", ""),
		GatewayKeyFile:     getEnv("GATEWAY_KEY_FILE", ""),
		GatewayToken:       getEnv("GATEWAY_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// Grants
		GrantSecret: getEnv("GRANT_SECRET", "development-grant-secret"),
		GrantTTL:    getDurationEnv("GRANT_TTL", 15*time.Minute),

		// Reconnect policy
		ReconnectBase:        getDurationEnv("REALTIME_BACKOFF_BASE", time.Second),
		ReconnectCap:         getDurationEnv("REALTIME_BACKOFF_CAP", 16*time.Second),
		MaxReconnectAttempts: getIntEnv("REALTIME_MAX_RECONNECTS", 5),

		// Persistence
		StorePath: getEnv("STORE_PATH", "data/store"),

		// Notifications
		NotifierURL: getEnv("NOTIFIER_URL", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Shutdown
		EffectDrainTimeout: getDurationEnv("EFFECT_DRAIN_TIMEOUT", 10*time.Second),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
