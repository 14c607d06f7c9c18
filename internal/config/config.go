package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFile     string

	DatabaseURL string

	JWTSecret string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Push gateway (FCM-style multicast HTTP endpoint)
	PushGatewayURL string
	PushServerKey  string

	// Media object storage
	AWSRegion  string
	AWSBucket  string
	CDNBaseURL string

	// RTC token issuance
	RTCAppID     string
	RTCAppSecret string
	RTCTokenTTL  time.Duration

	// Geolocation lookup
	GeoAPIBaseURL string

	// Background sweeps
	NotificationSweepInterval time.Duration
	SessionIdleWindow         time.Duration
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:     getEnvOrDefault("LOG_FILE", "server.log"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		PushGatewayURL: getEnvOrDefault("PUSH_GATEWAY_URL", "https://fcm.googleapis.com/fcm/send"),
		PushServerKey:  os.Getenv("PUSH_SERVER_KEY"),

		AWSRegion:  getEnvOrDefault("AWS_REGION", "us-east-1"),
		AWSBucket:  os.Getenv("AWS_BUCKET"),
		CDNBaseURL: os.Getenv("CDN_BASE_URL"),

		RTCAppID:     os.Getenv("RTC_APP_ID"),
		RTCAppSecret: os.Getenv("RTC_APP_SECRET"),
		RTCTokenTTL:  getEnvDuration("RTC_TOKEN_TTL", time.Hour),

		GeoAPIBaseURL: getEnvOrDefault("GEO_API_BASE_URL", "http://ip-api.com/json"),

		NotificationSweepInterval: getEnvDuration("NOTIFICATION_SWEEP_INTERVAL", time.Minute),
		SessionIdleWindow:         getEnvDuration("SESSION_IDLE_WINDOW", 30*time.Minute),
	}
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
