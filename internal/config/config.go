// Package config parses server configuration from flags and environment
// variables.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// HTTP
	Port string

	// Redis backs both the Key Store and the Event Bus.
	RedisURL string

	// Session / CSRF for the web UI surface.
	SessionSecret string
	SessionHTTPS  bool

	// OIDC settings for the web UI sign-in (collaborator; see internal/websession).
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	// Debug enables verbose logging and relaxes cookie security for local dev.
	Debug bool

	// KeyRequestTTL bounds how long an unredeemed key request lives in KS.
	KeyRequestTTL time.Duration

	// MaxCueBodyBytes is the largest publish body accepted.
	MaxCueBodyBytes int64

	// MaxListenPatterns bounds how many patterns a single listen call may request.
	MaxListenPatterns int
}

// Parse parses configuration from flags with environment variable fallbacks.
func Parse() *Config {
	port := flag.String("port", getEnvOrDefault("CUE_PORT", "8000"), "server port")
	redisURL := flag.String("redis-url", getEnvOrDefault("REDIS_URL", "redis://localhost:6379"), "redis URL")
	debug := flag.Bool("debug", getEnvBoolOrDefault("DEBUG", false), "enable debug logging")
	flag.Parse()

	cfg := &Config{
		Port:              *port,
		RedisURL:          *redisURL,
		SessionSecret:     getEnvOrDefault("SESSION_SECRET_KEY", ""),
		SessionHTTPS:      getEnvBoolOrDefault("SESSION_HTTPS_ONLY", true),
		OIDCIssuer:        os.Getenv("OIDC_ISSUER"),
		OIDCClientID:      os.Getenv("OIDC_CLIENT_ID"),
		OIDCClientSecret:  os.Getenv("OIDC_CLIENT_SECRET"),
		OIDCRedirectURL:   os.Getenv("OIDC_REDIRECT_URL"),
		Debug:             *debug,
		KeyRequestTTL:     time.Duration(getEnvIntOrDefault("KEY_REQUEST_TTL_SECONDS", 300)) * time.Second,
		MaxCueBodyBytes:   int64(getEnvIntOrDefault("MAX_CUE_BODY_BYTES", 512*1024)),
		MaxListenPatterns: getEnvIntOrDefault("MAX_LISTEN_PATTERNS", 128),
	}

	return cfg
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("config: redis URL is required")
	}
	if !c.Debug && c.SessionSecret == "" {
		return fmt.Errorf("config: SESSION_SECRET_KEY is required outside debug mode")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	return v == "true" || v == "1" || v == "yes"
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
