// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Addr        string
	MetricsAddr string
	FrontendURL string
	DBPath      string

	Google GoogleConfig
	Groq   GroqConfig
	Tools  ToolsConfig
	Auth   AuthConfig

	LogLevel  string
	LogFormat string

	RateLimitPerSecond int
	RateLimitBurst     int
	TrustProxy         bool
}

// GoogleConfig is the registered Google OAuth client.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GroqConfig is the hosted model configuration.
type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ToolsConfig points at the remote tool endpoint.
type ToolsConfig struct {
	EndpointURL     string
	CallTimeout     time.Duration
	RefreshInterval time.Duration
}

// AuthConfig carries session signing material and lifetimes.
type AuthConfig struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first without overriding real environment variables.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be fully provisioned
	_ = godotenv.Load()

	cfg := &Config{
		Addr:        getEnv("RITUO_ADDR", ":8000"),
		MetricsAddr: getEnv("RITUO_METRICS_ADDR", ":9090"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		DBPath:      getEnv("DB_PATH", "./data/rituo.db"),
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		},
		Groq: GroqConfig{
			APIKey:  getEnv("GROQ_API_KEY", ""),
			BaseURL: getEnv("GROQ_BASE_URL", ""),
			Model:   getEnv("GROQ_MODEL", ""),
		},
		Tools: ToolsConfig{
			EndpointURL:     getEnv("TOOL_ENDPOINT_URL", ""),
			CallTimeout:     getEnvDuration("TOOL_CALL_TIMEOUT", 30*time.Second),
			RefreshInterval: getEnvDuration("TOOL_REFRESH_INTERVAL", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			AccessTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 60*time.Minute),
			RefreshTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		RateLimitPerSecond: getEnvInt("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("RITUO_ADDR cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Google.ClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Groq.APIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	if c.Tools.EndpointURL == "" {
		return fmt.Errorf("TOOL_ENDPOINT_URL is required")
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit settings must be > 0")
	}
	return nil
}

// IsDevelopment reports whether the frontend looks like a local dev server.
func (c *Config) IsDevelopment() bool {
	return strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
