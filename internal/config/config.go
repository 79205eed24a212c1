// Package config provides environment-driven configuration for the server
// and CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the service needs at startup. Secrets come from
// the environment only; there is no config file for them.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string. Required.
	DatabaseURL string

	// GeminiAPIKey authenticates calls to the generation backend. Required
	// for any operation that reaches the model.
	GeminiAPIKey string

	// RedisAddr enables the shared rate-limit window across instances.
	// Empty means per-process in-memory limiting.
	RedisAddr     string
	RedisPassword string

	// Port is the HTTP listen port.
	Port int

	// JWTSecret validates bearer tokens issued by the account service.
	JWTSecret string

	// LLMTimeout bounds a single model call.
	LLMTimeout time.Duration

	// Verbose switches the logger to debug level.
	Verbose bool
}

// Load reads configuration from the environment, applying defaults for
// optional values.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		Port:          8080,
		LLMTimeout:    90 * time.Second,
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %v", err)
		}
		cfg.Port = port
	}

	if timeoutStr := os.Getenv("LLM_TIMEOUT_SECONDS"); timeoutStr != "" {
		seconds, err := strconv.Atoi(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS: %v", err)
		}
		cfg.LLMTimeout = time.Duration(seconds) * time.Second
	}

	if verboseStr := os.Getenv("VERBOSE"); verboseStr != "" {
		verbose, err := strconv.ParseBool(verboseStr)
		if err != nil {
			return nil, fmt.Errorf("invalid VERBOSE: %v", err)
		}
		cfg.Verbose = verbose
	}

	return cfg, nil
}

// Validate checks that required values are present and ranges are sane.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is required but not set")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("config error: GEMINI_API_KEY is required but not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config error: JWT_SECRET is required but not set")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: PORT must be in 1-65535, got %d", c.Port)
	}
	if c.LLMTimeout < time.Second {
		return fmt.Errorf("config error: LLM_TIMEOUT_SECONDS must be at least 1, got %s", c.LLMTimeout)
	}
	return nil
}
