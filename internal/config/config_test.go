package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jobpilot")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("LLM_TIMEOUT_SECONDS", "")
	t.Setenv("VERBOSE", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.LLMTimeout)
	assert.False(t, cfg.Verbose)
	assert.Empty(t, cfg.RedisAddr)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jobpilot")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_TIMEOUT_SECONDS", "30")
	t.Setenv("VERBOSE", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database url",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "DATABASE_URL",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.GeminiAPIKey = "" },
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.JWTSecret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "PORT",
		},
		{
			name:    "timeout too small",
			mutate:  func(c *Config) { c.LLMTimeout = 0 },
			wantErr: "LLM_TIMEOUT_SECONDS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				DatabaseURL:  "postgres://localhost/jobpilot",
				GeminiAPIKey: "key",
				JWTSecret:    "secret",
				Port:         8080,
				LLMTimeout:   90 * time.Second,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
