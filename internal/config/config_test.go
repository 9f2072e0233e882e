// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"sub.domain.localhost", true},
		{"example.com", false},
		{"www.example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestBuildBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		expected string
	}{
		{
			name:     "localhost HTTP default port",
			cfg:      &Config{Server: ServerConfig{Host: "localhost", Port: 80}},
			expected: "http://localhost",
		},
		{
			name:     "localhost HTTP custom port",
			cfg:      &Config{Server: ServerConfig{Host: "localhost", Port: 8080}},
			expected: "http://localhost:8080",
		},
		{
			name:     "remote host default HTTPS port",
			cfg:      &Config{Server: ServerConfig{Host: "example.com", Port: 443}},
			expected: "https://example.com",
		},
		{
			name:     "remote host custom port",
			cfg:      &Config{Server: ServerConfig{Host: "example.com", Port: 8443}},
			expected: "https://example.com:8443",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildBaseURL(tt.cfg))
		})
	}
}

func TestApplyRecoveryDefaults(t *testing.T) {
	t.Run("applies defaults when empty", func(t *testing.T) {
		cfg := &Config{}

		applyRecoveryDefaults(cfg)

		assert.Equal(t, 30*time.Minute, cfg.Recovery.SessionTTL)
		assert.Equal(t, 15*time.Minute, cfg.Recovery.TokenTTL)
		assert.Equal(t, 5, cfg.Recovery.MaxAttempts)
		assert.Equal(t, 10*time.Minute, cfg.Recovery.PruneInterval)
		assert.Equal(t, "_recovery", cfg.Session.CookieName)
		assert.Equal(t, 1800, cfg.Session.MaxAge)
		assert.Equal(t, StoreDatabase, cfg.Store.Backend)
	})

	t.Run("does not override existing values", func(t *testing.T) {
		cfg := &Config{
			Session:  SessionConfig{CookieName: "_custom"},
			Recovery: RecoveryConfig{SessionTTL: time.Hour, TokenTTL: time.Minute, MaxAttempts: 3},
			Store:    StoreConfig{Backend: StoreRedis},
		}

		applyRecoveryDefaults(cfg)

		assert.Equal(t, time.Hour, cfg.Recovery.SessionTTL)
		assert.Equal(t, time.Minute, cfg.Recovery.TokenTTL)
		assert.Equal(t, 3, cfg.Recovery.MaxAttempts)
		assert.Equal(t, "_custom", cfg.Session.CookieName)
		assert.Equal(t, 3600, cfg.Session.MaxAge)
		assert.Equal(t, StoreRedis, cfg.Store.Backend)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Recovery: RecoveryConfig{Question1: "q1", Question2: "q2"},
			Store:    StoreConfig{Backend: StoreDatabase},
		}
	}

	t.Run("database store", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("redis store requires url", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Backend = StoreRedis
		assert.Error(t, cfg.Validate())

		cfg.Store.RedisURL = "redis://localhost:6379/0"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown store", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Backend = "memcached"
		assert.ErrorContains(t, cfg.Validate(), "unknown session store")
	})

	t.Run("missing question", func(t *testing.T) {
		cfg := valid()
		cfg.Recovery.Question2 = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestFlags(t *testing.T) {
	flags := Flags()

	assert.NotEmpty(t, flags)

	flagNames := make(map[string]bool)
	for _, f := range flags {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	assert.True(t, flagNames["host"], "should have host flag")
	assert.True(t, flagNames["port"], "should have port flag")
	assert.True(t, flagNames["base-url"], "should have base-url flag")
	assert.True(t, flagNames["log-level"], "should have log-level flag")
	assert.True(t, flagNames["database-dsn"], "should have database-dsn flag")
	assert.True(t, flagNames["session-cookie-name"], "should have session-cookie-name flag")
	assert.True(t, flagNames["session-store"], "should have session-store flag")
	assert.True(t, flagNames["recovery-token-secret"], "should have recovery-token-secret flag")
	assert.True(t, flagNames["recovery-max-attempts"], "should have recovery-max-attempts flag")
}

func TestNewFromCLI(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.NotNil(t, cfg)
			assert.Equal(t, "localhost", cfg.Server.Host)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "info", cfg.Log.Level)
			assert.Equal(t, "text", cfg.Log.Format)
			assert.Equal(t, "_recovery", cfg.Session.CookieName)
			assert.Equal(t, 1800, cfg.Session.MaxAge)
			assert.Equal(t, 15*time.Minute, cfg.Recovery.TokenTTL)
			assert.Equal(t, 5, cfg.Recovery.MaxAttempts)
			assert.Equal(t, StoreDatabase, cfg.Store.Backend)
			assert.NotEmpty(t, cfg.Recovery.Question1)
			assert.NotEmpty(t, cfg.Recovery.Question2)

			assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
			assert.NoError(t, cfg.Validate())

			return nil
		},
	}

	err := app.Run(context.Background(), []string{"test"})
	assert.NoError(t, err)
}

func TestNewFromCLI_WithCustomValues(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 9000, cfg.Server.Port)
			assert.Equal(t, "https://example.com", cfg.Server.BaseURL)
			assert.Equal(t, "debug", cfg.Log.Level)
			assert.Equal(t, "./data/test.db", cfg.Database.DSN)
			assert.Equal(t, StoreRedis, cfg.Store.Backend)
			assert.Equal(t, "redis://localhost:6379/1", cfg.Store.RedisURL)
			assert.Equal(t, 3, cfg.Recovery.MaxAttempts)
			assert.Equal(t, 5*time.Minute, cfg.Recovery.TokenTTL)

			return nil
		},
	}

	args := []string{
		"test",
		"--host", "0.0.0.0",
		"--port", "9000",
		"--base-url", "https://example.com",
		"--log-level", "debug",
		"--database-dsn", "./data/test.db",
		"--session-store", "Redis",
		"--redis-url", "redis://localhost:6379/1",
		"--recovery-max-attempts", "3",
		"--recovery-token-ttl", "5m",
	}
	err := app.Run(context.Background(), args)
	assert.NoError(t, err)
}
