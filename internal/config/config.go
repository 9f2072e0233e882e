// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

// Session store backends.
const (
	StoreDatabase = "database"
	StoreRedis    = "redis"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Session  SessionConfig
	Recovery RecoveryConfig
	Store    StoreConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Recovery session cookie name
	MaxAge     int    // Cookie max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type RecoveryConfig struct { //nolint:govet // fieldalignment not critical
	SessionTTL    time.Duration
	TokenTTL      time.Duration
	TokenSecret   string // hex encoded, auto-generated if empty in dev
	MaxAttempts   int
	Question1     string
	Question2     string
	PruneInterval time.Duration
}

type StoreConfig struct {
	Backend  string // database, redis
	RedisURL string
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		Recovery: RecoveryConfig{
			SessionTTL:    cmd.Duration("recovery-session-ttl"),
			TokenTTL:      cmd.Duration("recovery-token-ttl"),
			TokenSecret:   cmd.String("recovery-token-secret"),
			MaxAttempts:   int(cmd.Int("recovery-max-attempts")),
			Question1:     cmd.String("security-question-1"),
			Question2:     cmd.String("security-question-2"),
			PruneInterval: cmd.Duration("recovery-prune-interval"),
		},
		Store: StoreConfig{
			Backend:  strings.ToLower(cmd.String("session-store")),
			RedisURL: cmd.String("redis-url"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	applyRecoveryDefaults(cfg)

	return cfg
}

// applyRecoveryDefaults keeps the recovery cookie alive exactly as long as the
// server-side session it points to.
func applyRecoveryDefaults(cfg *Config) {
	if cfg.Recovery.SessionTTL <= 0 {
		cfg.Recovery.SessionTTL = 30 * time.Minute
	}
	if cfg.Recovery.TokenTTL <= 0 {
		cfg.Recovery.TokenTTL = 15 * time.Minute
	}
	if cfg.Recovery.MaxAttempts <= 0 {
		cfg.Recovery.MaxAttempts = 5
	}
	if cfg.Recovery.PruneInterval <= 0 {
		cfg.Recovery.PruneInterval = 10 * time.Minute
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "_recovery"
	}
	cfg.Session.MaxAge = int(cfg.Recovery.SessionTTL / time.Second)
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreDatabase
	}
}

// Validate reports configuration combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreDatabase:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("session store %q requires redis-url", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Store.Backend)
	}
	if c.Recovery.Question1 == "" || c.Recovery.Question2 == "" {
		return fmt.Errorf("both security questions must be configured")
	}
	return nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "http"
	if !IsLocalhost(host) {
		scheme = "https"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		// Session cookie flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_recovery",
			Usage:   "Recovery session cookie name",
			Sources: source("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: source("SESSION_BLOCK_KEY", "session.block_key"),
		},
		&cli.StringFlag{
			Name:    "session-store",
			Value:   StoreDatabase,
			Usage:   "Recovery session store (database, redis)",
			Sources: source("SESSION_STORE", "session.store"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis session store, e.g. redis://localhost:6379/0",
			Sources: source("REDIS_URL", "session.redis_url"),
		},
		// Recovery flags
		&cli.DurationFlag{
			Name:    "recovery-session-ttl",
			Value:   30 * time.Minute,
			Usage:   "Lifetime of a forgot-password session",
			Sources: source("RECOVERY_SESSION_TTL", "recovery.session_ttl"),
		},
		&cli.DurationFlag{
			Name:    "recovery-token-ttl",
			Value:   15 * time.Minute,
			Usage:   "Validity window of a reset token",
			Sources: source("RECOVERY_TOKEN_TTL", "recovery.token_ttl"),
		},
		&cli.StringFlag{
			Name:    "recovery-token-secret",
			Usage:   "Reset token signing secret (hex, auto-generated if empty in dev)",
			Sources: source("RECOVERY_TOKEN_SECRET", "recovery.token_secret"),
		},
		&cli.IntFlag{
			Name:    "recovery-max-attempts",
			Value:   5,
			Usage:   "Failed attempts tolerated per stage before lockout",
			Sources: source("RECOVERY_MAX_ATTEMPTS", "recovery.max_attempts"),
		},
		&cli.StringFlag{
			Name:    "security-question-1",
			Value:   "What is the name of your friend?",
			Usage:   "Text of the first security question",
			Sources: source("SECURITY_QUESTION_1", "recovery.question_1"),
		},
		&cli.StringFlag{
			Name:    "security-question-2",
			Value:   "What is the name of your favourite teacher?",
			Usage:   "Text of the second security question",
			Sources: source("SECURITY_QUESTION_2", "recovery.question_2"),
		},
		&cli.DurationFlag{
			Name:    "recovery-prune-interval",
			Value:   10 * time.Minute,
			Usage:   "How often expired recovery sessions are removed from the database",
			Sources: source("RECOVERY_PRUNE_INTERVAL", "recovery.prune_interval"),
		},
	}
}
