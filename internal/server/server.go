// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"

	"codeberg.org/oliverandrich/gemaccounts/internal/config"
	"codeberg.org/oliverandrich/gemaccounts/internal/database"
	"codeberg.org/oliverandrich/gemaccounts/internal/handlers"
	"codeberg.org/oliverandrich/gemaccounts/internal/i18n"
	"codeberg.org/oliverandrich/gemaccounts/internal/redisstore"
	"codeberg.org/oliverandrich/gemaccounts/internal/repository"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/auth"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/recovery"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/session"
	"codeberg.org/oliverandrich/gemaccounts/internal/validation"
)

// Server holds the wired application.
type Server struct {
	cfg      *config.Config
	db       *sqlx.DB
	repo     *repository.Repository
	redis    *redis.Client
	engine   *recovery.Engine
	sessions *session.Manager
	echo     *echo.Echo
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	SetupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"session_store", cfg.Store.Backend,
	)

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.startWithGracefulShutdown(ctx)
}

// New opens the database and the session store and builds the HTTP server.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// i18n
	if err := i18n.Init(); err != nil {
		return nil, fmt.Errorf("failed to init i18n: %w", err)
	}

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Server{cfg: cfg, db: db, repo: repository.New(db)}

	store, err := s.sessionStore(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	secret, generated, err := session.DecodeKey("recovery token secret", cfg.Recovery.TokenSecret)
	if err != nil {
		s.Close()
		return nil, err
	}
	if generated {
		slog.Warn("recovery_token_secret_generated", "hint", "set recovery-token-secret to keep reset links valid across restarts")
	}

	creds := auth.NewService(s.repo)
	tokens := recovery.NewTokens(secret, cfg.Recovery.TokenTTL, time.Now)
	s.engine = recovery.NewEngine(creds, store, tokens, recovery.Options{
		Questions:      [2]string{cfg.Recovery.Question1, cfg.Recovery.Question2},
		SessionTTL:     cfg.Recovery.SessionTTL,
		MaxFailures:    cfg.Recovery.MaxAttempts,
		UsernameFilter: validation.ContainsContactDetails,
	})

	s.sessions, err = session.NewManager(&cfg.Session, strings.HasPrefix(cfg.Server.BaseURL, "https://"))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(s.echo, cfg)
	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Close releases the database and the redis client.
func (s *Server) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	if err := s.db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

func (s *Server) sessionStore(ctx context.Context) (recovery.SessionStore, error) {
	switch s.cfg.Store.Backend {
	case config.StoreRedis:
		client, err := redisstore.Open(ctx, s.cfg.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = client
		return redisstore.New(client), nil
	default:
		return repository.NewSessionStore(s.repo), nil
	}
}

func (s *Server) setupRoutes() {
	h := handlers.New(s.repo)
	rh := handlers.NewRecovery(s.engine, s.sessions)

	s.echo.GET("/health", h.Health)
	s.echo.GET("/", h.Index)

	s.echo.GET("/forgot-password", rh.ForgotPage)
	s.echo.POST("/forgot-password", rh.ForgotSubmit)
	s.echo.GET("/reset-password", rh.ResetPage)
	s.echo.POST("/reset-password", rh.ResetSubmit)
	s.echo.GET("/reset-password/done", rh.ResetDone)
}

func (s *Server) startWithGracefulShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expired sessions in Redis vanish on their own.
	if s.cfg.Store.Backend == config.StoreDatabase {
		go runPruner(ctx, s.repo, s.cfg.Recovery.PruneInterval)
	}

	errChan := make(chan error, 1)
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", s.cfg.Server.BaseURL)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
