// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"codeberg.org/oliverandrich/gemaccounts/internal/models"
	"codeberg.org/oliverandrich/gemaccounts/internal/repository"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/recovery"
	"codeberg.org/oliverandrich/gemaccounts/internal/validation"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPIN         = errors.New("pin must be exactly four digits")
	ErrMissingAnswer      = errors.New("both security answers are required")
	ErrUnknownQuestion    = errors.New("unknown security question")

	// ErrUserNotFound is shared with the recovery engine.
	ErrUserNotFound = recovery.ErrUserNotFound
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("0000"), bcrypt.DefaultCost)

var answerFolder = cases.Fold()

// Service is the credential store: it owns PIN and security answer hashes.
type Service struct {
	repo *repository.Repository
	cost int
}

var _ recovery.CredentialStore = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost sets the cost used for new hashes.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

func NewService(repo *repository.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeAnswer makes security answers comparable regardless of case and
// surrounding or repeated whitespace.
func NormalizeAnswer(answer string) string {
	return answerFolder.String(strings.Join(strings.Fields(answer), " "))
}

// CreateUserParams holds the parameters for creating an account.
type CreateUserParams struct {
	Username string
	PIN      string
	Answer1  string
	Answer2  string
	Active   bool
}

// CreateUser creates an account with a PIN and both security answers.
func (s *Service) CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error) {
	if !validation.ValidUsername(params.Username) {
		return nil, ErrInvalidUsername
	}
	if !validation.ValidPIN(params.PIN) {
		return nil, ErrInvalidPIN
	}
	if NormalizeAnswer(params.Answer1) == "" || NormalizeAnswer(params.Answer2) == "" {
		return nil, ErrMissingAnswer
	}

	_, err := s.repo.GetUserByUsername(ctx, params.Username)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	user := &models.User{Username: params.Username, IsActive: params.Active}
	for _, h := range []struct {
		dst   *string
		value string
	}{
		{&user.PasswordHash, params.PIN},
		{&user.Answer1Hash, NormalizeAnswer(params.Answer1)},
		{&user.Answer2Hash, NormalizeAnswer(params.Answer2)},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(h.value), s.cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash credential: %w", err)
		}
		*h.dst = string(hash)
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user_created", "user_id", user.ID, "username", user.Username)

	return user, nil
}

// FindUser looks up a user by username.
func (s *Service) FindUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// VerifySecurityAnswer compares answer with the stored answer to question 1
// or 2.
func (s *Service) VerifySecurityAnswer(_ context.Context, user *models.User, question int, answer string) (bool, error) {
	hash, ok := user.AnswerHash(question)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownQuestion, question)
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(NormalizeAnswer(answer)))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare security answer: %w", err)
	}
	return true, nil
}

// SetPassword replaces the user's PIN. It fails with
// recovery.ErrCredentialChanged if the stored hash no longer matches user.
func (s *Service) SetPassword(ctx context.Context, user *models.User, pin string) error {
	if !validation.ValidPIN(pin) {
		return ErrInvalidPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}

	err = s.repo.UpdateUserPassword(ctx, user.ID, user.PasswordHash, string(hash))
	if errors.Is(err, repository.ErrNotFound) {
		return recovery.ErrCredentialChanged
	}
	if err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	user.PasswordHash = string(hash)

	slog.Info("pin_changed", "user_id", user.ID, "username", user.Username)

	return nil
}

// Login authenticates a user by username and PIN.
func (s *Service) Login(ctx context.Context, username, pin string) (*models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(pin))
			slog.Warn("login_failed", "username", username, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(pin)); err != nil {
		slog.Warn("login_failed", "username", username, "reason", "invalid_pin")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		slog.Warn("login_failed", "username", username, "reason", "inactive")
		return nil, ErrInvalidCredentials
	}

	slog.Info("login_success", "user_id", user.ID, "username", username)
	return user, nil
}

// SetActive activates or deactivates the account with the given username.
func (s *Service) SetActive(ctx context.Context, username string, active bool) error {
	user, err := s.FindUser(ctx, username)
	if err != nil {
		return err
	}
	if err := s.repo.SetUserActive(ctx, user.ID, active); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	slog.Info("user_active_changed", "user_id", user.ID, "username", username, "active", active)

	return nil
}

// SetSecurityAnswers replaces both security answers of a user.
func (s *Service) SetSecurityAnswers(ctx context.Context, username, answer1, answer2 string) error {
	answer1, answer2 = NormalizeAnswer(answer1), NormalizeAnswer(answer2)
	if answer1 == "" || answer2 == "" {
		return ErrMissingAnswer
	}

	user, err := s.FindUser(ctx, username)
	if err != nil {
		return err
	}

	h1, err := bcrypt.GenerateFromPassword([]byte(answer1), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash security answer: %w", err)
	}
	h2, err := bcrypt.GenerateFromPassword([]byte(answer2), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash security answer: %w", err)
	}

	if err := s.repo.UpdateUserAnswers(ctx, user.ID, string(h1), string(h2)); err != nil {
		return fmt.Errorf("failed to update security answers: %w", err)
	}
	return nil
}
