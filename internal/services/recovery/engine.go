// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/gemaccounts/internal/models"
	"codeberg.org/oliverandrich/gemaccounts/internal/validation"
)

const (
	DefaultSessionTTL = 30 * time.Minute

	// maxUpdateRetries bounds the compare-and-swap loop on session updates.
	maxUpdateRetries = 10
)

// dummyUser stands in for unknown usernames at the reset stage so that the
// token check runs either way.
var dummyUser = models.User{PasswordHash: "-"}

// Options configures an Engine.
type Options struct {
	// Questions holds the texts of security question 1 and 2.
	Questions   [2]string
	SessionTTL  time.Duration
	MaxFailures int
	// UsernameFilter reports usernames that must be treated as invalid.
	UsernameFilter func(username string) bool
	Now            func() time.Time
}

// Prompt is the security question shown for a session.
type Prompt struct {
	Question Question
	Text     string
}

// AnswerRequest is the forgot-password form. Username and answer are
// submitted together.
type AnswerRequest struct {
	Username string `form:"username" validate:"required,max=30,username"`
	Answer   string `form:"random_security_question_answer" validate:"required,max=128"`
}

// Grant is handed out after the security question was answered correctly.
type Grant struct {
	Username string
	Token    string
}

// ResetRequest is the reset-password form.
type ResetRequest struct {
	Username   string `form:"username"`
	Token      string `form:"token"`
	PIN        string `form:"password" validate:"required,pin"`
	ConfirmPIN string `form:"confirm_password" validate:"required,pin"`
}

// Engine drives the recovery flow: username and answer, then token, then
// new PIN.
type Engine struct {
	creds     CredentialStore
	store     SessionStore
	tokens    *Tokens
	throttle  Throttle
	questions [2]string
	ttl       time.Duration
	filter    func(string) bool
	now       func() time.Time
}

// NewEngine wires an Engine.
func NewEngine(creds CredentialStore, store SessionStore, tokens *Tokens, opts Options) *Engine {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.UsernameFilter == nil {
		opts.UsernameFilter = func(string) bool { return false }
	}
	return &Engine{
		creds:     creds,
		store:     store,
		tokens:    tokens,
		throttle:  NewThrottle(opts.MaxFailures),
		questions: opts.Questions,
		ttl:       opts.SessionTTL,
		filter:    opts.UsernameFilter,
		now:       opts.Now,
	}
}

// Begin returns the live session for sessionID, or a new one with zeroed
// counters if it is missing or expired, together with its pinned question.
func (e *Engine) Begin(ctx context.Context, sessionID string) (Session, Prompt, error) {
	s, err := e.mutate(ctx, sessionID, func(s Session) (Session, error) {
		s, _ = Pin(s)
		return s, nil
	})
	if err == nil {
		return s, e.prompt(s.PinnedQuestion), nil
	}
	if !errors.Is(err, ErrSessionExpired) {
		return Session{}, Prompt{}, err
	}

	s, err = NewSession(e.now(), e.ttl)
	if err != nil {
		return Session{}, Prompt{}, err
	}
	s, _ = Pin(s)

	s, err = e.store.Create(ctx, s)
	if err != nil {
		return Session{}, Prompt{}, fmt.Errorf("failed to create recovery session: %w", err)
	}

	slog.Debug("recovery_session_started", "expires_at", s.ExpiresAt)

	return s, e.prompt(s.PinnedQuestion), nil
}

// Submit evaluates the forgot-password form within the session. On success
// the returned Grant carries a reset token for the user.
//
// An answer attempt is claimed in the session before the answer is checked
// and handed back only when it was correct.
func (e *Engine) Submit(ctx context.Context, sessionID string, req AnswerRequest) (Grant, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Answer = strings.TrimSpace(req.Answer)

	var user *models.User
	s, err := e.mutate(ctx, sessionID, func(s Session) (Session, error) {
		next, u, err := e.claim(ctx, s, req)
		user = u
		return next, err
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrThrottled):
		slog.Warn("recovery_locked", "username", req.Username,
			"username_attempts", s.UsernameAttempts, "answer_attempts", s.AnswerAttempts)
		return Grant{}, err
	case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInactiveAccount):
		slog.Warn("recovery_username_rejected", "username", req.Username,
			"reason", err.Error(), "attempts", s.UsernameAttempts)
		return Grant{}, err
	case errors.Is(err, ErrVersionConflict):
		slog.Warn("recovery_session_contended", "username", req.Username)
		return Grant{}, err
	default:
		return Grant{}, err
	}

	ok, err := e.creds.VerifySecurityAnswer(ctx, user, int(s.PinnedQuestion), req.Answer)
	if err != nil {
		e.release(ctx, sessionID)
		return Grant{}, fmt.Errorf("failed to verify security answer: %w", err)
	}
	if !ok {
		slog.Warn("recovery_answer_rejected", "username", req.Username,
			"question", int(s.PinnedQuestion), "attempts", s.AnswerAttempts)
		return Grant{}, ErrWrongAnswer
	}

	e.release(ctx, sessionID)

	token, err := e.tokens.Issue(user)
	if err != nil {
		return Grant{}, err
	}

	slog.Info("recovery_token_issued", "username", user.Username)

	return Grant{Username: user.Username, Token: token}, nil
}

// claim runs the username stage of one submission against s and reserves an
// answer attempt. It returns the next session state together with the user
// whose answer is to be checked.
func (e *Engine) claim(ctx context.Context, s Session, req AnswerRequest) (Session, *models.User, error) {
	if e.throttle.Locked(s, StageUsername) {
		return s, nil, ErrThrottled
	}
	if err := validation.Struct(req); err != nil {
		return s, nil, validationError(err)
	}

	user, err := e.lookup(ctx, req.Username)
	if errors.Is(err, ErrInvalidUsername) || errors.Is(err, ErrInactiveAccount) {
		s.VerifiedUsername = ""
		next, _, _ := e.throttle.Record(s, StageUsername, false)
		return next, nil, err
	}
	if err != nil {
		return s, nil, err
	}

	s.VerifiedUsername = user.Username
	s, _ = Pin(s)

	s, decision, err := e.throttle.Reserve(s, StageAnswer)
	switch {
	case err != nil:
		return s, nil, err
	case decision == Locked:
		return s, nil, ErrThrottled
	}
	return s, user, nil
}

// release hands back the answer attempt reserved by claim. A failure leaves
// the attempt counted.
func (e *Engine) release(ctx context.Context, sessionID string) {
	_, err := e.mutate(ctx, sessionID, func(s Session) (Session, error) {
		return e.throttle.Release(s, StageAnswer), nil
	})
	if err != nil {
		slog.Warn("recovery_release_failed", "error", err)
	}
}

// lookup resolves the username stage. Filtered and unknown usernames yield
// ErrInvalidUsername.
func (e *Engine) lookup(ctx context.Context, username string) (*models.User, error) {
	if e.filter(username) {
		return nil, ErrInvalidUsername
	}
	user, err := e.creds.FindUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidUsername
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	return user, nil
}

// CheckLink verifies the username and token of a reset link.
func (e *Engine) CheckLink(ctx context.Context, username, token string) error {
	_, err := e.authorize(ctx, username, token)
	return err
}

// Reset sets a new PIN for the user the token was issued to.
func (e *Engine) Reset(ctx context.Context, req ResetRequest) error {
	user, err := e.authorize(ctx, req.Username, req.Token)
	if err != nil {
		return err
	}

	if err := validation.Struct(req); err != nil {
		return validationError(err)
	}
	if req.PIN != req.ConfirmPIN {
		return ErrPINMismatch
	}

	err = e.creds.SetPassword(ctx, user, req.PIN)
	if errors.Is(err, ErrCredentialChanged) {
		return e.deny(user.Username, "credential_changed")
	}
	if err != nil {
		return fmt.Errorf("failed to set pin: %w", err)
	}

	slog.Info("recovery_reset_success", "username", user.Username)

	return nil
}

// authorize returns the user a valid token was issued for. All failures
// collapse into ErrAccessDenied.
func (e *Engine) authorize(ctx context.Context, username, token string) (*models.User, error) {
	if username == "" || token == "" {
		return nil, e.deny(username, "missing_parameters")
	}

	user, err := e.creds.FindUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		unknown := dummyUser
		unknown.Username = username
		e.tokens.Verify(&unknown, token)
		return nil, e.deny(username, "unknown_user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	status := e.tokens.Verify(user, token)
	if !user.IsActive {
		return nil, e.deny(username, "inactive")
	}
	if status != TokenValid {
		return nil, e.deny(username, status.String())
	}
	return user, nil
}

func (e *Engine) deny(username, reason string) error {
	slog.Warn("recovery_reset_denied", "username", username, "reason", reason)
	return fmt.Errorf("%w: %s", ErrAccessDenied, reason)
}

// mutate loads the live session, applies fn and stores the result with a
// compare-and-swap on Version. On a conflict fn runs again on the fresh
// state, so every call is counted exactly once. The error returned by fn is
// passed through after its session state has been stored.
func (e *Engine) mutate(ctx context.Context, id string, fn func(Session) (Session, error)) (Session, error) {
	for range maxUpdateRetries {
		s, err := e.load(ctx, id)
		if err != nil {
			return Session{}, err
		}

		next, fnErr := fn(s)
		if next == s {
			return s, fnErr
		}

		stored, err := e.store.Update(ctx, next)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, ErrSessionExpired
		}
		if err != nil {
			return Session{}, fmt.Errorf("failed to update recovery session: %w", err)
		}
		return stored, fnErr
	}
	return Session{}, fmt.Errorf("failed to update recovery session after %d attempts: %w",
		maxUpdateRetries, ErrVersionConflict)
}

func (e *Engine) load(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrSessionExpired
	}

	s, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return Session{}, ErrSessionExpired
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load recovery session: %w", err)
	}

	if s.Expired(e.now()) {
		if err := e.store.Delete(ctx, id); err != nil {
			slog.Warn("recovery_session_delete_failed", "error", err)
		}
		return Session{}, ErrSessionExpired
	}
	return s, nil
}

func (e *Engine) prompt(q Question) Prompt {
	if q != Question1 && q != Question2 {
		return Prompt{}
	}
	return Prompt{Question: q, Text: e.questions[q-1]}
}

func validationError(err error) error {
	fe, ok := validation.FirstError(err)
	if !ok {
		return err
	}
	return &ValidationError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()}
}
