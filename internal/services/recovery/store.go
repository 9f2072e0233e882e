// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

import (
	"context"

	"codeberg.org/oliverandrich/gemaccounts/internal/models"
)

// SessionStore persists recovery sessions keyed by Session.ID.
type SessionStore interface {
	Create(ctx context.Context, s Session) (Session, error)
	// Get returns ErrSessionNotFound for unknown ids.
	Get(ctx context.Context, id string) (Session, error)
	// Update stores s if the stored version still equals s.Version and returns
	// the session with its new version. A stale version yields
	// ErrVersionConflict.
	Update(ctx context.Context, s Session) (Session, error)
	Delete(ctx context.Context, id string) error
}

// CredentialStore gives the engine access to user accounts.
type CredentialStore interface {
	// FindUser returns ErrUserNotFound for unknown usernames.
	FindUser(ctx context.Context, username string) (*models.User, error)
	VerifySecurityAnswer(ctx context.Context, user *models.User, question int, answer string) (bool, error)
	// SetPassword returns ErrCredentialChanged if the stored password hash
	// differs from user.PasswordHash.
	SetPassword(ctx context.Context, user *models.User, pin string) error
}
