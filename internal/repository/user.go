// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/gemaccounts/internal/models"
)

const userColumns = `id, username, password_hash, answer1_hash, answer2_hash, is_active, created_at, updated_at`

// CreateUser inserts user and sets its ID and timestamps.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, answer1_hash, answer2_hash, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.Answer1Hash, user.Answer2Hash, user.IsActive, now, now)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// ListUsers returns all users ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserPassword replaces oldHash with newHash. It reports ErrNotFound
// if the user is gone or its hash no longer equals oldHash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, oldHash, newHash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND password_hash = ?`,
		newHash, time.Now().UTC(), id, oldHash)
}

// UpdateUserAnswers stores new hashes for both security answers.
func (r *Repository) UpdateUserAnswers(ctx context.Context, id int64, answer1Hash, answer2Hash string) error {
	return r.exec(ctx, `UPDATE users SET answer1_hash = ?, answer2_hash = ?, updated_at = ? WHERE id = ?`,
		answer1Hash, answer2Hash, time.Now().UTC(), id)
}

// SetUserActive activates or deactivates a user.
func (r *Repository) SetUserActive(ctx context.Context, id int64, active bool) error {
	return r.exec(ctx, `UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
}

// exec runs a single-row update and reports ErrNotFound if no row matched.
func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
