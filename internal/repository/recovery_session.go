// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"time"

	"codeberg.org/oliverandrich/gemaccounts/internal/services/recovery"
)

type recoverySessionRow struct {
	ID               string `db:"id"`
	Seed             int64  `db:"seed"`
	PinnedQuestion   int    `db:"pinned_question"`
	UsernameAttempts int    `db:"username_attempts"`
	AnswerAttempts   int    `db:"answer_attempts"`
	VerifiedUsername string `db:"verified_username"`
	CreatedAt        int64  `db:"created_at"`
	ExpiresAt        int64  `db:"expires_at"`
	Version          int64  `db:"version"`
}

func toRow(s recovery.Session) recoverySessionRow {
	return recoverySessionRow{
		ID:               s.ID,
		Seed:             int64(s.Seed), //nolint:gosec // stored bit for bit
		PinnedQuestion:   int(s.PinnedQuestion),
		UsernameAttempts: s.UsernameAttempts,
		AnswerAttempts:   s.AnswerAttempts,
		VerifiedUsername: s.VerifiedUsername,
		CreatedAt:        s.CreatedAt.UnixMilli(),
		ExpiresAt:        s.ExpiresAt.UnixMilli(),
		Version:          s.Version,
	}
}

func (row recoverySessionRow) session() recovery.Session {
	return recovery.Session{
		ID:               row.ID,
		Seed:             uint64(row.Seed), //nolint:gosec // stored bit for bit
		PinnedQuestion:   recovery.Question(row.PinnedQuestion),
		UsernameAttempts: row.UsernameAttempts,
		AnswerAttempts:   row.AnswerAttempts,
		VerifiedUsername: row.VerifiedUsername,
		CreatedAt:        time.UnixMilli(row.CreatedAt).UTC(),
		ExpiresAt:        time.UnixMilli(row.ExpiresAt).UTC(),
		Version:          row.Version,
	}
}

// SessionStore keeps recovery sessions in the recovery_sessions table.
type SessionStore struct {
	repo *Repository
}

var _ recovery.SessionStore = (*SessionStore)(nil)

// NewSessionStore returns a recovery.SessionStore backed by repo.
func NewSessionStore(repo *Repository) *SessionStore {
	return &SessionStore{repo: repo}
}

// Create inserts s with version 0.
func (st *SessionStore) Create(ctx context.Context, s recovery.Session) (recovery.Session, error) {
	s.Version = 0
	row := toRow(s)
	_, err := st.repo.db.NamedExecContext(ctx,
		`INSERT INTO recovery_sessions
		 (id, seed, pinned_question, username_attempts, answer_attempts, verified_username, created_at, expires_at, version)
		 VALUES (:id, :seed, :pinned_question, :username_attempts, :answer_attempts, :verified_username, :created_at, :expires_at, :version)`,
		row)
	if err != nil {
		return recovery.Session{}, err
	}
	return row.session(), nil
}

// Get loads a session by id.
func (st *SessionStore) Get(ctx context.Context, id string) (recovery.Session, error) {
	var row recoverySessionRow
	err := st.repo.db.GetContext(ctx, &row, `SELECT * FROM recovery_sessions WHERE id = ?`, id)
	if err != nil {
		if errors.Is(wrapError(err), ErrNotFound) {
			return recovery.Session{}, recovery.ErrSessionNotFound
		}
		return recovery.Session{}, err
	}
	return row.session(), nil
}

// Update writes the mutable fields of s if the stored version matches.
func (st *SessionStore) Update(ctx context.Context, s recovery.Session) (recovery.Session, error) {
	row := toRow(s)
	res, err := st.repo.db.NamedExecContext(ctx,
		`UPDATE recovery_sessions
		 SET pinned_question = :pinned_question,
		     username_attempts = :username_attempts,
		     answer_attempts = :answer_attempts,
		     verified_username = :verified_username,
		     version = version + 1
		 WHERE id = :id AND version = :version`,
		row)
	if err != nil {
		return recovery.Session{}, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return recovery.Session{}, err
	}
	if n == 0 {
		var exists int
		if err := st.repo.db.GetContext(ctx, &exists,
			`SELECT count(*) FROM recovery_sessions WHERE id = ?`, s.ID); err != nil {
			return recovery.Session{}, err
		}
		if exists == 0 {
			return recovery.Session{}, recovery.ErrSessionNotFound
		}
		return recovery.Session{}, recovery.ErrVersionConflict
	}

	row.Version++
	return row.session(), nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (st *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := st.repo.db.ExecContext(ctx, `DELETE FROM recovery_sessions WHERE id = ?`, id)
	return err
}

// DeleteExpiredRecoverySessions removes all sessions expired at now and
// returns how many were removed.
func (r *Repository) DeleteExpiredRecoverySessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recovery_sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
