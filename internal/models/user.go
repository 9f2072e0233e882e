// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// User is an account that can recover its PIN by answering one of two
// security questions.
type User struct { //nolint:govet // fieldalignment not critical for models
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Answer1Hash  string    `db:"answer1_hash" json:"-"`
	Answer2Hash  string    `db:"answer2_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AnswerHash returns the stored hash for security question 1 or 2.
func (u *User) AnswerHash(question int) (string, bool) {
	switch question {
	case 1:
		return u.Answer1Hash, true
	case 2:
		return u.Answer2Hash, true
	}
	return "", false
}
