// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage identifies which form field an attempt was made for.
type Stage int

const (
	StageUsername Stage = iota + 1
	StageAnswer
)

func (s Stage) String() string {
	switch s {
	case StageUsername:
		return "username"
	case StageAnswer:
		return "answer"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Question is the index of a security question, 1 or 2.
type Question int

const (
	QuestionUnpinned Question = 0
	Question1        Question = 1
	Question2        Question = 2
)

// Session is the server-side state of one forgot-password attempt. It is a
// value: the throttle and selector take a Session and return the next one.
type Session struct { //nolint:govet // fieldalignment not critical
	ID               string
	Seed             uint64
	PinnedQuestion   Question
	UsernameAttempts int
	AnswerAttempts   int
	VerifiedUsername string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	// Version is owned by the SessionStore and bumped on every update.
	Version int64
}

// NewSession starts a session with zeroed counters that lives for ttl.
func NewSession(now time.Time, ttl time.Duration) (Session, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return Session{}, fmt.Errorf("failed to generate session seed: %w", err)
	}
	return Session{
		ID:        uuid.NewString(),
		Seed:      binary.BigEndian.Uint64(b[:]),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Expired reports whether the session's TTL has elapsed at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Attempts returns the failure counter for stage.
func (s Session) Attempts(stage Stage) int {
	if stage == StageAnswer {
		return s.AnswerAttempts
	}
	return s.UsernameAttempts
}
