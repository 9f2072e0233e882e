// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery_test

import (
	"testing"
	"time"

	"codeberg.org/oliverandrich/gemaccounts/internal/services/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPin_DerivedFromSeed(t *testing.T) {
	_, q := recovery.Pin(recovery.Session{Seed: 42})
	assert.Equal(t, recovery.Question1, q)

	_, q = recovery.Pin(recovery.Session{Seed: 43})
	assert.Equal(t, recovery.Question2, q)
}

func TestPin_StoresQuestion(t *testing.T) {
	s, q := recovery.Pin(recovery.Session{Seed: 7})

	assert.Equal(t, q, s.PinnedQuestion)
}

func TestPin_IdempotentAcrossFailures(t *testing.T) {
	s, err := recovery.NewSession(time.Now(), time.Minute)
	require.NoError(t, err)
	s.VerifiedUsername = "tester"

	s, first := recovery.Pin(s)
	th := recovery.NewThrottle(5)

	for range 10 {
		s, _, err = th.Record(s, recovery.StageAnswer, false)
		require.NoError(t, err)

		var q recovery.Question
		s, q = recovery.Pin(s)
		assert.Equal(t, first, q)
	}
}

func TestPin_KeepsExistingPin(t *testing.T) {
	s := recovery.Session{Seed: 42, PinnedQuestion: recovery.Question2}

	_, q := recovery.Pin(s)

	assert.Equal(t, recovery.Question2, q)
}

func TestNewSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s, err := recovery.NewSession(now, 30*time.Minute)

	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, recovery.QuestionUnpinned, s.PinnedQuestion)
	assert.Zero(t, s.UsernameAttempts)
	assert.Zero(t, s.AnswerAttempts)
	assert.Equal(t, now.Add(30*time.Minute), s.ExpiresAt)
	assert.False(t, s.Expired(now.Add(29*time.Minute)))
	assert.True(t, s.Expired(now.Add(30*time.Minute)))
}

func TestNewSession_UniqueIDs(t *testing.T) {
	a, err := recovery.NewSession(time.Now(), time.Minute)
	require.NoError(t, err)
	b, err := recovery.NewSession(time.Now(), time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}
