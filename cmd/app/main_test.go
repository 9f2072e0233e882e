// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/gemaccounts/internal/database"
	"codeberg.org/oliverandrich/gemaccounts/internal/repository"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/auth"
)

func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(context.Background(), append([]string{"gemaccounts", "--database-dsn", dsn, "--log-level", "error"}, args...))
	return out.String(), err
}

func openRepo(t *testing.T, dsn string) *repository.Repository {
	t.Helper()
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.New(db)
}

func TestUserCommands(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")

	out, err := run(t, dsn, "user", "create",
		"--username", "alice", "--pin", "1234", "--answer1", "Rex", "--answer2", "Miss Smith")
	require.NoError(t, err)
	assert.Contains(t, out, "created user alice")

	svc := auth.NewService(openRepo(t, dsn))
	_, err = svc.Login(context.Background(), "alice", "1234")
	require.NoError(t, err)

	_, err = run(t, dsn, "user", "deactivate", "alice")
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "alice", "1234")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	out, err = run(t, dsn, "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice\tinactive")

	_, err = run(t, dsn, "user", "activate", "alice")
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "alice", "1234")
	assert.NoError(t, err)
}

func TestUserCreate_InvalidPIN(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")

	_, err := run(t, dsn, "user", "create",
		"--username", "alice", "--pin", "12ab", "--answer1", "a", "--answer2", "b")

	assert.ErrorIs(t, err, auth.ErrInvalidPIN)
}

func TestUserSetAnswers(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	_, err := run(t, dsn, "user", "create",
		"--username", "alice", "--pin", "1234", "--answer1", "a", "--answer2", "b")
	require.NoError(t, err)

	_, err = run(t, dsn, "user", "set-answers", "--answer1", "Rex", "--answer2", "Lassie", "alice")
	require.NoError(t, err)

	repo := openRepo(t, dsn)
	user, err := auth.NewService(repo).FindUser(context.Background(), "alice")
	require.NoError(t, err)
	ok, err := auth.NewService(repo).VerifySecurityAnswer(context.Background(), user, 2, "lassie")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserActivate_Unknown(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")

	_, err := run(t, dsn, "user", "activate", "nobody")

	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUserActivate_MissingArgument(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")

	_, err := run(t, dsn, "user", "activate")

	assert.Error(t, err)
}

func TestDBCommands(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")

	_, err := run(t, dsn, "db", "migrate")
	require.NoError(t, err)

	_, err = run(t, dsn, "db", "prune")
	require.NoError(t, err)
}
