// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"

	"codeberg.org/oliverandrich/gemaccounts/internal/database"
	"codeberg.org/oliverandrich/gemaccounts/internal/models"
	"codeberg.org/oliverandrich/gemaccounts/internal/repository"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/auth"
)

// Fixture credentials used by NewTestUser.
const (
	TestPIN     = "0000"
	TestAnswer1 = "dog"
	TestAnswer2 = "cat"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewAuthService returns a credential store that hashes with the minimum
// bcrypt cost.
func NewAuthService(repo *repository.Repository) *auth.Service {
	return auth.NewService(repo, auth.WithBcryptCost(bcrypt.MinCost))
}

// NewTestUser creates an active user with TestPIN and the fixture answers.
func NewTestUser(t *testing.T, repo *repository.Repository, username string) *models.User {
	t.Helper()
	user, err := NewAuthService(repo).CreateUser(context.Background(), auth.CreateUserParams{
		Username: username,
		PIN:      TestPIN,
		Answer1:  TestAnswer1,
		Answer2:  TestAnswer2,
		Active:   true,
	})
	require.NoError(t, err)
	return user
}

// NewInactiveTestUser creates a deactivated user with the fixture credentials.
func NewInactiveTestUser(t *testing.T, repo *repository.Repository, username string) *models.User {
	t.Helper()
	user := NewTestUser(t, repo, username)
	require.NoError(t, repo.SetUserActive(context.Background(), user.ID, false))
	user.IsActive = false
	return user
}

// AnswerFor returns the fixture answer for security question 1 or 2.
func AnswerFor(question int) string {
	if question == 2 {
		return TestAnswer2
	}
	return TestAnswer1
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewFormContext creates an Echo context carrying a url-encoded form body
// and the given cookies.
func NewFormContext(e *echo.Echo, method, path string, form url.Values, cookies ...*http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// ResponseCookie returns the cookie named name set on rec, or nil.
func ResponseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
