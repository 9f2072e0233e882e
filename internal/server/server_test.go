// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/gemaccounts/internal/config"
	"codeberg.org/oliverandrich/gemaccounts/internal/repository"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/auth"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/recovery"
	"codeberg.org/oliverandrich/gemaccounts/internal/testutil"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func testConfig() *config.Config {
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "localhost", Port: 8080, BaseURL: "http://localhost:8080", MaxBodySize: 1},
		Database: config.DatabaseConfig{DSN: ":memory:"},
		Session: config.SessionConfig{
			HashKey: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		},
		Recovery: config.RecoveryConfig{
			TokenSecret: "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210",
			Question1:   "What is the name of your friend?",
			Question2:   "What is the name of your favourite teacher?",
		},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults mirrors what NewFromCLI does after reading flags.
func applyDefaults(cfg *config.Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = config.StoreDatabase
	}
	cfg.Recovery.SessionTTL = 30 * time.Minute
	cfg.Recovery.TokenTTL = 15 * time.Minute
	cfg.Recovery.MaxAttempts = 5
	cfg.Recovery.PruneInterval = time.Minute
	cfg.Session.CookieName = "_recovery"
	cfg.Session.MaxAge = 1800
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// client keeps cookies between requests against the server handler.
type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, s *Server) *client {
	return &client{t: t, handler: s.Handler(), cookies: map[string]*http.Cookie{}}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, target, nil))
}

// post submits form with the CSRF token found in page.
func (c *client) post(target, page string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	m := csrfPattern.FindStringSubmatch(page)
	require.Len(c.t, m, 2, "page must carry a csrf token")
	form.Set("csrf_token", m[1])

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func answerFor(page string, cfg *config.Config) string {
	if strings.Contains(page, cfg.Recovery.Question2) {
		return testutil.AnswerFor(2)
	}
	return testutil.AnswerFor(1)
}

func createUser(t *testing.T, s *Server, username string) {
	t.Helper()
	_, err := auth.NewService(s.repo).CreateUser(context.Background(), auth.CreateUserParams{
		Username: username,
		PIN:      testutil.TestPIN,
		Answer1:  testutil.TestAnswer1,
		Answer2:  testutil.TestAnswer2,
		Active:   true,
	})
	require.NoError(t, err)
}

func runRecovery(t *testing.T, s *Server, cfg *config.Config) {
	t.Helper()
	createUser(t, s, "alice")
	c := newClient(t, s)

	rec := c.get("/forgot-password")
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()

	rec = c.post("/forgot-password", page, url.Values{
		"username":                        {"alice"},
		"random_security_question_answer": {answerFor(page, cfg)},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	link := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(link, "/reset-password?"))

	rec = c.get(link)
	require.Equal(t, http.StatusOK, rec.Code)
	page = rec.Body.String()

	rec = c.post(link, page, url.Values{"password": {"2468"}, "confirm_password": {"2468"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/reset-password/done", rec.Header().Get("Location"))

	rec = c.get("/reset-password/done")
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := auth.NewService(s.repo).Login(context.Background(), "alice", "2468")
	require.NoError(t, err)

	// Reset links are single-use.
	rec = c.get(link)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_RecoveryFlow(t *testing.T) {
	cfg := testConfig()
	s := newTestServer(t, cfg)

	runRecovery(t, s, cfg)
}

func TestServer_RecoveryFlowRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Store = config.StoreConfig{Backend: config.StoreRedis, RedisURL: "redis://" + mr.Addr()}
	s := newTestServer(t, cfg)
	require.NotNil(t, s.redis)

	runRecovery(t, s, cfg)
}

func TestServer_RedisUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Backend: config.StoreRedis, RedisURL: "redis://127.0.0.1:1"}

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestServer_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Recovery.Question1 = ""

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestServer_InvalidTokenSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Recovery.TokenSecret = "not-hex"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "recovery token secret")
}

func TestServer_ResetWithoutParams(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := newClient(t, s).get("/reset-password")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_PostWithoutCSRF(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/forgot-password", strings.NewReader("username=alice"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := newClient(t, s).do(req)

	assert.Contains(t, []int{http.StatusBadRequest, http.StatusForbidden}, rec.Code)
}

func TestServer_ExpiredSessionRestarts(t *testing.T) {
	s := newTestServer(t, testConfig())
	createUser(t, s, "alice")
	c := newClient(t, s)

	rec := c.get("/forgot-password")
	page := rec.Body.String()

	// Drop every session behind the cookie's back.
	pruneExpiredSessions(context.Background(), s.repo, time.Now().Add(time.Hour))

	rec = c.post("/forgot-password", page, url.Values{
		"username":                        {"alice"},
		"random_security_question_answer": {"dog"},
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/forgot-password", rec.Header().Get("Location"))

	rec = c.get("/forgot-password")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := newClient(t, s).get("/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_NotFound(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := newClient(t, s).get("/does-not-exist")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")
}

func TestPruneExpiredSessions(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	store := repository.NewSessionStore(repo)
	ctx := context.Background()
	now := time.Now()

	expired, err := recovery.NewSession(now.Add(-time.Hour), 30*time.Minute)
	require.NoError(t, err)
	live, err := recovery.NewSession(now, 30*time.Minute)
	require.NoError(t, err)
	_, err = store.Create(ctx, expired)
	require.NoError(t, err)
	_, err = store.Create(ctx, live)
	require.NoError(t, err)

	pruneExpiredSessions(ctx, repo, now)

	_, err = store.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, recovery.ErrSessionNotFound)
	_, err = store.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestRunPruner_StopsOnCancel(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runPruner(ctx, repo, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}

func TestServer_TrailingSlash(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := newClient(t, s).get("/forgot-password/")

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/forgot-password", rec.Header().Get("Location"))
}
