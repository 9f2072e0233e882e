// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session stores the recovery session id in a signed cookie.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"codeberg.org/oliverandrich/gemaccounts/internal/config"
)

// KeyLength is the required length of decoded hash and block keys.
const KeyLength = 32

// Data is the content of a recovery cookie.
type Data struct {
	SessionID string    `json:"sid"`
	ExpiresAt time.Time `json:"exp"`
}

// Manager encodes and decodes recovery cookies.
type Manager struct {
	codec  *securecookie.SecureCookie
	name   string
	maxAge int
	secure bool
}

// NewManager creates a cookie manager. An empty hash key is replaced by a
// random one, which invalidates cookies on restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, generated, err := DecodeKey("session hash key", cfg.HashKey)
	if err != nil {
		return nil, err
	}
	if generated {
		slog.Warn("session_hash_key_generated", "hint", "set session-hash-key to keep recovery sessions across restarts")
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey, _, err = DecodeKey("session block key", cfg.BlockKey)
		if err != nil {
			return nil, err
		}
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &Manager{
		codec:  codec,
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: secure,
	}, nil
}

// DecodeKey decodes a hex key of KeyLength bytes. An empty value yields a
// fresh random key and generated=true.
func DecodeKey(name, value string) (key []byte, generated bool, err error) {
	if value == "" {
		key = make([]byte, KeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, false, fmt.Errorf("failed to generate %s: %w", name, err)
		}
		return key, true, nil
	}

	key, err = hex.DecodeString(value)
	if err != nil {
		return nil, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	if len(key) != KeyLength {
		return nil, false, fmt.Errorf("invalid %s: must be %d bytes, got %d", name, KeyLength, len(key))
	}
	return key, false, nil
}

// Create returns a cookie pointing at the recovery session sessionID.
func (m *Manager) Create(sessionID string) (*http.Cookie, error) {
	data := Data{
		SessionID: sessionID,
		ExpiresAt: time.Now().Add(time.Duration(m.maxAge) * time.Second),
	}

	encoded, err := m.codec.Encode(m.name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	return m.cookie(encoded, m.maxAge), nil
}

// Parse reads the recovery cookie from r. A missing, invalid or expired
// cookie yields nil without an error.
func (m *Manager) Parse(r *http.Request) (*Data, error) {
	c, err := r.Cookie(m.name)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data Data
	if err := m.codec.Decode(m.name, c.Value, &data); err != nil {
		return nil, nil //nolint:nilerr // invalid cookies are treated as absent
	}
	if time.Now().After(data.ExpiresAt) {
		return nil, nil
	}
	return &data, nil
}

// Clear returns a cookie that removes the recovery cookie.
func (m *Manager) Clear() *http.Cookie {
	return m.cookie("", -1)
}

// Name returns the cookie name.
func (m *Manager) Name() string {
	return m.name
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
