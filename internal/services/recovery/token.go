// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"codeberg.org/oliverandrich/gemaccounts/internal/models"
)

const (
	// tokenVersion is carried in the "kid" header. Tokens with an unknown
	// version are rejected as tampered.
	tokenVersion = "v1"
	tokenIssuer  = "gemaccounts-recovery"

	DefaultTokenTTL = 15 * time.Minute
)

// TokenStatus is the outcome of verifying a reset token.
type TokenStatus int

const (
	TokenValid TokenStatus = iota + 1
	TokenExpired
	TokenUserMismatch
	TokenTampered
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	case TokenUserMismatch:
		return "user_mismatch"
	case TokenTampered:
		return "tampered"
	}
	return "unknown"
}

var errUnknownVersion = errors.New("unknown token version")

// Tokens issues and verifies reset tokens. A token is an HS256 JWT whose key
// is derived from the server secret and the user's current password hash, so
// any password change invalidates all tokens issued before it.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	derive func(*models.User) []byte
}

// NewTokens creates a token issuer. now defaults to time.Now.
func NewTokens(secret []byte, ttl time.Duration, now func() time.Time) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	t := &Tokens{secret: secret, ttl: ttl, now: now}
	t.derive = t.key
	return t
}

// TTL returns how long issued tokens stay valid.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for user.
func (t *Tokens) Issue(user *models.User) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   user.Username,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = tokenVersion

	signed, err := token.SignedString(t.derive(user))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks raw against user. Every status other than TokenValid must be
// treated as access denied. The user's key is derived and the signature
// checked for every well-formed token, whoever it names.
func (t *Tokens) Verify(user *models.User, raw string) TokenStatus {
	if raw == "" {
		return TokenTampered
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		key := t.derive(user)
		if kid, _ := token.Header["kid"].(string); kid != tokenVersion {
			return nil, errUnknownVersion
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, errUnknownVersion):
		return TokenTampered
	case claims.Subject != user.Username:
		return TokenUserMismatch
	case err == nil:
		return TokenValid
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenExpired
	}
	return TokenTampered
}

// key derives the per-user signing key from the credential state.
func (t *Tokens) key(user *models.User) []byte {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(tokenVersion))
	mac.Write([]byte{0})
	mac.Write([]byte(user.Username))
	mac.Write([]byte{0})
	mac.Write([]byte(user.PasswordHash))
	return mac.Sum(nil)
}
