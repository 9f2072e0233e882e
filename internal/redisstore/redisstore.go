// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package redisstore keeps recovery sessions in Redis. Each session is one
// JSON value whose TTL ends when the session expires.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"codeberg.org/oliverandrich/gemaccounts/internal/services/recovery"
)

const keyPrefix = "gemaccounts:recovery:"

var errSessionExists = errors.New("recovery session already exists")

type record struct {
	Seed             uint64 `json:"seed"`
	PinnedQuestion   int    `json:"q"`
	UsernameAttempts int    `json:"ua"`
	AnswerAttempts   int    `json:"aa"`
	VerifiedUsername string `json:"vu,omitempty"`
	CreatedAt        int64  `json:"ca"`
	ExpiresAt        int64  `json:"ea"`
	Version          int64  `json:"v"`
}

func encode(s recovery.Session) ([]byte, error) {
	return json.Marshal(record{
		Seed:             s.Seed,
		PinnedQuestion:   int(s.PinnedQuestion),
		UsernameAttempts: s.UsernameAttempts,
		AnswerAttempts:   s.AnswerAttempts,
		VerifiedUsername: s.VerifiedUsername,
		CreatedAt:        s.CreatedAt.UnixMilli(),
		ExpiresAt:        s.ExpiresAt.UnixMilli(),
		Version:          s.Version,
	})
}

func decode(id string, data []byte) (recovery.Session, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return recovery.Session{}, fmt.Errorf("failed to decode recovery session: %w", err)
	}
	return recovery.Session{
		ID:               id,
		Seed:             r.Seed,
		PinnedQuestion:   recovery.Question(r.PinnedQuestion),
		UsernameAttempts: r.UsernameAttempts,
		AnswerAttempts:   r.AnswerAttempts,
		VerifiedUsername: r.VerifiedUsername,
		CreatedAt:        time.UnixMilli(r.CreatedAt).UTC(),
		ExpiresAt:        time.UnixMilli(r.ExpiresAt).UTC(),
		Version:          r.Version,
	}, nil
}

// Open connects to the Redis server at url, e.g. redis://localhost:6379/0.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Store implements recovery.SessionStore on Redis.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

var _ recovery.SessionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to turn session expiry into key TTLs. It
// must match the clock of the engine writing the sessions.
func WithClock(now func() time.Time) Option {
	return func(st *Store) {
		if now != nil {
			st.now = now
		}
	}
}

// New returns a Store using client. The clock defaults to time.Now.
func New(client *redis.Client, opts ...Option) *Store {
	st := &Store{client: client, now: time.Now}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

func (st *Store) key(id string) string {
	return keyPrefix + id
}

func (st *Store) ttl(s recovery.Session) time.Duration {
	return max(s.ExpiresAt.Sub(st.now()), time.Millisecond)
}

// Create stores s with version 0. Existing ids are never overwritten.
func (st *Store) Create(ctx context.Context, s recovery.Session) (recovery.Session, error) {
	s.Version = 0
	data, err := encode(s)
	if err != nil {
		return recovery.Session{}, err
	}

	ok, err := st.client.SetNX(ctx, st.key(s.ID), data, st.ttl(s)).Result()
	if err != nil {
		return recovery.Session{}, fmt.Errorf("failed to store recovery session: %w", err)
	}
	if !ok {
		return recovery.Session{}, errSessionExists
	}
	return decode(s.ID, data)
}

// Get loads a session by id.
func (st *Store) Get(ctx context.Context, id string) (recovery.Session, error) {
	data, err := st.client.Get(ctx, st.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return recovery.Session{}, recovery.ErrSessionNotFound
	}
	if err != nil {
		return recovery.Session{}, fmt.Errorf("failed to load recovery session: %w", err)
	}
	return decode(id, data)
}

// Update replaces the stored session if its version still equals s.Version.
// The key is watched, so a concurrent writer makes the transaction fail
// with recovery.ErrVersionConflict.
func (st *Store) Update(ctx context.Context, s recovery.Session) (recovery.Session, error) {
	key := st.key(s.ID)
	var stored recovery.Session

	err := st.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}

		current, err := decode(s.ID, data)
		if err != nil {
			return err
		}
		if current.Version != s.Version {
			return recovery.ErrVersionConflict
		}

		next := s
		next.Version++
		updated, err := encode(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}

		stored, err = decode(s.ID, updated)
		return err
	}, key)

	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, redis.TxFailedErr):
		return recovery.Session{}, recovery.ErrVersionConflict
	case errors.Is(err, redis.Nil):
		return recovery.Session{}, recovery.ErrSessionNotFound
	case errors.Is(err, recovery.ErrVersionConflict):
		return recovery.Session{}, err
	}
	return recovery.Session{}, fmt.Errorf("failed to update recovery session: %w", err)
}

// Delete removes a session. Deleting an unknown id is not an error.
func (st *Store) Delete(ctx context.Context, id string) error {
	if err := st.client.Del(ctx, st.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete recovery session: %w", err)
	}
	return nil
}
