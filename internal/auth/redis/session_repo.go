// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package redis provides a Redis-backed auth.SessionRepository.
//
// Each session lives under session:<token hash> with a native TTL equal to
// its remaining lifetime. A set user_sessions:<user id> indexes the token
// hashes of a user so all of them can be removed at once. The index has no
// TTL; DeleteExpired prunes members whose session key is gone, and Redis
// drops the set once it is empty.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/queryhub/queryhub/internal/auth"
)

const (
	sessionPrefix     = "session:"
	userSessionPrefix = "user_sessions:"
)

type sessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRepository implements auth.SessionRepository on Redis.
type SessionRepository struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewSessionRepository creates a SessionRepository. prefix namespaces every
// key and may be empty.
func NewSessionRepository(client goredis.UniversalClient, prefix string) *SessionRepository {
	return &SessionRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *SessionRepository) sessionKey(tokenHash string) string {
	return r.prefix + sessionPrefix + tokenHash
}

func (r *SessionRepository) userKey(userID string) string {
	return r.prefix + userSessionPrefix + userID
}

// Create stores a session with a TTL matching its expiry.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("expires_at", session.ExpiresAt).
			Errorf("session already expired")
	}

	data, err := json.Marshal(sessionRecord{
		ID:        session.ID.String(),
		UserID:    session.UserID.String(),
		TokenHash: session.TokenHash,
		UserAgent: session.UserAgent,
		IPAddress: session.IPAddress,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "encode session").Wrap(err)
	}

	userKey := r.userKey(session.UserID.String())
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(session.TokenHash), data, ttl)
		pipe.SAdd(ctx, userKey, session.TokenHash)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(tokenHash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return decodeSession(data)
}

// DeleteByTokenHash removes a session and its index entry.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	key := r.sessionKey(tokenHash)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "load session").Wrap(err)
	}

	session, err := decodeSession(data)
	if err != nil {
		// Unreadable record: remove it anyway.
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(delErr)
		}
		return nil
	}

	var deleted *goredis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		deleted = pipe.Del(ctx, key)
		pipe.SRem(ctx, r.userKey(session.UserID.String()), tokenHash)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(err)
	}
	if deleted.Val() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes every session of a user except exceptTokenHash.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID, exceptTokenHash string) (int64, error) {
	userKey := r.userKey(userID.String())
	hashes, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "list user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	keys := make([]string, 0, len(hashes))
	members := make([]any, 0, len(hashes))
	for _, h := range hashes {
		if h == exceptTokenHash {
			continue
		}
		keys = append(keys, r.sessionKey(h))
		members = append(members, h)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	var deleted *goredis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, userKey, members...)
		return nil
	})
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return deleted.Val(), nil
}

// DeleteExpired prunes index entries whose sessions Redis has already
// expired and returns how many were pruned. Session keys expire natively.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var pruned int64
	iter := r.client.Scan(ctx, 0, r.prefix+userSessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		hashes, err := r.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
				With("operation", "list user sessions").
				Wrap(err)
		}
		for _, h := range hashes {
			n, err := r.client.Exists(ctx, r.sessionKey(h)).Result()
			if err != nil {
				return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
					With("operation", "check session").
					Wrap(err)
			}
			if n > 0 {
				continue
			}
			if err := r.client.SRem(ctx, userKey, h).Err(); err != nil {
				return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
					With("operation", "prune index").
					Wrap(err)
			}
			pruned++
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "scan user indexes").
			Wrap(err)
	}
	return pruned, nil
}

func decodeSession(data []byte) (*auth.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").With("operation", "decode session").Wrap(err)
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", rec.ID).Wrap(err)
	}
	userID, err := ulid.Parse(rec.UserID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").With("user_id", rec.UserID).Wrap(err)
	}
	return &auth.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: rec.TokenHash,
		UserAgent: rec.UserAgent,
		IPAddress: rec.IPAddress,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
