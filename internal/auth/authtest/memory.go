// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package authtest provides in-memory auth repositories and fast hashing
// parameters for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/queryhub/queryhub/internal/auth"
)

// FastHasher returns an argon2id hasher with parameters cheap enough for
// unit tests.
func FastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time:    1,
		Memory:  1024,
		Threads: 1,
		SaltLen: 16,
		KeyLen:  32,
	})
}

// UserStore is an in-memory auth.UserRepository that enforces the same
// uniqueness rules as the database.
type UserStore struct {
	mu    sync.Mutex
	users map[ulid.ULID]auth.User
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[ulid.ULID]auth.User)}
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *UserStore) conflicts(u *auth.User) bool {
	for id, other := range s.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) {
			return true
		}
		if u.FederatedID != nil && other.FederatedID != nil && *u.FederatedID == *other.FederatedID {
			return true
		}
	}
	return false
}

func clone(u auth.User) *auth.User {
	if u.FederatedID != nil {
		fid := *u.FederatedID
		u.FederatedID = &fid
	}
	return &u
}

func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok || s.conflicts(user) {
		return auth.ErrDuplicate
	}
	s.users[user.ID] = *clone(*user)
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(u), nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *UserStore) GetByFederatedID(_ context.Context, federatedID string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.FederatedID != nil && *u.FederatedID == federatedID {
			return clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *UserStore) Update(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if s.conflicts(user) {
		return auth.ErrDuplicate
	}
	updated := *clone(*user)
	updated.PasswordHash = existing.PasswordHash
	updated.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = updated
	return nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *UserStore) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// SessionStore is an in-memory auth.SessionRepository.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]auth.Session
	now      func() time.Time
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]auth.Session), now: time.Now}
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) Create(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.TokenHash]; ok {
		return auth.ErrDuplicate
	}
	s.sessions[session.TokenHash] = *session
	return nil
}

func (s *SessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &sess, nil
}

func (s *SessionStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenHash]; !ok {
		return auth.ErrNotFound
	}
	delete(s.sessions, tokenHash)
	return nil
}

func (s *SessionStore) DeleteByUser(_ context.Context, userID ulid.ULID, exceptTokenHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, sess := range s.sessions {
		if sess.UserID == userID && hash != exceptTokenHash {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for hash, sess := range s.sessions {
		if sess.IsExpiredAt(now) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

var (
	_ auth.UserRepository    = (*UserStore)(nil)
	_ auth.SessionRepository = (*SessionStore)(nil)
)
