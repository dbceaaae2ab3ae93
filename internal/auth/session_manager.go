// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/queryhub/queryhub/pkg/errutil"
)

// SessionManager issues, validates and destroys sessions.
type SessionManager struct {
	sessions SessionRepository
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	recorder Recorder
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionTTL sets the fixed session lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSessionTimeout sets the bound applied to each store call.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSessionRecorder sets the recorder for session events.
func WithSessionRecorder(r Recorder) SessionOption {
	return func(m *SessionManager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(sessions SessionRepository, opts ...SessionOption) (*SessionManager, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("sessions repository is required")
	}
	m := &SessionManager{
		sessions: sessions,
		ttl:      DefaultSessionTTL,
		timeout:  DefaultOperationTimeout,
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the fixed session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create opens a session for userID and returns the plaintext token.
func (m *SessionManager) Create(ctx context.Context, userID ulid.ULID, meta Metadata) (string, *Session, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", nil, WrapPersistence(err, "SESSION_CREATE_FAILED", "generate session token")
	}

	session, err := NewSession(userID, tokenHash, meta.UserAgent, meta.IPAddress, m.now().Add(m.ttl))
	if err != nil {
		return "", nil, WrapPersistence(err, "SESSION_CREATE_FAILED", "create session")
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.sessions.Create(ctx, session); err != nil {
		return "", nil, WrapPersistence(err, "SESSION_CREATE_FAILED", "persist session")
	}
	m.recorder.SessionEvent("created", 1)
	return token, session, nil
}

// Validate returns the principal for a token. A missing, unknown or expired
// token is a KindUnauthenticated error.
func (m *SessionManager) Validate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, NewError(KindUnauthenticated, "SESSION_TOKEN_EMPTY", "Not authenticated")
	}

	tokenHash := HashSessionToken(token)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	session, err := m.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, NewError(KindUnauthenticated, "SESSION_INVALID", "Not authenticated")
		}
		return Principal{}, WrapPersistence(err, "SESSION_VALIDATE_FAILED", "get session by token hash")
	}

	if session.IsExpiredAt(m.now()) {
		if delErr := m.sessions.DeleteByTokenHash(ctx, tokenHash); delErr == nil {
			m.recorder.SessionEvent("expired", 1)
		}
		return Principal{}, NewError(KindUnauthenticated, "SESSION_EXPIRED", "Not authenticated")
	}

	return Principal{
		UserID:    session.UserID,
		SessionID: session.ID,
		TokenHash: session.TokenHash,
	}, nil
}

// Destroy removes the session for a token. Destroying a missing session is
// not an error.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.sessions.DeleteByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return WrapPersistence(err, "SESSION_DESTROY_FAILED", "delete session")
	}
	m.recorder.SessionEvent("destroyed", 1)
	return nil
}

// DestroyAllForUser removes every session of a user except the one whose
// token hash is keep (empty removes all).
func (m *SessionManager) DestroyAllForUser(ctx context.Context, userID ulid.ULID, keep string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	n, err := m.sessions.DeleteByUser(ctx, userID, keep)
	if err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With(kindKey, KindPersistence).
			With("operation", "delete user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	m.recorder.SessionEvent("destroyed", int(n))
	return nil
}

// Sweep removes expired sessions and returns how many were removed.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	n, err := m.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, WrapPersistence(err, "SESSION_SWEEP_FAILED", "delete expired sessions")
	}
	m.recorder.SessionEvent("swept", int(n))
	return n, nil
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (m *SessionManager) RunJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				errutil.LogError(logger, "session sweep failed", err)
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "swept expired sessions", "count", n)
			}
		}
	}
}
