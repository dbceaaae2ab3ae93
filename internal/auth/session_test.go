// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/pkg/errutil"
)

func TestGenerateSessionToken(t *testing.T) {
	t.Run("generates 64 hex character token and its hash", func(t *testing.T) {
		token, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
		assert.Len(t, hash, 64)
		assert.NotEqual(t, token, hash)
		assert.Equal(t, auth.HashSessionToken(token), hash)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, _, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		token2, _, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		assert.NotEqual(t, token1, token2)
	})
}

func TestHashSessionToken(t *testing.T) {
	assert.Equal(t, auth.HashSessionToken("token"), auth.HashSessionToken("token"))
	assert.NotEqual(t, auth.HashSessionToken("token1"), auth.HashSessionToken("token2"))
	// sha256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		auth.HashSessionToken("abc"))
}

func TestSession_IsExpiredAt(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	session := &auth.Session{
		ID:        ulid.Make(),
		UserID:    ulid.Make(),
		TokenHash: "somehash",
		ExpiresAt: base.Add(time.Hour),
		CreatedAt: base,
	}

	assert.False(t, session.IsExpiredAt(base.Add(30*time.Minute)))
	assert.True(t, session.IsExpiredAt(base.Add(2*time.Hour)))
	assert.True(t, session.IsExpiredAt(base.Add(time.Hour)), "a session is invalid from its expiry instant")
}

func TestSession_IsExpired(t *testing.T) {
	fresh := &auth.Session{ExpiresAt: time.Now().Add(time.Hour)}
	stale := &auth.Session{ExpiresAt: time.Now().Add(-time.Nanosecond)}
	assert.False(t, fresh.IsExpired())
	assert.True(t, stale.IsExpired())
}

func TestNewSession(t *testing.T) {
	userID := ulid.Make()
	expiry := time.Now().Add(auth.DefaultSessionTTL)

	t.Run("creates valid session", func(t *testing.T) {
		session, err := auth.NewSession(userID, "abc123", "Mozilla/5.0", "192.168.1.1", expiry)
		require.NoError(t, err)
		assert.Equal(t, userID, session.UserID)
		assert.Equal(t, "abc123", session.TokenHash)
		assert.Equal(t, "Mozilla/5.0", session.UserAgent)
		assert.Equal(t, "192.168.1.1", session.IPAddress)
		assert.Equal(t, expiry, session.ExpiresAt)
		assert.NotEqual(t, ulid.ULID{}, session.ID)
		assert.False(t, session.CreatedAt.IsZero())
	})

	t.Run("truncates oversized user agent", func(t *testing.T) {
		session, err := auth.NewSession(userID, "abc123", strings.Repeat("x", 2000), "", expiry)
		require.NoError(t, err)
		assert.Len(t, session.UserAgent, 512)
	})

	t.Run("rejects zero user ID", func(t *testing.T) {
		_, err := auth.NewSession(ulid.ULID{}, "abc123", "", "", expiry)
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_USER")
	})

	t.Run("rejects empty token hash", func(t *testing.T) {
		_, err := auth.NewSession(userID, "", "", "", expiry)
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_HASH")
	})

	t.Run("rejects zero expiry time", func(t *testing.T) {
		_, err := auth.NewSession(userID, "abc123", "", "", time.Time{})
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_EXPIRY")
	})
}

func TestSessionConstants(t *testing.T) {
	assert.Equal(t, 32, auth.SessionTokenBytes)
	assert.Equal(t, 24*time.Hour, auth.DefaultSessionTTL)
}
