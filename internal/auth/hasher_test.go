// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/auth/authtest"
)

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces PHC encoded argon2id hash", func(t *testing.T) {
		hash, err := hasher.Hash("longpass1")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
		assert.Len(t, strings.Split(hash, "$"), 6)
	})

	t.Run("same password produces different hashes", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
	})
}

func TestNewArgon2idHasherWithParams_DefaultsZeroFields(t *testing.T) {
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 2048})
	p := hasher.Params()
	d := auth.DefaultArgon2Params()

	assert.Equal(t, uint32(2048), p.Memory)
	assert.Equal(t, d.Time, p.Time)
	assert.Equal(t, d.Threads, p.Threads)
	assert.Equal(t, d.SaltLen, p.SaltLen)
	assert.Equal(t, d.KeyLen, p.KeyLen)
}

func TestDummyHash(t *testing.T) {
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 3, Memory: 2048, Threads: 2})

	dummy := hasher.DummyHash()
	assert.True(t, strings.HasPrefix(dummy, "$argon2id$v=19$m=2048,t=3,p=2$"), dummy)

	fresh, err := hasher.Hash("longpass1")
	require.NoError(t, err)
	assert.Equal(t, strings.Split(fresh, "$")[3], strings.Split(dummy, "$")[3])
	assert.Len(t, dummy, len(fresh))

	ok, err := hasher.Verify("longpass1", dummy)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, hasher.NeedsUpgrade(dummy))
}

func TestVerifyPassword(t *testing.T) {
	hasher := authtest.FastHasher()

	t.Run("correct password verifies", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password is a mismatch not an error", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	malformed := []struct {
		name string
		hash string
		msg  string
	}{
		{"invalid format", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"wrong version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported argon2 version"},
		{"invalid version format", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"invalid parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA", ""},
		{"invalid hash base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
		{"zero threads", "$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$aGFzaA", "threads value"},
	}
	for _, tt := range malformed {
		t.Run(tt.name+" returns error", func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			assert.False(t, ok)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestVerifyBcrypt(t *testing.T) {
	hasher := authtest.FastHasher()
	legacy, err := bcrypt.GenerateFromPassword([]byte("longpass1"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("matching password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("longpass1", string(legacy))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password is a mismatch", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpass", string(legacy))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("truncated bcrypt hash is an error", func(t *testing.T) {
		_, err := hasher.Verify("longpass1", "$2a$10$short")
		assert.Error(t, err)
	})
}

func TestNeedsUpgrade(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("bcrypt hash needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"))
	})

	t.Run("current argon2id hash does not", func(t *testing.T) {
		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})

	t.Run("weaker argon2id hash does", func(t *testing.T) {
		hash, err := authtest.FastHasher().Hash("password")
		require.NoError(t, err)
		assert.True(t, hasher.NeedsUpgrade(hash))
	})

	t.Run("garbage does", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("$argon2id$broken"))
	})
}
