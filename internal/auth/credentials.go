// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// DefaultOperationTimeout bounds each credential or session store call.
const DefaultOperationTimeout = 5 * time.Second

// dummyPasswordHash is verified when a user doesn't exist or has no local
// password and the hasher cannot produce its own dummy. It is not a real
// credential and never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// DummyHasher is implemented by hashers that can encode a never-matching hash
// with their current cost parameters.
type DummyHasher interface {
	DummyHash() string
}

// CredentialStore hashes and verifies passwords and reads stored hashes.
// Hashing runs on a bounded pool of workers so a burst of logins cannot
// exhaust CPU or memory, and every call is bounded by the operation timeout.
type CredentialStore struct {
	users    UserRepository
	hasher   PasswordHasher
	dummy    string
	pool     *semaphore.Weighted
	timeout  time.Duration
	recorder Recorder
}

// CredentialOption configures a CredentialStore.
type CredentialOption func(*CredentialStore)

// WithHashWorkers sets the number of concurrent hashing operations.
func WithHashWorkers(n int) CredentialOption {
	return func(c *CredentialStore) {
		if n > 0 {
			c.pool = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithOperationTimeout sets the bound applied to each call.
func WithOperationTimeout(d time.Duration) CredentialOption {
	return func(c *CredentialStore) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCredentialRecorder sets the recorder for hash timings.
func WithCredentialRecorder(r Recorder) CredentialOption {
	return func(c *CredentialStore) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(users UserRepository, hasher PasswordHasher, opts ...CredentialOption) (*CredentialStore, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	c := &CredentialStore{
		users:    users,
		hasher:   hasher,
		dummy:    dummyPasswordHash,
		pool:     semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		timeout:  DefaultOperationTimeout,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	// Unknown accounts must verify at the configured cost, not a fixed one.
	if d, ok := hasher.(DummyHasher); ok {
		c.dummy = d.DummyHash()
	}
	return c, nil
}

// Timeout returns the bound applied to each call.
func (c *CredentialStore) Timeout() time.Duration {
	return c.timeout
}

// HashPassword produces a salted one-way hash of plaintext.
func (c *CredentialStore) HashPassword(ctx context.Context, plaintext string) (string, error) {
	var (
		hash    string
		hashErr error
	)
	err := c.run(ctx, "hash", func() {
		hash, hashErr = c.hasher.Hash(plaintext)
	})
	if err != nil {
		return "", err
	}
	if hashErr != nil {
		return "", oops.Code("AUTH_HASH_FAILED").
			With(kindKey, KindPersistence).
			With("operation", "hash password").
			Wrap(hashErr)
	}
	return hash, nil
}

// VerifyPassword reports whether plaintext matches hash. A mismatch is
// (false, nil); only a malformed hash is an error. An empty hash never
// matches, but still costs a full verification.
func (c *CredentialStore) VerifyPassword(ctx context.Context, plaintext, hash string) (bool, error) {
	target := hash
	if target == "" {
		target = c.dummy
	}
	var (
		ok        bool
		verifyErr error
	)
	err := c.run(ctx, "verify", func() {
		ok, verifyErr = c.hasher.Verify(plaintext, target)
	})
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, nil
	}
	if verifyErr != nil {
		return false, oops.Code("AUTH_VERIFY_FAILED").
			With(kindKey, KindPersistence).
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	return ok, nil
}

// NeedsUpgrade reports whether hash should be replaced after a successful login.
func (c *CredentialStore) NeedsUpgrade(hash string) bool {
	return hash != "" && c.hasher.NeedsUpgrade(hash)
}

// GetPasswordHash returns the stored hash for a user. The hash is empty for
// accounts without a local password.
func (c *CredentialStore) GetPasswordHash(ctx context.Context, userID ulid.ULID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("AUTH_USER_NOT_FOUND").
				With(kindKey, KindNotFound).
				With("user_id", userID.String()).
				Public("User not found").
				Wrap(err)
		}
		return "", WrapPersistence(err, "AUTH_CREDENTIAL_LOOKUP_FAILED", "get password hash")
	}
	return user.PasswordHash, nil
}

// run executes fn on the hashing pool. The caller gets control back when fn
// finishes or the bound expires, whichever comes first; in the latter case fn
// still completes in the background and releases its slot.
func (c *CredentialStore) run(ctx context.Context, op string, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.pool.Acquire(ctx, 1); err != nil {
		return oops.Code("AUTH_HASH_TIMEOUT").
			With(kindKey, KindPersistence).
			With("operation", op).
			With("stage", "acquire worker").
			Wrap(err)
	}

	done := make(chan struct{})
	start := time.Now()
	go func() {
		defer c.pool.Release(1)
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		c.recorder.HashDuration(op, time.Since(start))
		return nil
	case <-ctx.Done():
		return oops.Code("AUTH_HASH_TIMEOUT").
			With(kindKey, KindPersistence).
			With("operation", op).
			With("stage", "compute").
			Wrap(ctx.Err())
	}
}
