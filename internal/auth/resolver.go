// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// placeholderPasswordBytes is the entropy of the discarded password given to
// accounts created by federated login.
const placeholderPasswordBytes = 32

// FederatedProfile is a verified profile returned by an external identity
// provider.
type FederatedProfile struct {
	Provider string
	Subject  string
	Email    string
}

// IdentityResolver maps a local or federated claim onto a single User.
type IdentityResolver struct {
	users  UserRepository
	creds  *CredentialStore
	logger *slog.Logger
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(users UserRepository, creds *CredentialStore, logger *slog.Logger) (*IdentityResolver, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if creds == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("credential store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{users: users, creds: creds, logger: logger}, nil
}

// ResolveLocal authenticates an email and password.
//
// An unknown email yields a KindNotFound error and a wrong password a
// KindAuthentication error. The password is verified in both cases (against a
// dummy hash when the user is missing) so timing does not reveal whether the
// account exists.
func (r *IdentityResolver) ResolveLocal(ctx context.Context, email, password string) (*User, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.creds.Timeout())
	user, lookupErr := r.users.GetByEmail(lookupCtx, email)
	cancel()

	var targetHash string
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
	default:
		return nil, WrapPersistence(lookupErr, "AUTH_LOGIN_FAILED", "get user by email")
	}

	valid, err := r.creds.VerifyPassword(ctx, password, targetHash)
	if err != nil {
		return nil, oops.With("email", email).Wrap(err)
	}

	if user == nil {
		return nil, NewError(KindNotFound, "AUTH_USER_NOT_FOUND", "User not found")
	}
	if !valid {
		return nil, NewError(KindAuthentication, "AUTH_INVALID_CREDENTIALS", "Invalid email or password")
	}
	return user, nil
}

// ResolveFederated returns the User for a verified federated profile,
// creating or linking one as needed. A user with the same email is linked to
// the federated identity; otherwise a user already linked to it is returned;
// otherwise a new user is created with an unusable password. Linking the same
// identity twice is a no-op.
func (r *IdentityResolver) ResolveFederated(ctx context.Context, profile FederatedProfile) (*User, error) {
	if profile.Subject == "" || profile.Email == "" {
		return nil, oops.Code("AUTH_FEDERATED_PROFILE_INVALID").
			With(kindKey, KindValidation).
			With("provider", profile.Provider).
			Public("Profile or profile emails is undefined").
			Errorf("federated profile requires subject and email")
	}

	user, err := r.linkByEmail(ctx, profile)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	ctx2, cancel := context.WithTimeout(ctx, r.creds.Timeout())
	user, err = r.users.GetByFederatedID(ctx2, profile.Subject)
	cancel()
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, WrapPersistence(err, "AUTH_FEDERATED_FAILED", "get user by federated id")
	}

	user, err = r.createFederated(ctx, profile)
	if errors.Is(err, ErrDuplicate) {
		// A concurrent first login won the insert; the store's unique
		// constraint is the only guard, so re-read and link.
		r.logger.DebugContext(ctx, "federated create raced, relinking", "provider", profile.Provider)
		user, err = r.linkByEmail(ctx, profile)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
			return nil, oops.Code("AUTH_FEDERATED_CONFLICT").
				With(kindKey, KindConflict).
				With("provider", profile.Provider).
				Wrap(err)
		}
		return nil, err
	}
	return user, nil
}

// linkByEmail finds the user with the profile email and attaches the
// federated ID. It returns an error wrapping ErrNotFound if there is no such user.
func (r *IdentityResolver) linkByEmail(ctx context.Context, profile FederatedProfile) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.creds.Timeout())
	defer cancel()

	user, err := r.users.GetByEmail(ctx, profile.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, WrapPersistence(err, "AUTH_FEDERATED_FAILED", "get user by email")
	}
	if !user.LinkFederatedID(profile.Subject) {
		return user, nil
	}
	if err := r.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code("AUTH_FEDERATED_CONFLICT").
				With(kindKey, KindConflict).
				With("provider", profile.Provider).
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		return nil, WrapPersistence(err, "AUTH_FEDERATED_FAILED", "link federated id")
	}
	r.logger.InfoContext(ctx, "linked federated identity",
		"provider", profile.Provider,
		"user_id", user.ID.String())
	return user, nil
}

func (r *IdentityResolver) createFederated(ctx context.Context, profile FederatedProfile) (*User, error) {
	placeholder := make([]byte, placeholderPasswordBytes)
	if _, err := rand.Read(placeholder); err != nil {
		return nil, WrapPersistence(err, "AUTH_FEDERATED_FAILED", "generate placeholder password")
	}
	// The plaintext is discarded, so the hash can never be matched by a
	// local login.
	hash, err := r.creds.HashPassword(ctx, hex.EncodeToString(placeholder))
	if err != nil {
		return nil, err
	}

	user, err := NewFederatedUser(profile.Email, hash)
	if err != nil {
		return nil, err
	}
	user.LinkFederatedID(profile.Subject)

	ctx, cancel := context.WithTimeout(ctx, r.creds.Timeout())
	defer cancel()
	if err := r.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return nil, WrapPersistence(err, "AUTH_FEDERATED_FAILED", "create user")
	}
	r.logger.InfoContext(ctx, "created user from federated profile",
		"provider", profile.Provider,
		"user_id", user.ID.String())
	return user, nil
}
