// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// DefaultAvatar is the avatar reference of users who never uploaded one.
const DefaultAvatar = "avatar.png"

// MinPasswordLength is the minimum number of characters in a new password.
const MinPasswordLength = 8

// emailRegex matches addresses of the form local@domain.tld where:
// - local is dot-separated runs of word characters and hyphens
// - tld is 2 to 7 letters
var emailRegex = regexp.MustCompile(`^[\w-]+(\.[\w-]+)*@([\w-]+\.)+[a-zA-Z]{2,7}$`)

// User represents an account.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string // empty when the account has no local password
	Bio          string
	Avatar       string
	FederatedID  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of a User. It never includes credentials.
type Profile struct {
	ID        ulid.ULID `json:"id"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// NewUser creates a validated User with a fresh ID and the default avatar.
func NewUser(email, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	return newUser(email, passwordHash), nil
}

// NewFederatedUser creates a User for an address vouched for by an identity
// provider. Only RFC 5322 addr-spec syntax is required, so plus-tags,
// apostrophes and long TLDs that registration rejects are accepted.
func NewFederatedUser(email, passwordHash string) (*User, error) {
	if err := validateProviderEmail(email); err != nil {
		return nil, err
	}
	return newUser(email, passwordHash), nil
}

func newUser(email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Avatar:       DefaultAvatar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Profile returns the credential-free view of the user.
func (u *User) Profile() Profile {
	avatar := u.Avatar
	if avatar == "" {
		avatar = DefaultAvatar
	}
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Bio:       u.Bio,
		Avatar:    avatar,
		CreatedAt: u.CreatedAt,
	}
}

// HasLocalPassword reports whether the user can log in with a password.
func (u *User) HasLocalPassword() bool {
	return u.PasswordHash != ""
}

// LinkFederatedID attaches a federated identity. It reports whether the user
// changed.
func (u *User) LinkFederatedID(subject string) bool {
	if u.FederatedID != nil && *u.FederatedID == subject {
		return false
	}
	u.FederatedID = &subject
	u.UpdatedAt = time.Now().UTC()
	return true
}

// ValidateEmail checks an address against the accepted address grammar.
func ValidateEmail(email string) error {
	if email == "" || !emailRegex.MatchString(email) {
		return NewError(KindValidation, "AUTH_INVALID_EMAIL", "Invalid email")
	}
	return nil
}

// validateProviderEmail accepts a bare addr-spec. Display names and angle
// brackets are rejected so the stored email is exactly what was parsed.
func validateProviderEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return NewError(KindValidation, "AUTH_INVALID_EMAIL", "Invalid email")
	}
	return nil
}

// ValidateNewPassword checks that a password may be set on an account.
func ValidateNewPassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return NewError(KindValidation, "AUTH_PASSWORD_REQUIRED", "Password is required")
	}
	return checkPasswordLength(password)
}

// checkPasswordLength enforces MinPasswordLength counted in runes.
func checkPasswordLength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return NewError(KindValidation, "AUTH_PASSWORD_TOO_SHORT", "Password must be at least 8 characters long")
	}
	return nil
}

// UserRepository manages user persistence.
// Create and Update return ErrDuplicate when the email or federated ID is
// already taken; lookups return ErrNotFound.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByFederatedID retrieves a user by linked federated identity.
	GetByFederatedID(ctx context.Context, federatedID string) (*User, error)

	// Update updates email, bio, avatar and federated ID.
	Update(ctx context.Context, user *User) error

	// UpdatePassword updates only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Delete removes a user.
	Delete(ctx context.Context, id ulid.ULID) error
}
