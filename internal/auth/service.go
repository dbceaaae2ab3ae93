// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/queryhub/queryhub/pkg/errutil"
)

// Attempt methods reported to the Recorder.
const (
	MethodRegister  = "register"
	MethodLocal     = "local"
	MethodFederated = "federated"
)

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Users       UserRepository
	Credentials *CredentialStore
	Resolver    *IdentityResolver
	Sessions    *SessionManager
	Logger      *slog.Logger
	Recorder    Recorder
}

// Service implements registration, login, logout, password change and
// self-service account operations.
type Service struct {
	users    UserRepository
	creds    *CredentialStore
	resolver *IdentityResolver
	sessions *SessionManager
	logger   *slog.Logger
	recorder Recorder
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Users == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	case cfg.Credentials == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("credential store is required")
	case cfg.Resolver == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("identity resolver is required")
	case cfg.Sessions == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session manager is required")
	}
	s := &Service{
		users:    cfg.Users,
		creds:    cfg.Credentials,
		resolver: cfg.Resolver,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s, nil
}

// Sessions returns the session manager used by the service.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User    *User
	Token   string
	Session *Session
}

// Register creates an account. Input is validated before any store access.
func (s *Service) Register(ctx context.Context, email, password string) (user *User, err error) {
	defer func() { s.recorder.AuthAttempt(MethodRegister, OutcomeOf(err)) }()

	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateNewPassword(password); err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.creds.Timeout())
	_, lookupErr := s.users.GetByEmail(lookupCtx, email)
	cancel()
	switch {
	case lookupErr == nil:
		return nil, emailInUse()
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, WrapPersistence(lookupErr, "AUTH_REGISTER_FAILED", "get user by email")
	}

	hash, err := s.creds.HashPassword(ctx, password)
	if err != nil {
		return nil, err
	}
	user, err = NewUser(email, hash)
	if err != nil {
		return nil, err
	}

	createCtx, cancel := context.WithTimeout(ctx, s.creds.Timeout())
	defer cancel()
	if err := s.users.Create(createCtx, user); err != nil {
		// Two registrations raced past the lookup; the unique index decided.
		if errors.Is(err, ErrDuplicate) {
			return nil, emailInUse()
		}
		return nil, WrapPersistence(err, "AUTH_REGISTER_FAILED", "create user")
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

func emailInUse() error {
	return NewError(KindConflict, "AUTH_EMAIL_IN_USE", "Email already in use")
}

// Login authenticates an email and password and opens a session.
//
// An unknown email yields "User not found" while a wrong password yields the
// generic "Invalid email or password". This asymmetry reveals which emails
// are registered and is kept for client compatibility.
func (s *Service) Login(ctx context.Context, email, password string, meta Metadata) (result *LoginResult, err error) {
	defer func() { s.recorder.AuthAttempt(MethodLocal, OutcomeOf(err)) }()

	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.resolver.ResolveLocal(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.upgradeHash(ctx, user, password)

	return s.openSession(ctx, user, meta)
}

// LoginFederated resolves a verified federated profile to a user and opens a
// session.
func (s *Service) LoginFederated(ctx context.Context, profile FederatedProfile, meta Metadata) (result *LoginResult, err error) {
	defer func() { s.recorder.AuthAttempt(MethodFederated, OutcomeOf(err)) }()

	user, err := s.resolver.ResolveFederated(ctx, profile)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user, meta)
}

func (s *Service) openSession(ctx context.Context, user *User, meta Metadata) (*LoginResult, error) {
	token, session, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, oops.With("user_id", user.ID.String()).Wrap(err)
	}
	return &LoginResult{User: user, Token: token, Session: session}, nil
}

// upgradeHash rehashes a legacy or weak hash after a successful login.
// Failure only logs; the login still succeeds.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.creds.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := s.creds.HashPassword(ctx, password)
	if err != nil {
		errutil.LogError(s.logger, "password rehash failed", err)
		return
	}
	updateCtx, cancel := context.WithTimeout(ctx, s.creds.Timeout())
	defer cancel()
	if err := s.users.UpdatePassword(updateCtx, user.ID, hash); err != nil {
		errutil.LogError(s.logger, "password rehash failed", err)
		return
	}
	user.PasswordHash = hash
	s.logger.InfoContext(ctx, "upgraded password hash", "user_id", user.ID.String())
}

// Authenticate validates a session token and returns its principal.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	return s.sessions.Validate(ctx, token)
}

// CheckAuthentication returns the user behind an authenticated principal.
// A user deleted since the session was opened is KindNotFound.
func (s *Service) CheckAuthentication(ctx context.Context, principal Principal) (*User, error) {
	return s.GetUser(ctx, principal.UserID)
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id ulid.ULID) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.creds.Timeout())
	defer cancel()

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound(id, err)
		}
		return nil, WrapPersistence(err, "AUTH_USER_LOOKUP_FAILED", "get user by id")
	}
	return user, nil
}

func userNotFound(id ulid.ULID, err error) error {
	return oops.Code("AUTH_USER_NOT_FOUND").
		With(kindKey, KindNotFound).
		With("user_id", id.String()).
		Public("User not found").
		Wrap(err)
}

// Logout destroys the session behind token. Logging out without a valid
// session is a validation error rather than a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if _, err := s.sessions.Validate(ctx, token); err != nil {
		if IsKind(err, KindUnauthenticated) {
			return NewError(KindValidation, "AUTH_NO_SESSION", "No user to log out")
		}
		return err
	}
	return s.sessions.Destroy(ctx, token)
}

// ChangePassword replaces the password of targetID. Preconditions are checked
// in order and a failing one leaves the account untouched. On success every
// other session of the user is closed.
func (s *Service) ChangePassword(ctx context.Context, principal Principal, targetID ulid.ULID, oldPassword, newPassword string) error {
	if principal.UserID != targetID {
		return NewError(KindForbidden, "AUTH_FORBIDDEN", "You are not authorized to change this password")
	}
	if oldPassword == "" || newPassword == "" {
		return NewError(KindValidation, "AUTH_PASSWORD_REQUIRED", "Old password and new password are required")
	}
	if oldPassword == newPassword {
		return NewError(KindValidation, "AUTH_PASSWORD_UNCHANGED", "New password must be different from old password")
	}
	// Only length applies here, so an all-blank password of 8 or more
	// characters is accepted.
	if err := checkPasswordLength(newPassword); err != nil {
		return err
	}

	current, err := s.creds.GetPasswordHash(ctx, targetID)
	if err != nil {
		return err
	}
	ok, err := s.creds.VerifyPassword(ctx, oldPassword, current)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(KindValidation, "AUTH_PASSWORD_MISMATCH", "Current password is incorrect")
	}

	hash, err := s.creds.HashPassword(ctx, newPassword)
	if err != nil {
		return err
	}

	updateCtx, cancel := context.WithTimeout(ctx, s.creds.Timeout())
	defer cancel()
	if err := s.users.UpdatePassword(updateCtx, targetID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound(targetID, err)
		}
		return WrapPersistence(err, "AUTH_PASSWORD_UPDATE_FAILED", "update password")
	}

	if err := s.sessions.DestroyAllForUser(ctx, targetID, principal.TokenHash); err != nil {
		errutil.LogError(s.logger, "failed to close other sessions after password change", err)
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", targetID.String())
	return nil
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged. Email and Password are rejected if present.
type ProfileUpdate struct {
	Bio      *string
	Avatar   *string
	Email    *string
	Password *string
}

func (u ProfileUpdate) empty() bool {
	bioEmpty := u.Bio == nil || *u.Bio == ""
	avatarEmpty := u.Avatar == nil || *u.Avatar == "" || *u.Avatar == DefaultAvatar
	return bioEmpty && avatarEmpty
}

// UpdateProfile edits the bio and avatar of targetID. Only the account owner
// may edit it.
func (s *Service) UpdateProfile(ctx context.Context, principal Principal, targetID ulid.ULID, update ProfileUpdate) (*User, error) {
	if err := Authorize(principal, targetID, "update", "profile"); err != nil {
		return nil, err
	}
	if update.Email != nil || update.Password != nil || update.empty() {
		return nil, NewError(KindValidation, "AUTH_NO_UPDATE_DATA", "No update data provided")
	}

	user, err := s.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if update.Bio != nil && *update.Bio != "" {
		user.Bio = *update.Bio
	}
	if update.Avatar != nil && strings.TrimSpace(*update.Avatar) != "" {
		user.Avatar = strings.TrimSpace(*update.Avatar)
	}

	updateCtx, cancel := context.WithTimeout(ctx, s.creds.Timeout())
	defer cancel()
	if err := s.users.Update(updateCtx, user); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound(targetID, err)
		}
		return nil, WrapPersistence(err, "AUTH_PROFILE_UPDATE_FAILED", "update user")
	}
	return user, nil
}

// DeleteAccount removes targetID and all of its sessions. Only the account
// owner may delete it. Posts and comments go with it.
func (s *Service) DeleteAccount(ctx context.Context, principal Principal, targetID ulid.ULID) error {
	if err := Authorize(principal, targetID, "delete", "profile"); err != nil {
		return err
	}

	if err := s.sessions.DestroyAllForUser(ctx, targetID, ""); err != nil {
		return err
	}

	deleteCtx, cancel := context.WithTimeout(ctx, s.creds.Timeout())
	defer cancel()
	if err := s.users.Delete(deleteCtx, targetID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound(targetID, err)
		}
		return WrapPersistence(err, "AUTH_USER_DELETE_FAILED", "delete user")
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", targetID.String())
	return nil
}
