// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package auth provides authentication and authorization for QueryHub.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a validated email
//   - NewSession - creates a Session with validated user and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Components
//
//   - CredentialStore - password hashing and verification on a bounded worker pool
//   - IdentityResolver - maps local or federated claims onto a single User
//   - SessionManager - issues, validates and destroys persistent sessions
//   - Service - the register/login/logout/password protocol
//   - Authorize - resource ownership checks
//
// # Errors
//
// Errors carry a Kind (see KindOf) and, when safe to show to end users, a
// public message (see PublicMessage). Transports map kinds to status codes.
package auth
