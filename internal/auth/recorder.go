// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth

import "time"

// Outcome labels the result of an authentication attempt.
type Outcome string

// Authentication outcomes.
const (
	OutcomeSuccess            Outcome = "success"
	OutcomeInvalidCredentials Outcome = "invalid_credentials"
	OutcomeUserNotFound       Outcome = "user_not_found"
	OutcomeValidationError    Outcome = "validation_error"
	OutcomeError              Outcome = "error"
)

// OutcomeOf classifies the error returned by a login or registration.
func OutcomeOf(err error) Outcome {
	switch KindOf(err) {
	case KindUnknown:
		if err == nil {
			return OutcomeSuccess
		}
		return OutcomeError
	case KindAuthentication:
		return OutcomeInvalidCredentials
	case KindNotFound:
		return OutcomeUserNotFound
	case KindValidation, KindConflict:
		return OutcomeValidationError
	default:
		return OutcomeError
	}
}

// Recorder receives authentication events, typically for metrics.
type Recorder interface {
	// AuthAttempt records a register or login attempt by method ("local",
	// "federated", "register").
	AuthAttempt(method string, outcome Outcome)

	// SessionEvent records session lifecycle events ("created", "destroyed",
	// "expired", "swept").
	SessionEvent(event string, count int)

	// HashDuration records the time spent in a hashing operation ("hash", "verify").
	HashDuration(op string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) AuthAttempt(string, Outcome)        {}
func (nopRecorder) SessionEvent(string, int)           {}
func (nopRecorder) HashDuration(string, time.Duration) {}
