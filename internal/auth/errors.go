// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a uniqueness constraint
// rejects a write.
var ErrDuplicate = errors.New("duplicate")

// Kind classifies an error independently of its message.
type Kind uint8

// Error kinds.
const (
	KindUnknown Kind = iota
	// KindValidation is malformed or missing input.
	KindValidation
	// KindNotFound is a missing user or resource.
	KindNotFound
	// KindAuthentication is a credential mismatch.
	KindAuthentication
	// KindUnauthenticated is a request without a valid session.
	KindUnauthenticated
	// KindForbidden is an ownership violation.
	KindForbidden
	// KindConflict is a uniqueness violation such as a duplicate email.
	KindConflict
	// KindPersistence is an unexpected store or infrastructure failure.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthentication:
		return "authentication"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in logs.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// kindKey is the oops context key holding the Kind.
const kindKey = "kind"

// NewError creates an error of the given kind whose message is safe to
// return to end users.
func NewError(kind Kind, code, public string) error {
	return oops.Code(code).
		With(kindKey, kind).
		Public(public).
		New(public)
}

// Wrap attaches a kind, code and operation to err.
func Wrap(err error, kind Kind, code, operation string) error {
	return oops.Code(code).
		With(kindKey, kind).
		With("operation", operation).
		Wrap(err)
}

// WrapPersistence wraps an unexpected store failure.
func WrapPersistence(err error, code, operation string) error {
	return Wrap(err, KindPersistence, code, operation)
}

// KindOf returns the Kind attached to err. When several layers of the chain
// carry a kind, the innermost one wins. Deadline and cancellation errors
// without a kind count as persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if kind, ok := oopsErr.Context()[kindKey].(Kind); ok {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindPersistence
	}
	return KindUnknown
}

// PublicMessage returns the user-facing message attached to err, or "" if
// there is none.
func PublicMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Public()
	}
	return ""
}

// IsKind reports whether err is of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
