// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authorize checks that principal owns the resource. Callers load the
// resource first so a missing resource reports NotFound before Forbidden.
func Authorize(principal Principal, ownerID ulid.ULID, action, resource string) error {
	if principal.UserID == ownerID && ownerID != (ulid.ULID{}) {
		return nil
	}
	msg := fmt.Sprintf("You are not authorized to %s this %s", action, resource)
	return oops.Code("AUTH_FORBIDDEN").
		With(kindKey, KindForbidden).
		With("action", action).
		With("resource", resource).
		With("user_id", principal.UserID.String()).
		Public(msg).
		New(msg)
}
