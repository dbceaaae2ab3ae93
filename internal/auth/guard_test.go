// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/pkg/errutil"
)

func TestPrincipalContext(t *testing.T) {
	_, ok := auth.PrincipalFromContext(context.Background())
	assert.False(t, ok)

	p := auth.Principal{UserID: ulid.Make(), SessionID: ulid.Make(), TokenHash: "h"}
	got, ok := auth.PrincipalFromContext(auth.WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestAuthorize(t *testing.T) {
	owner := ulid.Make()

	t.Run("owner is allowed", func(t *testing.T) {
		assert.NoError(t, auth.Authorize(auth.Principal{UserID: owner}, owner, "update", "post"))
	})

	t.Run("other user is forbidden with action message", func(t *testing.T) {
		err := auth.Authorize(auth.Principal{UserID: ulid.Make()}, owner, "delete", "comment")
		errutil.AssertErrorCode(t, err, "AUTH_FORBIDDEN")
		assert.Equal(t, auth.KindForbidden, auth.KindOf(err))
		assert.Equal(t, "You are not authorized to delete this comment", auth.PublicMessage(err))
	})

	t.Run("zero principal never owns a zero owner", func(t *testing.T) {
		err := auth.Authorize(auth.Principal{}, ulid.ULID{}, "update", "post")
		assert.Equal(t, auth.KindForbidden, auth.KindOf(err))
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, auth.KindUnknown, auth.KindOf(nil))
	assert.Equal(t, auth.KindPersistence, auth.KindOf(context.DeadlineExceeded))

	inner := auth.NewError(auth.KindNotFound, "X", "missing")
	outer := auth.WrapPersistence(inner, "Y", "op")
	assert.Equal(t, auth.KindNotFound, auth.KindOf(outer), "innermost kind wins")
	assert.Equal(t, "missing", auth.PublicMessage(outer))

	assert.Equal(t, "forbidden", auth.KindForbidden.String())
	assert.Equal(t, auth.OutcomeSuccess, auth.OutcomeOf(nil))
	assert.Equal(t, auth.OutcomeInvalidCredentials, auth.OutcomeOf(auth.NewError(auth.KindAuthentication, "A", "a")))
}
