// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package content_test

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/auth/authtest"
	"github.com/queryhub/queryhub/internal/content"
	"github.com/queryhub/queryhub/internal/content/contenttest"
	"github.com/queryhub/queryhub/pkg/errutil"
)

type fixture struct {
	svc   *content.Service
	store *contenttest.Store
	users *authtest.UserStore
	alice auth.Principal
	bob   auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := authtest.NewUserStore()
	store := contenttest.NewStore(users)
	svc, err := content.NewService(store.Posts(), store.Comments(), users, nil)
	require.NoError(t, err)

	f := &fixture{svc: svc, store: store, users: users}
	f.alice = f.addUser(t, "alice@example.com")
	f.bob = f.addUser(t, "bob@example.com")
	return f
}

func (f *fixture) addUser(t *testing.T, email string) auth.Principal {
	t.Helper()
	u, err := auth.NewUser(email, "hash")
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), u))
	return auth.Principal{UserID: u.ID, SessionID: ulid.Make()}
}

func (f *fixture) post(t *testing.T, p auth.Principal) *content.Post {
	t.Helper()
	post, err := f.svc.CreatePost(context.Background(), p, "Title", "Body")
	require.NoError(t, err)
	return post
}

func assertPublic(t *testing.T, err error, kind auth.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, auth.KindOf(err))
	assert.Equal(t, msg, auth.PublicMessage(err))
}

func TestNewService_RequiresRepositories(t *testing.T) {
	users := authtest.NewUserStore()
	store := contenttest.NewStore(users)

	_, err := content.NewService(nil, store.Comments(), users, nil)
	errutil.AssertErrorCode(t, err, "CONTENT_INVALID_CONFIG")
	_, err = content.NewService(store.Posts(), nil, users, nil)
	errutil.AssertErrorCode(t, err, "CONTENT_INVALID_CONFIG")
	_, err = content.NewService(store.Posts(), store.Comments(), nil, nil)
	errutil.AssertErrorCode(t, err, "CONTENT_INVALID_CONFIG")
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("author is the principal", func(t *testing.T) {
		post := f.post(t, f.alice)
		assert.Equal(t, f.alice.UserID, post.AuthorID)
		require.NotNil(t, post.Author)
		assert.Equal(t, "alice@example.com", post.Author.Email)
		assert.Equal(t, auth.DefaultAvatar, post.Author.Avatar)
		assert.Empty(t, post.Comments)
	})

	for _, tc := range []struct{ title, body string }{{"", "body"}, {"title", ""}, {"  ", "\t"}} {
		_, err := f.svc.CreatePost(ctx, f.alice, tc.title, tc.body)
		assertPublic(t, err, auth.KindValidation, "Missing required fields: 'title' and 'content' are required.")
	}
}

func TestGetPost(t *testing.T) {
	f := newFixture(t)
	post := f.post(t, f.alice)

	got, err := f.svc.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Title", got.Title)

	_, err = f.svc.GetPost(context.Background(), ulid.Make())
	assertPublic(t, err, auth.KindNotFound, "Post not found")
}

func TestListPostsByAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, f.alice)
	f.post(t, f.alice)
	f.post(t, f.bob)

	posts, err := f.svc.ListPostsByAuthor(ctx, f.alice.UserID)
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	carol := f.addUser(t, "carol@example.com")
	posts, err = f.svc.ListPostsByAuthor(ctx, carol.UserID)
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)

	_, err = f.svc.ListPostsByAuthor(ctx, ulid.Make())
	assertPublic(t, err, auth.KindNotFound, "No author found for this ID")

	all, err := f.svc.ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.post(t, f.alice)

	t.Run("owner updates", func(t *testing.T) {
		updated, err := f.svc.UpdatePost(ctx, f.alice, post.ID, "New", "Text")
		require.NoError(t, err)
		assert.Equal(t, "New", updated.Title)

		got, err := f.svc.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "Text", got.Content)
	})

	t.Run("other user is forbidden and nothing changes", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, f.bob, post.ID, "Hijack", "Text")
		assertPublic(t, err, auth.KindForbidden, "You are not authorized to update this post")

		got, err := f.svc.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "New", got.Title)
	})

	t.Run("missing post is not found before forbidden", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, f.bob, ulid.Make(), "T", "C")
		assertPublic(t, err, auth.KindNotFound, "Post not found")
	})

	t.Run("fields are validated", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, f.alice, post.ID, "", "C")
		assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	})
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.post(t, f.alice)
	_, err := f.svc.CreateComment(ctx, f.bob, post.ID, "first")
	require.NoError(t, err)
	_, err = f.svc.CreateComment(ctx, f.alice, post.ID, "second")
	require.NoError(t, err)

	err = f.svc.DeletePost(ctx, f.bob, post.ID)
	assertPublic(t, err, auth.KindForbidden, "You are not authorized to delete this post")
	assert.Equal(t, 2, f.store.CommentCount())

	require.NoError(t, f.svc.DeletePost(ctx, f.alice, post.ID))
	assert.Zero(t, f.store.CommentCount())

	err = f.svc.DeletePost(ctx, f.alice, post.ID)
	assertPublic(t, err, auth.KindNotFound, "Post not found")
}

// failingDeletes is a post repository whose deletes fail before changing
// anything.
type failingDeletes struct {
	content.PostRepository
}

func (failingDeletes) Delete(context.Context, ulid.ULID) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestDeletePost_FailureKeepsComments(t *testing.T) {
	users := authtest.NewUserStore()
	store := contenttest.NewStore(users)
	svc, err := content.NewService(failingDeletes{store.Posts()}, store.Comments(), users, nil)
	require.NoError(t, err)
	f := &fixture{svc: svc, store: store, users: users}
	f.alice = f.addUser(t, "alice@example.com")
	ctx := context.Background()

	post := f.post(t, f.alice)
	_, err = svc.CreateComment(ctx, f.alice, post.ID, "kept")
	require.NoError(t, err)

	err = svc.DeletePost(ctx, f.alice, post.ID)
	assert.Equal(t, auth.KindPersistence, auth.KindOf(err))
	assert.Equal(t, 1, f.store.CommentCount())
	got, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, got.Comments, 1)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.post(t, f.alice)

	t.Run("create uses the principal as author", func(t *testing.T) {
		c, err := f.svc.CreateComment(ctx, f.bob, post.ID, "nice")
		require.NoError(t, err)
		assert.Equal(t, f.bob.UserID, c.AuthorID)
		require.NotNil(t, c.Author)
		assert.Equal(t, "bob@example.com", c.Author.Email)
	})

	t.Run("create requires content", func(t *testing.T) {
		_, err := f.svc.CreateComment(ctx, f.bob, post.ID, " ")
		assertPublic(t, err, auth.KindValidation, "Missing required field")
		_, err = f.svc.CreateComment(ctx, f.bob, ulid.ULID{}, "x")
		assertPublic(t, err, auth.KindValidation, "Missing required field")
	})

	t.Run("create on missing post", func(t *testing.T) {
		_, err := f.svc.CreateComment(ctx, f.bob, ulid.Make(), "x")
		assertPublic(t, err, auth.KindNotFound, "No post found")
	})

	t.Run("list", func(t *testing.T) {
		comments, err := f.svc.ListComments(ctx, post.ID)
		require.NoError(t, err)
		assert.Len(t, comments, 1)

		_, err = f.svc.ListComments(ctx, ulid.Make())
		assertPublic(t, err, auth.KindNotFound, "No post found")
	})

	t.Run("post reads include comments", func(t *testing.T) {
		got, err := f.svc.GetPost(ctx, post.ID)
		require.NoError(t, err)
		require.Len(t, got.Comments, 1)
		assert.Equal(t, "nice", got.Comments[0].Content)
	})
}

func TestUpdateComment_LoadsBeforeAuthorizing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.post(t, f.alice)
	comment, err := f.svc.CreateComment(ctx, f.bob, post.ID, "original")
	require.NoError(t, err)

	t.Run("missing comment is not found for any caller", func(t *testing.T) {
		_, err := f.svc.UpdateComment(ctx, f.alice, ulid.Make(), "x")
		assertPublic(t, err, auth.KindNotFound, "Comment not found")
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		_, err := f.svc.UpdateComment(ctx, f.alice, comment.ID, "edited")
		assertPublic(t, err, auth.KindForbidden, "You are not authorized to update this comment")

		list, err := f.svc.ListComments(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "original", list[0].Content)
	})

	t.Run("owner updates", func(t *testing.T) {
		updated, err := f.svc.UpdateComment(ctx, f.bob, comment.ID, "edited")
		require.NoError(t, err)
		assert.Equal(t, "edited", updated.Content)
	})

	t.Run("owner must send content", func(t *testing.T) {
		_, err := f.svc.UpdateComment(ctx, f.bob, comment.ID, "")
		assertPublic(t, err, auth.KindValidation, "Missing required field")
	})
}

func TestDeleteComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.post(t, f.alice)
	comment, err := f.svc.CreateComment(ctx, f.bob, post.ID, "bye")
	require.NoError(t, err)

	err = f.svc.DeleteComment(ctx, f.alice, comment.ID)
	assertPublic(t, err, auth.KindForbidden, "You are not authorized to delete this comment")

	require.NoError(t, f.svc.DeleteComment(ctx, f.bob, comment.ID))

	err = f.svc.DeleteComment(ctx, f.bob, comment.ID)
	assertPublic(t, err, auth.KindNotFound, "Comment not found")
}

type failingPosts struct {
	content.PostRepository
}

func (failingPosts) Get(context.Context, ulid.ULID) (*content.Post, error) {
	return nil, errors.New("connection refused")
}

func TestGetPost_StoreFailureIsPersistence(t *testing.T) {
	users := authtest.NewUserStore()
	store := contenttest.NewStore(users)
	svc, err := content.NewService(failingPosts{store.Posts()}, store.Comments(), users, nil)
	require.NoError(t, err)

	_, err = svc.GetPost(context.Background(), ulid.Make())
	require.Error(t, err)
	assert.Equal(t, auth.KindPersistence, auth.KindOf(err))
	assert.Empty(t, auth.PublicMessage(err))
}

func TestParseID(t *testing.T) {
	id := ulid.Make()
	got, err := content.ParseID(id.String(), "X", "Invalid Post ID")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = content.ParseID("42", "CONTENT_INVALID_POST_ID", "Invalid Post ID")
	assertPublic(t, err, auth.KindValidation, "Invalid Post ID")
	errutil.AssertErrorCode(t, err, "CONTENT_INVALID_POST_ID")
}
