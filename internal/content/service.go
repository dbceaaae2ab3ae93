// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package content

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/queryhub/queryhub/internal/auth"
)

// Public messages.
const (
	msgPostFieldsRequired = "Missing required fields: 'title' and 'content' are required."
	msgCommentFieldMissed = "Missing required field"
	msgPostNotFound       = "Post not found"
	msgNoPostFound        = "No post found"
	msgAuthorNotFound     = "No author found for this ID"
	msgCommentNotFound    = "Comment not found"
)

// DefaultTimeout bounds each repository call.
const DefaultTimeout = 5 * time.Second

// Service implements post and comment operations.
type Service struct {
	posts    PostRepository
	comments CommentRepository
	users    UserLookup
	timeout  time.Duration
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(posts PostRepository, comments CommentRepository, users UserLookup, logger *slog.Logger) (*Service, error) {
	switch {
	case posts == nil:
		return nil, oops.Code("CONTENT_INVALID_CONFIG").Errorf("posts repository is required")
	case comments == nil:
		return nil, oops.Code("CONTENT_INVALID_CONFIG").Errorf("comments repository is required")
	case users == nil:
		return nil, oops.Code("CONTENT_INVALID_CONFIG").Errorf("users repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		posts:    posts,
		comments: comments,
		users:    users,
		timeout:  DefaultTimeout,
		logger:   logger,
	}, nil
}

// ListPosts returns every post with its author and comments.
func (s *Service) ListPosts(ctx context.Context) ([]*Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, auth.WrapPersistence(err, "CONTENT_POST_LIST_FAILED", "list posts")
	}
	return posts, nil
}

// GetPost returns one post with its author and comments.
func (s *Service) GetPost(ctx context.Context, id ulid.ULID) (*Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.loadPost(ctx, id, msgPostNotFound)
}

// ListPostsByAuthor returns the posts of an existing user, which may be empty.
func (s *Service) ListPostsByAuthor(ctx context.Context, authorID ulid.ULID) ([]*Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.users.GetByID(ctx, authorID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, notFound("CONTENT_AUTHOR_NOT_FOUND", msgAuthorNotFound)
		}
		return nil, auth.WrapPersistence(err, "CONTENT_POST_LIST_FAILED", "get author")
	}

	posts, err := s.posts.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, auth.WrapPersistence(err, "CONTENT_POST_LIST_FAILED", "list posts by author")
	}
	if posts == nil {
		posts = []*Post{}
	}
	return posts, nil
}

// CreatePost stores a post authored by the principal.
func (s *Service) CreatePost(ctx context.Context, p auth.Principal, title, body string) (*Post, error) {
	if blank(title) || blank(body) {
		return nil, auth.NewError(auth.KindValidation, "CONTENT_POST_FIELDS_REQUIRED", msgPostFieldsRequired)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	post := &Post{
		ID:        ulid.Make(),
		AuthorID:  p.UserID,
		Title:     title,
		Content:   body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, auth.WrapPersistence(err, "CONTENT_POST_CREATE_FAILED", "create post")
	}

	created, err := s.posts.Get(ctx, post.ID)
	if err != nil {
		return nil, auth.WrapPersistence(err, "CONTENT_POST_CREATE_FAILED", "reload post")
	}
	return created, nil
}

// UpdatePost changes the title and content of a post owned by the principal.
func (s *Service) UpdatePost(ctx context.Context, p auth.Principal, id ulid.ULID, title, body string) (*Post, error) {
	if blank(title) || blank(body) {
		return nil, auth.NewError(auth.KindValidation, "CONTENT_POST_FIELDS_REQUIRED", msgPostFieldsRequired)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	post, err := s.loadPost(ctx, id, msgPostNotFound)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, post.AuthorID, "update", "post"); err != nil {
		return nil, err
	}

	post.Title = title
	post.Content = body
	post.UpdatedAt = time.Now().UTC()
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, s.mutationErr(err, "CONTENT_POST_UPDATE_FAILED", "update post", msgPostNotFound)
	}
	return post, nil
}

// DeletePost removes a post owned by the principal and its comments.
func (s *Service) DeletePost(ctx context.Context, p auth.Principal, id ulid.ULID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	post, err := s.loadPost(ctx, id, msgPostNotFound)
	if err != nil {
		return err
	}
	if err := auth.Authorize(p, post.AuthorID, "delete", "post"); err != nil {
		return err
	}

	n, err := s.posts.Delete(ctx, id)
	if err != nil {
		return s.mutationErr(err, "CONTENT_POST_DELETE_FAILED", "delete post", msgPostNotFound)
	}
	s.logger.DebugContext(ctx, "post deleted", "post_id", id.String(), "comments", n)
	return nil
}

// ListComments returns the comments of an existing post.
func (s *Service) ListComments(ctx context.Context, postID ulid.ULID) ([]*Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.loadPost(ctx, postID, msgNoPostFound); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, auth.WrapPersistence(err, "CONTENT_COMMENT_LIST_FAILED", "list comments")
	}
	if comments == nil {
		comments = []*Comment{}
	}
	return comments, nil
}

// CreateComment adds a comment by the principal to an existing post.
func (s *Service) CreateComment(ctx context.Context, p auth.Principal, postID ulid.ULID, body string) (*Comment, error) {
	if postID == (ulid.ULID{}) || blank(body) {
		return nil, auth.NewError(auth.KindValidation, "CONTENT_COMMENT_FIELDS_REQUIRED", msgCommentFieldMissed)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.loadPost(ctx, postID, msgNoPostFound); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	comment := &Comment{
		ID:        ulid.Make(),
		PostID:    postID,
		AuthorID:  p.UserID,
		Content:   body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, auth.WrapPersistence(err, "CONTENT_COMMENT_CREATE_FAILED", "create comment")
	}

	created, err := s.comments.Get(ctx, comment.ID)
	if err != nil {
		return nil, auth.WrapPersistence(err, "CONTENT_COMMENT_CREATE_FAILED", "reload comment")
	}
	return created, nil
}

// UpdateComment changes the content of a comment owned by the principal.
func (s *Service) UpdateComment(ctx context.Context, p auth.Principal, id ulid.ULID, body string) (*Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	comment, err := s.loadComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, comment.AuthorID, "update", "comment"); err != nil {
		return nil, err
	}
	if blank(body) {
		return nil, auth.NewError(auth.KindValidation, "CONTENT_COMMENT_FIELDS_REQUIRED", msgCommentFieldMissed)
	}

	comment.Content = body
	comment.UpdatedAt = time.Now().UTC()
	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, s.mutationErr(err, "CONTENT_COMMENT_UPDATE_FAILED", "update comment", msgCommentNotFound)
	}
	return comment, nil
}

// DeleteComment removes a comment owned by the principal.
func (s *Service) DeleteComment(ctx context.Context, p auth.Principal, id ulid.ULID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	comment, err := s.loadComment(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(p, comment.AuthorID, "delete", "comment"); err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return s.mutationErr(err, "CONTENT_COMMENT_DELETE_FAILED", "delete comment", msgCommentNotFound)
	}
	return nil
}

func (s *Service) loadPost(ctx context.Context, id ulid.ULID, missing string) (*Post, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, notFound("CONTENT_POST_NOT_FOUND", missing)
		}
		return nil, auth.WrapPersistence(err, "CONTENT_POST_GET_FAILED", "get post")
	}
	return post, nil
}

func (s *Service) loadComment(ctx context.Context, id ulid.ULID) (*Comment, error) {
	comment, err := s.comments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, notFound("CONTENT_COMMENT_NOT_FOUND", msgCommentNotFound)
		}
		return nil, auth.WrapPersistence(err, "CONTENT_COMMENT_GET_FAILED", "get comment")
	}
	return comment, nil
}

// mutationErr maps a write that lost a race with a delete to NotFound.
func (s *Service) mutationErr(err error, code, operation, missing string) error {
	if errors.Is(err, auth.ErrNotFound) {
		return notFound(code, missing)
	}
	return auth.WrapPersistence(err, code, operation)
}

func notFound(code, msg string) error {
	return auth.NewError(auth.KindNotFound, code, msg)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
