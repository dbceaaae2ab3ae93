// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package content implements posts and comments. Every mutation loads the
// target first and then checks ownership, so a missing resource reports
// NotFound before Forbidden.
package content

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/queryhub/queryhub/internal/auth"
)

// Author is the public summary of a post or comment author.
type Author struct {
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// Post is an article written by a user.
type Post struct {
	ID        ulid.ULID  `json:"id"`
	AuthorID  ulid.ULID  `json:"authorId"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Author    *Author    `json:"author,omitempty"`
	Comments  []*Comment `json:"comments"`
}

// Comment is a reply to a post.
type Comment struct {
	ID        ulid.ULID `json:"id"`
	PostID    ulid.ULID `json:"postId"`
	AuthorID  ulid.ULID `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Author    *Author   `json:"author,omitempty"`
}

// PostRepository manages post persistence. Reads populate Author and
// Comments; lookups of a missing post return auth.ErrNotFound.
type PostRepository interface {
	List(ctx context.Context) ([]*Post, error)
	Get(ctx context.Context, id ulid.ULID) (*Post, error)
	ListByAuthor(ctx context.Context, authorID ulid.ULID) ([]*Post, error)
	Create(ctx context.Context, post *Post) error
	Update(ctx context.Context, post *Post) error
	// Delete removes a post together with its comments as one atomic change
	// and returns how many comments went with it.
	Delete(ctx context.Context, id ulid.ULID) (int64, error)
}

// CommentRepository manages comment persistence.
type CommentRepository interface {
	ListByPost(ctx context.Context, postID ulid.ULID) ([]*Comment, error)
	Get(ctx context.Context, id ulid.ULID) (*Comment, error)
	Create(ctx context.Context, comment *Comment) error
	Update(ctx context.Context, comment *Comment) error
	Delete(ctx context.Context, id ulid.ULID) error
}

// UserLookup resolves post authors.
type UserLookup interface {
	GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error)
}

// ParseID parses a path identifier. A malformed value is a validation error
// carrying msg.
func ParseID(raw, code, msg string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(raw)
	if err != nil {
		return ulid.ULID{}, auth.NewError(auth.KindValidation, code, msg)
	}
	return id, nil
}
