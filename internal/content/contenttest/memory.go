// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package contenttest provides in-memory post and comment repositories for
// tests.
package contenttest

import (
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/content"
)

// Store holds posts and comments in memory. Authors are resolved through
// users on every read, the way the database joins them.
type Store struct {
	mu       sync.Mutex
	users    content.UserLookup
	posts    map[ulid.ULID]content.Post
	comments map[ulid.ULID]content.Comment
}

// NewStore creates an empty Store.
func NewStore(users content.UserLookup) *Store {
	return &Store{
		users:    users,
		posts:    make(map[ulid.ULID]content.Post),
		comments: make(map[ulid.ULID]content.Comment),
	}
}

// Posts returns the store as a content.PostRepository.
func (s *Store) Posts() content.PostRepository { return postRepo{s} }

// Comments returns the store as a content.CommentRepository.
func (s *Store) Comments() content.CommentRepository { return commentRepo{s} }

// CommentCount returns the number of stored comments.
func (s *Store) CommentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.comments)
}

func (s *Store) author(ctx context.Context, id ulid.ULID) *content.Author {
	if s.users == nil {
		return nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	return &content.Author{Email: u.Email, Avatar: u.Profile().Avatar}
}

func (s *Store) comment(ctx context.Context, c content.Comment) *content.Comment {
	c.Author = s.author(ctx, c.AuthorID)
	return &c
}

func (s *Store) post(ctx context.Context, p content.Post) *content.Post {
	p.Author = s.author(ctx, p.AuthorID)
	p.Comments = s.commentsOf(ctx, p.ID)
	return &p
}

func (s *Store) commentsOf(ctx context.Context, postID ulid.ULID) []*content.Comment {
	out := []*content.Comment{}
	for _, c := range s.comments {
		if c.PostID == postID {
			out = append(out, s.comment(ctx, c))
		}
	}
	slices.SortFunc(out, func(a, b *content.Comment) int { return a.ID.Compare(b.ID) })
	return out
}

func (s *Store) sortedPosts(ctx context.Context, keep func(content.Post) bool) []*content.Post {
	out := []*content.Post{}
	for _, p := range s.posts {
		if keep(p) {
			out = append(out, s.post(ctx, p))
		}
	}
	slices.SortFunc(out, func(a, b *content.Post) int { return a.ID.Compare(b.ID) })
	return out
}

type postRepo struct{ s *Store }

func (r postRepo) List(ctx context.Context) ([]*content.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedPosts(ctx, func(content.Post) bool { return true }), nil
}

func (r postRepo) Get(ctx context.Context, id ulid.ULID) (*content.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return r.s.post(ctx, p), nil
}

func (r postRepo) ListByAuthor(ctx context.Context, authorID ulid.ULID) ([]*content.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedPosts(ctx, func(p content.Post) bool { return p.AuthorID == authorID }), nil
}

func (r postRepo) Create(_ context.Context, post *content.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[post.ID]; ok {
		return auth.ErrDuplicate
	}
	p := *post
	p.Author, p.Comments = nil, nil
	r.s.posts[post.ID] = p
	return nil
}

func (r postRepo) Update(_ context.Context, post *content.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[post.ID]
	if !ok {
		return auth.ErrNotFound
	}
	p.Title, p.Content, p.UpdatedAt = post.Title, post.Content, post.UpdatedAt
	r.s.posts[post.ID] = p
	return nil
}

func (r postRepo) Delete(_ context.Context, id ulid.ULID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[id]; !ok {
		return 0, auth.ErrNotFound
	}
	delete(r.s.posts, id)
	var n int64
	for cid, c := range r.s.comments {
		if c.PostID == id {
			delete(r.s.comments, cid)
			n++
		}
	}
	return n, nil
}

type commentRepo struct{ s *Store }

func (r commentRepo) ListByPost(ctx context.Context, postID ulid.ULID) ([]*content.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.commentsOf(ctx, postID), nil
}

func (r commentRepo) Get(ctx context.Context, id ulid.ULID) (*content.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return r.s.comment(ctx, c), nil
}

func (r commentRepo) Create(_ context.Context, comment *content.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[comment.PostID]; !ok {
		return auth.ErrNotFound
	}
	c := *comment
	c.Author = nil
	r.s.comments[comment.ID] = c
	return nil
}

func (r commentRepo) Update(_ context.Context, comment *content.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[comment.ID]
	if !ok {
		return auth.ErrNotFound
	}
	c.Content, c.UpdatedAt = comment.Content, comment.UpdatedAt
	r.s.comments[comment.ID] = c
	return nil
}

func (r commentRepo) Delete(_ context.Context, id ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.comments[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.s.comments, id)
	return nil
}
