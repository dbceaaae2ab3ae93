// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package postgres provides PostgreSQL implementations of the content
// repositories.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/content"
	"github.com/queryhub/queryhub/internal/store"
)

const postSelect = `
	SELECT p.id, p.author_id, p.title, p.content, p.created_at, p.updated_at, u.email, u.avatar
	FROM posts p
	JOIN users u ON u.id = p.author_id`

// PostRepository implements content.PostRepository using PostgreSQL.
type PostRepository struct {
	db       store.Querier
	comments *CommentRepository
}

// NewPostRepository creates a new PostRepository.
func NewPostRepository(db store.Querier) *PostRepository {
	return &PostRepository{db: db, comments: NewCommentRepository(db)}
}

// List returns every post, oldest first.
func (r *PostRepository) List(ctx context.Context) ([]*content.Post, error) {
	rows, err := r.db.Query(ctx, postSelect+` ORDER BY p.created_at, p.id`)
	if err != nil {
		return nil, oops.Code("POST_LIST_FAILED").With("operation", "list posts").Wrap(err)
	}
	return r.collect(ctx, rows)
}

// ListByAuthor returns the posts of one author, oldest first.
func (r *PostRepository) ListByAuthor(ctx context.Context, authorID ulid.ULID) ([]*content.Post, error) {
	rows, err := r.db.Query(ctx, postSelect+` WHERE p.author_id = $1 ORDER BY p.created_at, p.id`, authorID.String())
	if err != nil {
		return nil, oops.Code("POST_LIST_FAILED").
			With("operation", "list posts by author").
			With("author_id", authorID.String()).
			Wrap(err)
	}
	return r.collect(ctx, rows)
}

// Get retrieves a post with its author and comments.
func (r *PostRepository) Get(ctx context.Context, id ulid.ULID) (*content.Post, error) {
	post, err := scanPost(r.db.QueryRow(ctx, postSelect+` WHERE p.id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("POST_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("POST_GET_FAILED").
			With("operation", "get post").
			With("id", id.String()).
			Wrap(err)
	}

	byPost, err := r.comments.listByPosts(ctx, []string{id.String()})
	if err != nil {
		return nil, err
	}
	post.Comments = orEmpty(byPost[id])
	return post, nil
}

// Create stores a new post.
func (r *PostRepository) Create(ctx context.Context, post *content.Post) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO posts (id, author_id, title, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		post.ID.String(),
		post.AuthorID.String(),
		post.Title,
		post.Content,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return oops.Code("POST_AUTHOR_NOT_FOUND").
				With("author_id", post.AuthorID.String()).
				Wrap(errors.Join(auth.ErrNotFound, err))
		}
		return oops.Code("POST_CREATE_FAILED").
			With("operation", "insert post").
			With("author_id", post.AuthorID.String()).
			Wrap(err)
	}
	return nil
}

// Update writes the title and content of a post.
func (r *PostRepository) Update(ctx context.Context, post *content.Post) error {
	result, err := r.db.Exec(ctx, `
		UPDATE posts SET title = $2, content = $3, updated_at = $4
		WHERE id = $1
	`, post.ID.String(), post.Title, post.Content, post.UpdatedAt)
	if err != nil {
		return oops.Code("POST_UPDATE_FAILED").
			With("operation", "update post").
			With("id", post.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("POST_NOT_FOUND").With("id", post.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a post and its comments in one transaction. Nothing is
// removed when the post does not exist.
func (r *PostRepository) Delete(ctx context.Context, id ulid.ULID) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, oops.Code("POST_DELETE_FAILED").
			With("operation", "begin transaction").
			With("id", id.String()).
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	removed, err := NewCommentRepository(tx).DeleteByPost(ctx, id)
	if err != nil {
		return 0, err
	}
	result, err := tx.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id.String())
	if err != nil {
		return 0, oops.Code("POST_DELETE_FAILED").
			With("operation", "delete post").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return 0, oops.Code("POST_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, oops.Code("POST_DELETE_FAILED").
			With("operation", "commit transaction").
			With("id", id.String()).
			Wrap(err)
	}
	return removed, nil
}

func (r *PostRepository) collect(ctx context.Context, rows pgx.Rows) ([]*content.Post, error) {
	defer rows.Close()

	posts := []*content.Post{}
	ids := []string{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
		ids = append(ids, post.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("POST_ROWS_ERROR").With("operation", "iterate post rows").Wrap(err)
	}
	if len(posts) == 0 {
		return posts, nil
	}

	byPost, err := r.comments.listByPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		p.Comments = orEmpty(byPost[p.ID])
	}
	return posts, nil
}

// scanPost scans a post joined with its author.
// Callers are responsible for handling pgx.ErrNoRows.
func scanPost(row pgx.Row) (*content.Post, error) {
	var (
		idStr, authorIDStr string
		post               content.Post
		author             content.Author
	)
	err := row.Scan(
		&idStr,
		&authorIDStr,
		&post.Title,
		&post.Content,
		&post.CreatedAt,
		&post.UpdatedAt,
		&author.Email,
		&author.Avatar,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers add lookup context
		}
		return nil, oops.Code("POST_SCAN_FAILED").With("operation", "scan post").Wrap(err)
	}
	if post.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("POST_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if post.AuthorID, err = ulid.Parse(authorIDStr); err != nil {
		return nil, oops.Code("POST_INVALID_AUTHOR_ID").With("author_id", authorIDStr).Wrap(err)
	}
	post.Author = &author
	return &post, nil
}

func orEmpty(c []*content.Comment) []*content.Comment {
	if c == nil {
		return []*content.Comment{}
	}
	return c
}

// Compile-time interface check.
var _ content.PostRepository = (*PostRepository)(nil)
