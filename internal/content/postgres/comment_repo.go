// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

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

const commentSelect = `
	SELECT c.id, c.post_id, c.author_id, c.content, c.created_at, c.updated_at, u.email, u.avatar
	FROM comments c
	JOIN users u ON u.id = c.author_id`

// CommentRepository implements content.CommentRepository using PostgreSQL.
type CommentRepository struct {
	db store.Querier
}

// NewCommentRepository creates a new CommentRepository.
func NewCommentRepository(db store.Querier) *CommentRepository {
	return &CommentRepository{db: db}
}

// ListByPost returns the comments of a post, oldest first.
func (r *CommentRepository) ListByPost(ctx context.Context, postID ulid.ULID) ([]*content.Comment, error) {
	byPost, err := r.listByPosts(ctx, []string{postID.String()})
	if err != nil {
		return nil, err
	}
	return orEmpty(byPost[postID]), nil
}

// Get retrieves a comment with its author.
func (r *CommentRepository) Get(ctx context.Context, id ulid.ULID) (*content.Comment, error) {
	comment, err := scanComment(r.db.QueryRow(ctx, commentSelect+` WHERE c.id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("COMMENT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("COMMENT_GET_FAILED").
			With("operation", "get comment").
			With("id", id.String()).
			Wrap(err)
	}
	return comment, nil
}

// Create stores a new comment. A missing post or author yields
// auth.ErrNotFound.
func (r *CommentRepository) Create(ctx context.Context, comment *content.Comment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO comments (id, post_id, author_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		comment.ID.String(),
		comment.PostID.String(),
		comment.AuthorID.String(),
		comment.Content,
		comment.CreatedAt,
		comment.UpdatedAt,
	)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return oops.Code("COMMENT_PARENT_NOT_FOUND").
				With("post_id", comment.PostID.String()).
				Wrap(errors.Join(auth.ErrNotFound, err))
		}
		return oops.Code("COMMENT_CREATE_FAILED").
			With("operation", "insert comment").
			With("post_id", comment.PostID.String()).
			Wrap(err)
	}
	return nil
}

// Update writes the content of a comment.
func (r *CommentRepository) Update(ctx context.Context, comment *content.Comment) error {
	result, err := r.db.Exec(ctx, `
		UPDATE comments SET content = $2, updated_at = $3 WHERE id = $1
	`, comment.ID.String(), comment.Content, comment.UpdatedAt)
	if err != nil {
		return oops.Code("COMMENT_UPDATE_FAILED").
			With("operation", "update comment").
			With("id", comment.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("COMMENT_NOT_FOUND").With("id", comment.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a comment.
func (r *CommentRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("COMMENT_DELETE_FAILED").
			With("operation", "delete comment").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("COMMENT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByPost removes every comment of a post. PostRepository.Delete runs it
// inside its transaction.
func (r *CommentRepository) DeleteByPost(ctx context.Context, postID ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM comments WHERE post_id = $1`, postID.String())
	if err != nil {
		return 0, oops.Code("COMMENT_DELETE_FAILED").
			With("operation", "delete comments by post").
			With("post_id", postID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// listByPosts loads the comments of several posts in one query, grouped by
// post ID.
func (r *CommentRepository) listByPosts(ctx context.Context, postIDs []string) (map[ulid.ULID][]*content.Comment, error) {
	rows, err := r.db.Query(ctx, commentSelect+` WHERE c.post_id = ANY($1) ORDER BY c.created_at, c.id`, postIDs)
	if err != nil {
		return nil, oops.Code("COMMENT_LIST_FAILED").
			With("operation", "list comments").
			With("posts", len(postIDs)).
			Wrap(err)
	}
	defer rows.Close()

	byPost := make(map[ulid.ULID][]*content.Comment, len(postIDs))
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		byPost[c.PostID] = append(byPost[c.PostID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("COMMENT_ROWS_ERROR").With("operation", "iterate comment rows").Wrap(err)
	}
	return byPost, nil
}

func scanComment(row pgx.Row) (*content.Comment, error) {
	var (
		idStr, postIDStr, authorIDStr string
		c                             content.Comment
		author                        content.Author
	)
	err := row.Scan(
		&idStr,
		&postIDStr,
		&authorIDStr,
		&c.Content,
		&c.CreatedAt,
		&c.UpdatedAt,
		&author.Email,
		&author.Avatar,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers add lookup context
		}
		return nil, oops.Code("COMMENT_SCAN_FAILED").With("operation", "scan comment").Wrap(err)
	}
	if c.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("COMMENT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if c.PostID, err = ulid.Parse(postIDStr); err != nil {
		return nil, oops.Code("COMMENT_INVALID_POST_ID").With("post_id", postIDStr).Wrap(err)
	}
	if c.AuthorID, err = ulid.Parse(authorIDStr); err != nil {
		return nil, oops.Code("COMMENT_INVALID_AUTHOR_ID").With("author_id", authorIDStr).Wrap(err)
	}
	c.Author = &author
	return &c, nil
}

// Compile-time interface check.
var _ content.CommentRepository = (*CommentRepository)(nil)
