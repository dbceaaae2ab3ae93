// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package web

import (
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/queryhub/queryhub/internal/content"
)

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type commentRequest struct {
	PostID  string `json:"postId"`
	Content string `json:"content"`
}

func postID(r *http.Request, name string) (ulid.ULID, error) {
	return content.ParseID(r.PathValue(name), "WEB_INVALID_POST_ID", "Invalid Post ID")
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.content.ListPosts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.content.GetPost(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleListPostsByAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, err := content.ParseID(r.PathValue("authorId"), "WEB_INVALID_AUTHOR_ID", "Invalid author ID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	posts, err := s.content.ListPostsByAuthor(r.Context(), authorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	post, err := s.content.CreatePost(r.Context(), principal(r), req.Title, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req postRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	post, err := s.content.UpdatePost(r.Context(), principal(r), id, req.Title, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.content.DeletePost(r.Context(), principal(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Post deleted successfully")
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r, "postId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	comments, err := s.content.ListComments(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	// A missing postId stays zero and fails the required-field check.
	var id ulid.ULID
	if req.PostID != "" {
		var err error
		if id, err = content.ParseID(req.PostID, "WEB_INVALID_POST_ID", "Invalid Post ID"); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	comment, err := s.content.CreateComment(r.Context(), principal(r), id, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func commentID(r *http.Request) (ulid.ULID, error) {
	return content.ParseID(r.PathValue("id"), "WEB_INVALID_COMMENT_ID", "Invalid comment ID")
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	id, err := commentID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req commentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	comment, err := s.content.UpdateComment(r.Context(), principal(r), id, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := commentID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.content.DeleteComment(r.Context(), principal(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Comment deleted successfully")
}
