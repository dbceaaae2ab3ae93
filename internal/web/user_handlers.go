// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package web

import (
	"net/http"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/content"
)

type updateUserRequest struct {
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := content.ParseID(r.PathValue("id"), "WEB_INVALID_USER_ID", "Invalid user ID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.auth.GetUser(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, err := s.auth.UpdateProfile(r.Context(), principal(r), pathUserID(r), auth.ProfileUpdate{
		Bio:      req.Bio,
		Avatar:   req.Avatar,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user.Profile(), Message: "User updated successfully"})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.DeleteAccount(r.Context(), principal(r), pathUserID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "User deleted successfully")
}
