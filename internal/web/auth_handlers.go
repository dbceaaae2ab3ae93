// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package web

import (
	"crypto/subtle"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/oauth"
)

const loginPath = "/auth/login"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User    auth.Profile `json:"user"`
	Message string       `json:"message"`
}

// sessionUser is the body of checkAuthentication.
type sessionUser struct {
	ID     ulid.ULID `json:"id"`
	Email  string    `json:"email"`
	Bio    string    `json:"bio"`
	Avatar string    `json:"avatar"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user.Profile(), Message: "User created successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	result, err := s.auth.Login(r.Context(), req.Email, req.Password, clientMetadata(r))
	if err != nil {
		// Login reports an unknown account as 400 "User not found" rather
		// than 404, and a wrong password as the generic 401. The difference
		// discloses which emails are registered.
		if auth.IsKind(err, auth.KindNotFound) {
			s.writeErrorStatus(w, r, err, http.StatusBadRequest)
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, userResponse{User: result.User.Profile(), Message: "User logged in successfully"})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), s.sessionToken(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (s *Server) handleCheckAuthentication(w http.ResponseWriter, r *http.Request) {
	p, err := s.auth.Authenticate(r.Context(), s.sessionToken(r))
	if err != nil {
		if auth.IsKind(err, auth.KindUnauthenticated) {
			writeMessage(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		s.writeError(w, r, err)
		return
	}
	user, err := s.auth.CheckAuthentication(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile := user.Profile()
	writeJSON(w, http.StatusOK, sessionUser{
		ID:     profile.ID,
		Email:  profile.Email,
		Bio:    profile.Bio,
		Avatar: profile.Avatar,
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	err := s.auth.ChangePassword(r.Context(), principal(r), pathUserID(r), req.OldPassword, req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password updated successfully")
}

// pathUserID parses the {id} of a self-service route. A malformed id yields
// the zero ULID, which never equals a principal, so the ownership check
// rejects it with the route's own 403 message.
func pathUserID(r *http.Request) ulid.ULID {
	id, err := ulid.ParseStrict(r.PathValue("id"))
	if err != nil {
		return ulid.ULID{}
	}
	return id
}

func (s *Server) handleFederatedStart(w http.ResponseWriter, r *http.Request) {
	state, err := oauth.GenerateState()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setStateCookie(w, state)
	http.Redirect(w, r, s.federated.AuthCodeURL(state), http.StatusFound)
}

// handleFederatedCallback completes the provider redirect. A bad state,
// denied consent or an unusable profile sends the browser back to the login
// page; store and session failures are server errors.
func (s *Server) handleFederatedCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	cookie, err := r.Cookie(stateCookieName)
	s.clearStateCookie(w)
	if err != nil || cookie.Value == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		s.logger.WarnContext(ctx, "federated callback state mismatch", "provider", s.federated.Name())
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}
	if reason := q.Get("error"); reason != "" {
		s.logger.InfoContext(ctx, "federated login declined", "provider", s.federated.Name(), "reason", reason)
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	profile, err := s.federated.Exchange(ctx, q.Get("code"))
	if err != nil {
		if auth.IsKind(err, auth.KindAuthentication) {
			s.logger.InfoContext(ctx, "federated exchange rejected", "provider", s.federated.Name(), "error", err)
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}
		s.writeError(w, r, err)
		return
	}

	result, err := s.auth.LoginFederated(ctx, profile, clientMetadata(r))
	if err != nil {
		if auth.IsKind(err, auth.KindValidation) {
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, result.Token)
	http.Redirect(w, r, s.cfg.SuccessURL, http.StatusFound)
}
