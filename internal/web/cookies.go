// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package web

import (
	"net"
	"net/http"
	"time"

	"github.com/queryhub/queryhub/internal/auth"
)

const (
	stateCookieName = "oauth_state"
	stateCookiePath = "/auth/google"
	stateCookieTTL  = 10 * time.Minute
)

func (s *Server) sameSite() http.SameSite {
	if s.cfg.Production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// secure reports whether cookies carry the Secure flag. Browsers drop
// SameSite=None cookies that are not Secure, so production forces it.
func (s *Server) secure() bool {
	return s.cfg.CookieSecure || s.cfg.Production
}

func (s *Server) sessionToken(r *http.Request) string {
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.auth.Sessions().TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secure(),
		SameSite: s.sameSite(),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure(),
		SameSite: s.sameSite(),
	})
}

func (s *Server) setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     stateCookiePath,
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure(),
		// The provider redirects back with a top-level GET, which Lax allows.
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     stateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func clientMetadata(r *http.Request) auth.Metadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return auth.Metadata{UserAgent: r.UserAgent(), IPAddress: ip}
}
