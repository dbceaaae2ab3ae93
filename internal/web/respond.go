// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/pkg/errutil"
)

const msgInternal = "An error occurred"

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation, auth.KindConflict:
		return http.StatusBadRequest
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindAuthentication, auth.KindUnauthenticated:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"message": ...}. Errors without a public
// message are logged and answered with a generic 500, which carries the
// error text outside production.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorStatus(w, r, err, statusFor(auth.KindOf(err)))
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := auth.PublicMessage(err)
	if status >= http.StatusInternalServerError || msg == "" {
		errutil.LogErrorContext(r.Context(), s.logger, "request failed", err)
		status = http.StatusInternalServerError
		msg = msgInternal
		if !s.cfg.Production {
			msg = err.Error()
		}
	}
	writeMessage(w, status, msg)
}

// decodeJSON reads a JSON body into dst. It writes an error response and
// returns false when the body is malformed or too large.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		// An empty body leaves dst zero; field validation reports it.
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	writeMessage(w, http.StatusBadRequest, "Invalid request body")
	return false
}
