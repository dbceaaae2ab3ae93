// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package web serves the QueryHub HTTP API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/content"
)

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "queryhub-session-cookie"

// DefaultMaxBodyBytes limits JSON request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Config configures the HTTP server.
type Config struct {
	Addr string

	// AllowedOrigins are glob patterns matched against the Origin header,
	// e.g. "https://*.example.com".
	AllowedOrigins []string

	// Production switches the session cookie to SameSite=None and hides
	// internal error text from 500 responses.
	Production   bool
	CookieName   string
	CookieSecure bool

	// SuccessURL is where a completed federated login lands.
	SuccessURL string

	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// FederatedProvider runs an OAuth2 authorization code flow.
type FederatedProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.FederatedProfile, error)
}

// RequestRecorder counts served requests by route pattern.
type RequestRecorder interface {
	HTTPRequest(route string, status int)
}

// Deps are the services behind the routes.
type Deps struct {
	Auth    *auth.Service
	Content *content.Service
	// Federated is optional; without it the /auth/google routes are absent.
	Federated FederatedProvider
	Metrics   RequestRecorder
	Logger    *slog.Logger
}

// Server is the QueryHub HTTP API server.
type Server struct {
	cfg       Config
	auth      *auth.Service
	content   *content.Service
	federated FederatedProvider
	metrics   RequestRecorder
	logger    *slog.Logger
	origins   []glob.Glob

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Auth == nil || deps.Content == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("auth and content services are required")
	}

	origins := make([]glob.Glob, 0, len(cfg.AllowedOrigins))
	for _, pattern := range cfg.AllowedOrigins {
		g, err := glob.Compile(pattern, '.', ':')
		if err != nil {
			return nil, oops.Code("WEB_INVALID_CONFIG").With("origin", pattern).Wrap(err)
		}
		origins = append(origins, g)
	}

	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.SuccessURL == "" {
		cfg.SuccessURL = "/"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:       cfg,
		auth:      deps.Auth,
		content:   deps.Content,
		federated: deps.Federated,
		metrics:   deps.Metrics,
		logger:    logger,
		origins:   origins,
	}, nil
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	// The metrics middleware must sit directly on the mux so it sees the
	// matched pattern.
	var handler http.Handler = mux
	handler = s.metricsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.recoverMiddleware(handler)
	handler = s.requestIDMiddleware(handler)
	return handler
}

// RegisterRoutes mounts the API routes onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleHome)

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/login", s.handleLoginPage)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/checkAuthentication", s.handleCheckAuthentication)
	mux.Handle("PUT /auth/{id}/password", s.RequireSession(http.HandlerFunc(s.handleChangePassword)))
	if s.federated != nil {
		mux.HandleFunc("GET /auth/google", s.handleFederatedStart)
		mux.HandleFunc("GET /auth/google/callback", s.handleFederatedCallback)
	}

	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.Handle("PUT /users/{id}", s.RequireSession(http.HandlerFunc(s.handleUpdateUser)))
	mux.Handle("DELETE /users/{id}", s.RequireSession(http.HandlerFunc(s.handleDeleteUser)))

	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("GET /posts/{id}", s.handleGetPost)
	mux.HandleFunc("GET /posts/author/{authorId}", s.handleListPostsByAuthor)
	mux.Handle("POST /posts", s.RequireSession(http.HandlerFunc(s.handleCreatePost)))
	mux.Handle("PUT /posts/{id}", s.RequireSession(http.HandlerFunc(s.handleUpdatePost)))
	mux.Handle("DELETE /posts/{id}", s.RequireSession(http.HandlerFunc(s.handleDeletePost)))

	mux.HandleFunc("GET /comments/post/{postId}", s.handleListComments)
	mux.Handle("POST /comments", s.RequireSession(http.HandlerFunc(s.handleCreateComment)))
	mux.Handle("PUT /comments/{id}", s.RequireSession(http.HandlerFunc(s.handleUpdateComment)))
	mux.Handle("DELETE /comments/{id}", s.RequireSession(http.HandlerFunc(s.handleDeleteComment)))
}

// Start begins serving the API. The returned channel receives any error
// from the HTTP server after it starts and is closed when it stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("WEB_SHUTDOWN_FAILED").With("operation", "shutdown web server").Wrap(err)
		}
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if it is not
// running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // client may disconnect
	w.Write([]byte("Welcome to the home page!"))
}
