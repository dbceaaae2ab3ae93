// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/auth/authtest"
	"github.com/queryhub/queryhub/internal/content"
	"github.com/queryhub/queryhub/internal/content/contenttest"
	"github.com/queryhub/queryhub/internal/web"
)

const password = "longpass1"

type routeCount struct {
	route  string
	status int
}

type countingRecorder struct {
	mu   sync.Mutex
	seen []routeCount
}

func (c *countingRecorder) HTTPRequest(route string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, routeCount{route, status})
}

func (c *countingRecorder) all() []routeCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]routeCount(nil), c.seen...)
}

type fakeProvider struct {
	profile auth.FederatedProfile
	err     error
	gotCode string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example/auth?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (auth.FederatedProfile, error) {
	f.gotCode = code
	return f.profile, f.err
}

type env struct {
	handler  http.Handler
	users    *authtest.UserStore
	sessions *authtest.SessionStore
	content  *contenttest.Store
	fed      *fakeProvider
	metrics  *countingRecorder
}

type envSettings struct {
	cfg         web.Config
	noFederated bool
	wrapPosts   func(content.PostRepository) content.PostRepository
}

type envOption func(*envSettings)

func withConfig(fn func(*web.Config)) envOption {
	return func(s *envSettings) { fn(&s.cfg) }
}

func withoutFederated() envOption {
	return func(s *envSettings) { s.noFederated = true }
}

func withPosts(wrap func(content.PostRepository) content.PostRepository) envOption {
	return func(s *envSettings) { s.wrapPosts = wrap }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	users := authtest.NewUserStore()
	sessionStore := authtest.NewSessionStore()

	creds, err := auth.NewCredentialStore(users, authtest.FastHasher())
	require.NoError(t, err)
	resolver, err := auth.NewIdentityResolver(users, creds, nil)
	require.NoError(t, err)
	sessions, err := auth.NewSessionManager(sessionStore)
	require.NoError(t, err)
	authSvc, err := auth.NewService(auth.ServiceConfig{
		Users:       users,
		Credentials: creds,
		Resolver:    resolver,
		Sessions:    sessions,
	})
	require.NoError(t, err)

	settings := envSettings{cfg: web.Config{
		AllowedOrigins: []string{"https://*.queryhub.test", "http://localhost:*"},
		SuccessURL:     "https://app.queryhub.test/home",
	}}
	for _, opt := range opts {
		opt(&settings)
	}

	store := contenttest.NewStore(users)
	var posts content.PostRepository = store.Posts()
	if settings.wrapPosts != nil {
		posts = settings.wrapPosts(posts)
	}
	contentSvc, err := content.NewService(posts, store.Comments(), users, nil)
	require.NoError(t, err)

	fed := &fakeProvider{}
	metrics := &countingRecorder{}
	deps := web.Deps{Auth: authSvc, Content: contentSvc, Federated: fed, Metrics: metrics}
	if settings.noFederated {
		deps.Federated = nil
	}

	srv, err := web.NewServer(settings.cfg, deps)
	require.NoError(t, err)
	return &env{
		handler:  srv.Handler(),
		users:    users,
		sessions: sessionStore,
		content:  store,
		fed:      fed,
		metrics:  metrics,
	}
}

func (e *env) do(t *testing.T, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) register(t *testing.T, email string) auth.Profile {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/register", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		User auth.Profile `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.User
}

// login registers email and returns its profile and session cookie.
func (e *env) login(t *testing.T, email string) (auth.Profile, *http.Cookie) {
	t.Helper()
	profile := e.register(t, email)
	rec := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := findCookie(rec, web.DefaultCookieName)
	require.NotNil(t, c, "session cookie not set")
	return profile, c
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Message
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
