// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package oauth implements federated login against external identity
// providers using the authorization code flow.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/samber/oops"
	"golang.org/x/oauth2"

	"github.com/queryhub/queryhub/internal/auth"
)

// Google endpoints.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// ProviderGoogle names the Google provider in federated profiles.
const ProviderGoogle = "google"

const (
	stateBytes      = 32
	maxUserInfoBody = 1 << 20
)

// Config configures a Google provider. The endpoint URLs default to
// Google's and are overridable for tests.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient is used for the token exchange and the userinfo request.
	HTTPClient *http.Client
}

// Provider runs the Google authorization code flow.
type Provider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogleProvider creates a Provider requesting the profile and email
// scopes.
func NewGoogleProvider(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, oops.Code("OAUTH_INVALID_CONFIG").Errorf("client id and secret are required")
	}
	if cfg.CallbackURL == "" {
		return nil, oops.Code("OAUTH_INVALID_CONFIG").Errorf("callback url is required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = GoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = GoogleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = GoogleUserInfoURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"profile", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderGoogle
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

type userInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

// Exchange trades an authorization code for a token and fetches the
// user's profile. A rejected code is a KindAuthentication error.
func (p *Provider) Exchange(ctx context.Context, code string) (auth.FederatedProfile, error) {
	if code == "" {
		return auth.FederatedProfile{}, auth.NewError(auth.KindAuthentication, "OAUTH_CODE_MISSING", "Authorization was not granted")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return auth.FederatedProfile{}, auth.Wrap(err, auth.KindAuthentication, "OAUTH_EXCHANGE_FAILED", "exchange authorization code")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, http.NoBody)
	if err != nil {
		return auth.FederatedProfile{}, auth.WrapPersistence(err, "OAUTH_USERINFO_FAILED", "build userinfo request")
	}
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return auth.FederatedProfile{}, auth.WrapPersistence(err, "OAUTH_USERINFO_FAILED", "fetch userinfo")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := oops.With("status", resp.StatusCode).Errorf("userinfo returned %s", resp.Status)
		return auth.FederatedProfile{}, auth.Wrap(err, auth.KindAuthentication, "OAUTH_USERINFO_FAILED", "fetch userinfo")
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBody)).Decode(&info); err != nil {
		return auth.FederatedProfile{}, auth.WrapPersistence(err, "OAUTH_USERINFO_FAILED", "decode userinfo")
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return auth.FederatedProfile{}, auth.NewError(auth.KindAuthentication, "OAUTH_EMAIL_UNVERIFIED", "Email address is not verified")
	}

	return auth.FederatedProfile{
		Provider: ProviderGoogle,
		Subject:  info.Subject,
		Email:    info.Email,
	}, nil
}

// GenerateState returns a random, URL-safe state value.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("OAUTH_STATE_FAILED").With("operation", "generate state").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
