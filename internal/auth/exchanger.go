package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// DefaultScopes cover profile, top items and playlist creation.
var DefaultScopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserTopRead,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// Exchanger talks to the accounts service token endpoint.
type Exchanger interface {
	// AuthCodeURL builds the authorize URL the user is sent to.
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	// Exchange trades an authorization code for a token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// Refresh mints a new access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuth2Exchanger implements Exchanger with golang.org/x/oauth2.
type OAuth2Exchanger struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

// ExchangerOption configures an OAuth2Exchanger.
type ExchangerOption func(*OAuth2Exchanger)

// WithEndpoint overrides the authorize and token URLs. Empty values keep
// Spotify's accounts endpoints.
func WithEndpoint(authURL, tokenURL string) ExchangerOption {
	return func(e *OAuth2Exchanger) {
		if authURL != "" {
			e.cfg.Endpoint.AuthURL = authURL
		}
		if tokenURL != "" {
			e.cfg.Endpoint.TokenURL = tokenURL
		}
	}
}

// WithScopes replaces DefaultScopes.
func WithScopes(scopes ...string) ExchangerOption {
	return func(e *OAuth2Exchanger) {
		e.cfg.Scopes = scopes
	}
}

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) ExchangerOption {
	return func(e *OAuth2Exchanger) {
		e.httpClient = c
	}
}

// NewOAuth2Exchanger creates an exchanger for the given application credentials.
func NewOAuth2Exchanger(clientID, clientSecret, redirectURL string, opts ...ExchangerOption) *OAuth2Exchanger {
	e := &OAuth2Exchanger{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       DefaultScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  spotifyauth.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *OAuth2Exchanger) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return e.cfg.AuthCodeURL(state, opts...)
}

func (e *OAuth2Exchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := e.cfg.Exchange(e.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return tok, nil
}

func (e *OAuth2Exchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := e.cfg.TokenSource(e.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	return tok, nil
}

func (e *OAuth2Exchanger) withClient(ctx context.Context) context.Context {
	if e.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

// isInvalidGrant reports whether err is the token endpoint rejecting a revoked
// or expired refresh token.
func isInvalidGrant(err error) bool {
	var rErr *oauth2.RetrieveError
	return errors.As(err, &rErr) && rErr.ErrorCode == "invalid_grant"
}

// isClientRejection reports whether err is the token endpoint refusing the
// request itself (a 4xx response or an OAuth2 error code) rather than failing.
func isClientRejection(err error) bool {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return false
	}
	if rErr.Response != nil {
		return rErr.Response.StatusCode >= 400 && rErr.Response.StatusCode < 500
	}
	return rErr.ErrorCode != ""
}
