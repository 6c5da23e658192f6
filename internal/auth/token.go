// Package auth implements the Spotify OAuth2 authorization-code and implicit
// flows, access token caching and refresh, and encrypted token persistence.
package auth

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// ExpiryLeeway is subtracted from a token's expiry so that a token about to
// expire mid-request is refreshed ahead of time.
const ExpiryLeeway = 30 * time.Second

// AccessTokenInfo is a cached access token with its refresh token and expiry.
type AccessTokenInfo struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the token must not be used at now.
// A zero ExpiresAt is treated as expired.
func (i *AccessTokenInfo) Expired(now time.Time) bool {
	if i.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(i.ExpiresAt.Add(-ExpiryLeeway))
}

// OAuth2 converts the info into an oauth2.Token for use with HTTP clients.
func (i *AccessTokenInfo) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  i.Token,
		TokenType:    "Bearer",
		RefreshToken: i.RefreshToken,
		Expiry:       i.ExpiresAt,
	}
}

// FromOAuth2 converts an oauth2.Token into an AccessTokenInfo.
func FromOAuth2(t *oauth2.Token) *AccessTokenInfo {
	return &AccessTokenInfo{
		Token:        t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
}

// tokenRecord is the persisted form; the expiry is stored as epoch millis.
type tokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

func (i AccessTokenInfo) MarshalJSON() ([]byte, error) {
	rec := tokenRecord{
		AccessToken:  i.Token,
		RefreshToken: i.RefreshToken,
	}
	if !i.ExpiresAt.IsZero() {
		rec.ExpiresAt = i.ExpiresAt.UnixMilli()
	}
	return json.Marshal(rec)
}

func (i *AccessTokenInfo) UnmarshalJSON(data []byte) error {
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	i.Token = rec.AccessToken
	i.RefreshToken = rec.RefreshToken
	i.ExpiresAt = time.Time{}
	if rec.ExpiresAt != 0 {
		i.ExpiresAt = time.UnixMilli(rec.ExpiresAt)
	}
	return nil
}
