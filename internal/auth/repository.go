package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/justestif/spotify-stats/internal/logging"
)

const (
	// defaultImplicitExpiry applies when an implicit grant omits expires_in.
	defaultImplicitExpiry = time.Hour

	// refreshTimeout bounds a refresh flight, which does not follow any one
	// caller's cancellation.
	refreshTimeout = 30 * time.Second
)

var (
	// ErrNullAccessToken is returned when no usable access token is cached and
	// there is neither a refresh token nor an authorization code to obtain one.
	ErrNullAccessToken = errors.New("no access token available")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrMissingAccessToken is returned when an implicit grant carries no access_token.
	ErrMissingAccessToken = errors.New("implicit grant has no access_token")

	// ErrInvalidGrantResponse is returned when an implicit grant redirect carries
	// malformed values.
	ErrInvalidGrantResponse = errors.New("invalid grant response")

	// ErrAuthDenied is returned when the accounts service redirects back with an
	// error, such as the user declining access.
	ErrAuthDenied = errors.New("authorization denied")

	// ErrCodeRejected is returned when the token endpoint refuses an
	// authorization code as invalid, expired or already used.
	ErrCodeRejected = errors.New("authorization code rejected")
)

// Service holds the state shared by every user's Repository: the token
// endpoint client and the single-flight group that deduplicates refreshes.
type Service struct {
	exchanger Exchanger
	group     singleflight.Group
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logging.OrNop(l)
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service using exchanger for token requests.
func NewService(exchanger Exchanger, opts ...ServiceOption) *Service {
	s := &Service{
		exchanger: exchanger,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthURL returns the authorization-code flow URL for state.
func (s *Service) AuthURL(state string) string {
	return s.exchanger.AuthCodeURL(state)
}

// ImplicitAuthURL returns the implicit grant flow URL for state. The token is
// delivered in the redirect URL fragment.
func (s *Service) ImplicitAuthURL(state string) string {
	return s.exchanger.AuthCodeURL(state, oauth2.SetAuthURLParam("response_type", "token"))
}

// Repository returns the token repository for one user. Repositories sharing a
// key share refreshes, so key must identify the underlying storage.
func (s *Service) Repository(key string, storage TokenStorage) *Repository {
	return &Repository{svc: s, key: key, storage: storage}
}

// Repository obtains access tokens for one user.
type Repository struct {
	svc     *Service
	key     string
	storage TokenStorage
}

// ObtainAccessToken returns a usable access token, in order of preference:
// the stored token if it has not expired, a token refreshed with the stored
// refresh token, or a token exchanged for code. It returns ErrNullAccessToken
// when none of these is possible.
func (r *Repository) ObtainAccessToken(ctx context.Context, code string) (*AccessTokenInfo, error) {
	stored, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	if stored != nil && !stored.Expired(r.svc.now()) {
		return stored, nil
	}

	if stored != nil && stored.RefreshToken != "" {
		info, err := r.refresh(ctx)
		if err == nil {
			return info, nil
		}
		if code == "" {
			return nil, err
		}
		r.svc.logger.Warn("refresh failed, exchanging authorization code",
			zap.String("key", r.key), zap.Error(err))
	}

	if code != "" {
		return r.exchange(ctx, code)
	}

	return nil, ErrNullAccessToken
}

// GetAccessToken returns a usable access token without an authorization code.
func (r *Repository) GetAccessToken(ctx context.Context) (*AccessTokenInfo, error) {
	return r.ObtainAccessToken(ctx, "")
}

// TokenSource adapts the repository to oauth2.TokenSource so HTTP clients
// refresh transparently. ctx is used for refresh requests.
func (r *Repository) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, repo: r}
}

type tokenSource struct {
	ctx  context.Context
	repo *Repository
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	info, err := ts.repo.GetAccessToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	return info.OAuth2(), nil
}

// StoreImplicitGrant validates and stores a token delivered by the implicit
// grant flow. values are the parsed redirect URL fragment.
func (r *Repository) StoreImplicitGrant(ctx context.Context, values url.Values, expectedState string) (*AccessTokenInfo, error) {
	if values.Get("state") != expectedState {
		return nil, ErrStateMismatch
	}
	if errMsg := values.Get("error"); errMsg != "" {
		return nil, fmt.Errorf("%w: %s", ErrAuthDenied, errMsg)
	}

	accessToken := values.Get("access_token")
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	expiresIn := defaultImplicitExpiry
	if raw := values.Get("expires_in"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("%w: expires_in %q", ErrInvalidGrantResponse, raw)
		}
		expiresIn = time.Duration(secs) * time.Second
	}

	info := &AccessTokenInfo{
		Token:     accessToken,
		ExpiresAt: r.svc.now().Add(expiresIn),
	}
	if err := r.storage.Save(ctx, info); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}
	return info, nil
}

// Logout removes the stored token.
func (r *Repository) Logout(ctx context.Context) error {
	return r.storage.Delete(ctx)
}

// load reads the stored token. A corrupt token is discarded and treated as absent.
func (r *Repository) load(ctx context.Context) (*AccessTokenInfo, error) {
	info, err := r.storage.Load(ctx)
	if errors.Is(err, ErrCorruptToken) {
		r.svc.logger.Warn("discarding corrupt stored token", zap.String("key", r.key), zap.Error(err))
		if err := r.storage.Delete(ctx); err != nil {
			return nil, fmt.Errorf("deleting corrupt token: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	return info, nil
}

// refresh runs at most one refresh per key at a time; concurrent callers
// share its result. The flight outlives a cancelled caller so that callers
// still waiting on it are not failed by someone else's context.
func (r *Repository) refresh(ctx context.Context) (*AccessTokenInfo, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := r.svc.group.DoChan(r.key, func() (any, error) {
		ctx, cancel := context.WithTimeout(flightCtx, refreshTimeout)
		defer cancel()

		// Another caller may have refreshed between our load and this flight.
		current, err := r.load(ctx)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrNullAccessToken
		}
		if !current.Expired(r.svc.now()) {
			return current, nil
		}
		if current.RefreshToken == "" {
			return nil, ErrNullAccessToken
		}

		tok, err := r.svc.exchanger.Refresh(ctx, current.RefreshToken)
		if err != nil {
			if isInvalidGrant(err) {
				r.svc.logger.Info("refresh token revoked, clearing stored token", zap.String("key", r.key))
				if delErr := r.storage.Delete(ctx); delErr != nil {
					r.svc.logger.Warn("clearing revoked token", zap.Error(delErr))
				}
				return nil, fmt.Errorf("%w: %w", ErrNullAccessToken, err)
			}
			return nil, err
		}

		info := FromOAuth2(tok)
		if info.RefreshToken == "" {
			info.RefreshToken = current.RefreshToken
		}
		if err := r.storage.Save(ctx, info); err != nil {
			return nil, fmt.Errorf("saving refreshed token: %w", err)
		}
		r.svc.logger.Debug("access token refreshed",
			zap.String("key", r.key), zap.Time("expires_at", info.ExpiresAt))
		return info, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	info := res.Val.(*AccessTokenInfo)
	if res.Shared {
		cp := *info
		info = &cp
	}
	return info, nil
}

func (r *Repository) exchange(ctx context.Context, code string) (*AccessTokenInfo, error) {
	tok, err := r.svc.exchanger.Exchange(ctx, code)
	if err != nil {
		if isClientRejection(err) {
			return nil, fmt.Errorf("%w: %w", ErrCodeRejected, err)
		}
		return nil, err
	}
	info := FromOAuth2(tok)
	if err := r.storage.Save(ctx, info); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}
	return info, nil
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
