package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// fakeExchanger implements Exchanger for testing.
type fakeExchanger struct {
	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32

	exchangeErr error
	refreshErr  error
	// refreshDelay holds refreshes open so concurrent callers overlap.
	refreshDelay time.Duration
	// rotate makes Refresh return a new refresh token.
	rotate bool
	expiry time.Time
}

func (f *fakeExchanger) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	cfg := &oauth2.Config{ClientID: "id", Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example/authorize"}}
	return cfg.AuthCodeURL(state, opts...)
}

func (f *fakeExchanger) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	f.exchangeCalls.Add(1)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "exchanged-" + code, RefreshToken: "refresh-from-code", Expiry: f.expiry}, nil
}

func (f *fakeExchanger) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	n := f.refreshCalls.Add(1)
	if f.refreshDelay > 0 {
		time.Sleep(f.refreshDelay)
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	tok := &oauth2.Token{AccessToken: fmt.Sprintf("refreshed-%d", n), Expiry: f.expiry}
	if f.rotate {
		tok.RefreshToken = refreshToken + "-rotated"
	}
	return tok, nil
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(ex *fakeExchanger, stored *AccessTokenInfo) (*Repository, *MemoryTokenStorage) {
	storage := NewMemoryTokenStorage(stored)
	svc := NewService(ex, WithClock(func() time.Time { return testNow }))
	return svc.Repository("user", storage), storage
}

func TestObtainAccessToken_Branches(t *testing.T) {
	valid := &AccessTokenInfo{Token: "cached", RefreshToken: "r", ExpiresAt: testNow.Add(time.Hour)}
	expired := &AccessTokenInfo{Token: "old", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)}
	expiredNoRefresh := &AccessTokenInfo{Token: "old", ExpiresAt: testNow.Add(-time.Minute)}

	tests := []struct {
		name          string
		stored        *AccessTokenInfo
		code          string
		wantToken     string
		wantErr       error
		wantExchanges int32
		wantRefreshes int32
	}{
		{"cached token returned", valid, "", "cached", nil, 0, 0},
		{"cached token wins over code", valid, "abc", "cached", nil, 0, 0},
		{"expired token refreshed", expired, "", "refreshed-1", nil, 0, 1},
		{"no refresh token uses code", expiredNoRefresh, "abc", "exchanged-abc", nil, 1, 0},
		{"nothing stored uses code", nil, "abc", "exchanged-abc", nil, 1, 0},
		{"nothing available", nil, "", "", ErrNullAccessToken, 0, 0},
		{"expired without refresh or code", expiredNoRefresh, "", "", ErrNullAccessToken, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExchanger{expiry: testNow.Add(time.Hour)}
			repo, _ := newTestRepo(ex, tt.stored)

			info, err := repo.ObtainAccessToken(context.Background(), tt.code)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ObtainAccessToken() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && info.Token != tt.wantToken {
				t.Errorf("Token = %q, want %q", info.Token, tt.wantToken)
			}
			if got := ex.exchangeCalls.Load(); got != tt.wantExchanges {
				t.Errorf("exchange calls = %d, want %d", got, tt.wantExchanges)
			}
			if got := ex.refreshCalls.Load(); got != tt.wantRefreshes {
				t.Errorf("refresh calls = %d, want %d", got, tt.wantRefreshes)
			}
		})
	}
}

func TestObtainAccessToken_PersistsExchangedToken(t *testing.T) {
	ex := &fakeExchanger{expiry: testNow.Add(time.Hour)}
	repo, storage := newTestRepo(ex, nil)

	if _, err := repo.ObtainAccessToken(context.Background(), "code"); err != nil {
		t.Fatalf("ObtainAccessToken() error = %v", err)
	}

	stored, _ := storage.Load(context.Background())
	if stored == nil || stored.Token != "exchanged-code" || stored.RefreshToken != "refresh-from-code" {
		t.Errorf("stored = %+v", stored)
	}

	// Subsequent calls hit the cache.
	info, err := repo.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if info.Token != "exchanged-code" || ex.exchangeCalls.Load() != 1 {
		t.Errorf("GetAccessToken() = %q after %d exchanges", info.Token, ex.exchangeCalls.Load())
	}
}

func TestRefresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ex := &fakeExchanger{expiry: testNow.Add(time.Hour)}
	repo, storage := newTestRepo(ex, &AccessTokenInfo{Token: "old", RefreshToken: "keep-me", ExpiresAt: testNow})

	if _, err := repo.GetAccessToken(context.Background()); err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	stored, _ := storage.Load(context.Background())
	if stored.RefreshToken != "keep-me" {
		t.Errorf("RefreshToken = %q, want %q", stored.RefreshToken, "keep-me")
	}
}

func TestRefresh_StoresRotatedRefreshToken(t *testing.T) {
	ex := &fakeExchanger{expiry: testNow.Add(time.Hour), rotate: true}
	repo, storage := newTestRepo(ex, &AccessTokenInfo{Token: "old", RefreshToken: "r1", ExpiresAt: testNow})

	if _, err := repo.GetAccessToken(context.Background()); err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	stored, _ := storage.Load(context.Background())
	if stored.RefreshToken != "r1-rotated" {
		t.Errorf("RefreshToken = %q, want %q", stored.RefreshToken, "r1-rotated")
	}
}

func TestRefresh_SingleFlight(t *testing.T) {
	ex := &fakeExchanger{expiry: testNow.Add(time.Hour), refreshDelay: 50 * time.Millisecond}
	repo, _ := newTestRepo(ex, &AccessTokenInfo{Token: "old", RefreshToken: "r", ExpiresAt: testNow})

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := repo.GetAccessToken(context.Background())
			errs[i] = err
			if info != nil {
				tokens[i] = info.Token
			}
		}(i)
	}
	wg.Wait()

	if got := ex.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	for i := range tokens {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v", i, errs[i])
		}
		if tokens[i] != "refreshed-1" {
			t.Errorf("caller %d token = %q, want %q", i, tokens[i], "refreshed-1")
		}
	}
}

// blockingExchanger holds Refresh open until release is closed or the
// request context ends.
type blockingExchanger struct {
	fakeExchanger
	started chan struct{}
	release chan struct{}
}

func (b *blockingExchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	b.refreshCalls.Add(1)
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &oauth2.Token{AccessToken: "refreshed", RefreshToken: refreshToken, Expiry: testNow.Add(time.Hour)}, nil
}

func TestRefresh_CancelledCallerDoesNotFailOthers(t *testing.T) {
	ex := &blockingExchanger{started: make(chan struct{}), release: make(chan struct{})}
	storage := NewMemoryTokenStorage(&AccessTokenInfo{Token: "old", RefreshToken: "r", ExpiresAt: testNow})
	repo := NewService(ex, WithClock(func() time.Time { return testNow })).Repository("user", storage)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := repo.GetAccessToken(firstCtx)
		firstErr <- err
	}()
	<-ex.started

	type result struct {
		info *AccessTokenInfo
		err  error
	}
	second := make(chan result, 1)
	go func() {
		info, err := repo.GetAccessToken(context.Background())
		second <- result{info, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}

	close(ex.release)
	res := <-second
	if res.err != nil {
		t.Fatalf("second caller error = %v", res.err)
	}
	if res.info.Token != "refreshed" {
		t.Errorf("second caller token = %q, want %q", res.info.Token, "refreshed")
	}
	if got := ex.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if stored, _ := storage.Load(context.Background()); stored == nil || stored.Token != "refreshed" {
		t.Errorf("stored = %+v, want refreshed token", stored)
	}
}

func TestObtainAccessToken_RejectedCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"invalid_grant", fmt.Errorf("exchanging authorization code: %w", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}), ErrCodeRejected},
		{"bad request status", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}}, ErrCodeRejected},
		{"server error", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadGateway}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newTestRepo(&fakeExchanger{exchangeErr: tt.err}, nil)

			_, err := repo.ObtainAccessToken(context.Background(), "bad-code")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && errors.Is(err, ErrCodeRejected) {
				t.Errorf("error = %v, should not be ErrCodeRejected", err)
			}
		})
	}
}

func TestRefresh_InvalidGrantClearsToken(t *testing.T) {
	ex := &fakeExchanger{refreshErr: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}}
	repo, storage := newTestRepo(ex, &AccessTokenInfo{Token: "old", RefreshToken: "revoked", ExpiresAt: testNow})

	_, err := repo.GetAccessToken(context.Background())
	if !errors.Is(err, ErrNullAccessToken) {
		t.Fatalf("GetAccessToken() error = %v, want ErrNullAccessToken", err)
	}
	if stored, _ := storage.Load(context.Background()); stored != nil {
		t.Errorf("stored token = %+v, want cleared", stored)
	}
}

func TestRefresh_FailureFallsBackToCode(t *testing.T) {
	ex := &fakeExchanger{expiry: testNow.Add(time.Hour), refreshErr: errors.New("network down")}
	repo, _ := newTestRepo(ex, &AccessTokenInfo{Token: "old", RefreshToken: "r", ExpiresAt: testNow})

	info, err := repo.ObtainAccessToken(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("ObtainAccessToken() error = %v", err)
	}
	if info.Token != "exchanged-fresh" {
		t.Errorf("Token = %q, want %q", info.Token, "exchanged-fresh")
	}
}

func TestRefresh_TransientErrorSurfaces(t *testing.T) {
	netErr := errors.New("network down")
	ex := &fakeExchanger{refreshErr: netErr}
	repo, storage := newTestRepo(ex, &AccessTokenInfo{Token: "old", RefreshToken: "r", ExpiresAt: testNow})

	if _, err := repo.GetAccessToken(context.Background()); !errors.Is(err, netErr) {
		t.Fatalf("GetAccessToken() error = %v, want %v", err, netErr)
	}
	if stored, _ := storage.Load(context.Background()); stored == nil {
		t.Error("transient refresh error cleared the stored token")
	}
}

// corruptStorage reports a corrupt token until it is deleted.
type corruptStorage struct {
	MemoryTokenStorage
	corrupt bool
}

func (c *corruptStorage) Load(ctx context.Context) (*AccessTokenInfo, error) {
	if c.corrupt {
		return nil, ErrCorruptToken
	}
	return c.MemoryTokenStorage.Load(ctx)
}

func (c *corruptStorage) Delete(ctx context.Context) error {
	c.corrupt = false
	return c.MemoryTokenStorage.Delete(ctx)
}

func TestObtainAccessToken_CorruptTokenTreatedAsAbsent(t *testing.T) {
	ex := &fakeExchanger{expiry: testNow.Add(time.Hour)}
	storage := &corruptStorage{corrupt: true}
	repo := NewService(ex, WithClock(func() time.Time { return testNow })).Repository("user", storage)

	if _, err := repo.GetAccessToken(context.Background()); !errors.Is(err, ErrNullAccessToken) {
		t.Fatalf("GetAccessToken() error = %v, want ErrNullAccessToken", err)
	}
	if storage.corrupt {
		t.Error("corrupt token was not deleted")
	}
}

func TestTokenSource(t *testing.T) {
	ex := &fakeExchanger{}
	repo, _ := newTestRepo(ex, &AccessTokenInfo{Token: "cached", ExpiresAt: testNow.Add(time.Hour)})

	tok, err := repo.TokenSource(context.Background()).Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "cached" || tok.TokenType != "Bearer" {
		t.Errorf("Token() = %+v", tok)
	}
}

func TestStoreImplicitGrant(t *testing.T) {
	tests := []struct {
		name       string
		values     url.Values
		wantErr    error
		wantExpiry time.Time
	}{
		{
			name:       "valid grant",
			values:     url.Values{"access_token": {"implicit"}, "expires_in": {"1800"}, "state": {"s"}},
			wantExpiry: testNow.Add(30 * time.Minute),
		},
		{
			name:       "default expiry",
			values:     url.Values{"access_token": {"implicit"}, "state": {"s"}},
			wantExpiry: testNow.Add(time.Hour),
		},
		{
			name:    "state mismatch",
			values:  url.Values{"access_token": {"implicit"}, "state": {"other"}},
			wantErr: ErrStateMismatch,
		},
		{
			name:    "missing token",
			values:  url.Values{"state": {"s"}},
			wantErr: ErrMissingAccessToken,
		},
		{
			name:    "bad expires_in",
			values:  url.Values{"access_token": {"implicit"}, "expires_in": {"soon"}, "state": {"s"}},
			wantErr: ErrInvalidGrantResponse,
		},
		{
			name:    "negative expires_in",
			values:  url.Values{"access_token": {"implicit"}, "expires_in": {"-5"}, "state": {"s"}},
			wantErr: ErrInvalidGrantResponse,
		},
		{
			name:    "error from spotify",
			values:  url.Values{"error": {"access_denied"}, "state": {"s"}},
			wantErr: ErrAuthDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, storage := newTestRepo(&fakeExchanger{}, nil)

			info, err := repo.StoreImplicitGrant(context.Background(), tt.values, "s")
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			case err != nil:
				t.Fatalf("unexpected error: %v", err)
			}

			if !info.ExpiresAt.Equal(tt.wantExpiry) {
				t.Errorf("ExpiresAt = %v, want %v", info.ExpiresAt, tt.wantExpiry)
			}
			if info.RefreshToken != "" {
				t.Errorf("implicit grant has refresh token %q", info.RefreshToken)
			}
			if stored, _ := storage.Load(context.Background()); stored == nil || stored.Token != "implicit" {
				t.Errorf("stored = %+v", stored)
			}
		})
	}
}

func TestAuthURLs(t *testing.T) {
	svc := NewService(&fakeExchanger{})

	code, err := url.Parse(svc.AuthURL("xyz"))
	if err != nil {
		t.Fatal(err)
	}
	if got := code.Query().Get("response_type"); got != "code" {
		t.Errorf("code flow response_type = %q", got)
	}
	if got := code.Query().Get("state"); got != "xyz" {
		t.Errorf("state = %q", got)
	}

	implicit, _ := url.Parse(svc.ImplicitAuthURL("xyz"))
	if got := implicit.Query().Get("response_type"); got != "token" {
		t.Errorf("implicit flow response_type = %q", got)
	}
}

func TestOAuth2Exchanger(t *testing.T) {
	var lastForm url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		lastForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			fmt.Fprint(w, `{"access_token":"from-code","token_type":"Bearer","expires_in":3600,"refresh_token":"r1"}`)
		case "refresh_token":
			if r.PostForm.Get("refresh_token") == "revoked" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Refresh token revoked"}`)
				return
			}
			fmt.Fprint(w, `{"access_token":"from-refresh","token_type":"Bearer","expires_in":3600}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer ts.Close()

	ex := NewOAuth2Exchanger("client", "secret", "http://127.0.0.1:8080/callback",
		WithEndpoint("", ts.URL+"/api/token"),
		WithHTTPClient(ts.Client()),
	)
	ctx := context.Background()

	tok, err := ex.Exchange(ctx, "the-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok.AccessToken != "from-code" || tok.RefreshToken != "r1" {
		t.Errorf("Exchange() = %+v", tok)
	}
	if lastForm.Get("code") != "the-code" || lastForm.Get("redirect_uri") != "http://127.0.0.1:8080/callback" {
		t.Errorf("exchange form = %v", lastForm)
	}

	tok, err = ex.Refresh(ctx, "r1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tok.AccessToken != "from-refresh" {
		t.Errorf("Refresh() AccessToken = %q", tok.AccessToken)
	}
	if tok.RefreshToken != "r1" {
		t.Errorf("Refresh() RefreshToken = %q, want original kept", tok.RefreshToken)
	}

	_, err = ex.Refresh(ctx, "revoked")
	if !isInvalidGrant(err) {
		t.Errorf("Refresh(revoked) error = %v, want invalid_grant", err)
	}

	if !strings.HasPrefix(ex.AuthCodeURL("s"), "https://accounts.spotify.com/authorize") {
		t.Errorf("AuthCodeURL() = %q, want Spotify accounts host", ex.AuthCodeURL("s"))
	}
}

func TestGenerateState(t *testing.T) {
	state1, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if len(state1) != 32 { // 16 bytes = 32 hex chars
		t.Errorf("GenerateState() length = %d, want 32", len(state1))
	}

	state2, _ := GenerateState()
	if state1 == state2 {
		t.Error("GenerateState() returned same value twice")
	}
}
