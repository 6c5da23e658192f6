package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const callbackTimeout = 2 * time.Minute

// ErrAuthTimeout is returned when the OAuth callback is not received in time.
var ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

// LoginFlow runs the authorization-code flow from a terminal: it prints the
// authorize URL and waits for Spotify to redirect to a loopback callback server.
type LoginFlow struct {
	svc         *Service
	repo        *Repository
	redirectURL string
	out         io.Writer
	timeout     time.Duration
}

// NewLoginFlow creates a flow that stores the token through repo. redirectURL
// must be a loopback URL registered with the Spotify application.
func NewLoginFlow(svc *Service, repo *Repository, redirectURL string, out io.Writer) *LoginFlow {
	return &LoginFlow{
		svc:         svc,
		repo:        repo,
		redirectURL: redirectURL,
		out:         out,
		timeout:     callbackTimeout,
	}
}

type callbackResult struct {
	info *AccessTokenInfo
	err  error
}

// Run performs the flow and returns the stored token.
func (f *LoginFlow) Run(ctx context.Context) (*AccessTokenInfo, error) {
	redirect, err := url.Parse(f.redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}

	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listening for callback: %w", err)
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		f.handleCallback(w, r, state, resultCh)
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("callback server error: %w", err)}:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Fprintln(f.out, "\nTo authenticate, open this URL in your browser:")
	fmt.Fprintln(f.out, f.svc.AuthURL(state))
	fmt.Fprintln(f.out, "\nWaiting for authentication...")

	select {
	case res := <-resultCh:
		return res.info, res.err
	case <-time.After(f.timeout):
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleCallback processes the redirect from Spotify.
func (f *LoginFlow) handleCallback(w http.ResponseWriter, r *http.Request, expectedState string, resultCh chan<- callbackResult) {
	send := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	query := r.URL.Query()
	if query.Get("state") != expectedState {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		send(callbackResult{err: ErrStateMismatch})
		return
	}

	if errMsg := query.Get("error"); errMsg != "" {
		http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("spotify auth error: %s", errMsg)})
		return
	}

	info, err := f.repo.ObtainAccessToken(r.Context(), query.Get("code"))
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		send(callbackResult{err: err})
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body>
<h1>Authentication Successful!</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)

	send(callbackResult{info: info})
}
