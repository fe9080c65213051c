package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"golang.org/x/oauth2"
	oauth2google "golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/trasousa/mcp-gmail/internal/instrumentation"
)

// DefaultConsentTimeout bounds how long the interactive consent flow waits
// for the user to authorize in the browser.
const DefaultConsentTimeout = 5 * time.Minute

// Authenticator produces authorized OAuth2 token sources for the Gmail API.
//
// A valid cached token is reused without any network call or file write. An
// expired token with a refresh token is refreshed transparently and the
// updated credential is persisted back to the token cache. When neither is
// possible the interactive browser consent flow runs.
type Authenticator struct {
	conf      *oauth2.Config
	tokenPath string
	logger    *slog.Logger
	metrics   *instrumentation.Metrics

	mu     sync.Mutex
	source oauth2.TokenSource

	// Test seams. consentFn replaces the interactive flow; openBrowserFn
	// replaces the browser launcher.
	consentFn      func(ctx context.Context) (*oauth2.Token, error)
	openBrowserFn  func(url string)
	consentTimeout time.Duration
}

// NewAuthenticator creates an Authenticator from the secrets directory.
// The directory must contain credentials.json (a desktop-app OAuth client
// descriptor from the Google Cloud Console); a missing file is a fatal
// configuration error.
func NewAuthenticator(secretsDir string, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	credPath := CredentialsPath(secretsDir)
	data, err := os.ReadFile(credPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (download OAuth 2.0 Client ID credentials of type Desktop app from the Google Cloud Console and save them there)", ErrMissingCredentials, credPath)
		}
		return nil, fmt.Errorf("failed to read credentials file %s: %w", credPath, err)
	}

	conf, err := oauth2google.ConfigFromJSON(data, gmailv1.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadCredentials, credPath, err)
	}

	return &Authenticator{
		conf:           conf,
		tokenPath:      TokenPath(secretsDir),
		logger:         logger,
		consentTimeout: DefaultConsentTimeout,
	}, nil
}

// SetMetrics attaches a metrics recorder for token refresh observability.
func (a *Authenticator) SetMetrics(m *instrumentation.Metrics) {
	a.metrics = m
}

// Scopes returns the OAuth scopes this authenticator requests.
func (a *Authenticator) Scopes() []string {
	return a.conf.Scopes
}

// TokenSource returns an authorized token source, running the interactive
// consent flow if no usable cached credential exists. The returned source is
// cached for the process lifetime and persists refreshed tokens back to the
// token cache file.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.source != nil {
		return a.source, nil
	}

	tok, err := LoadToken(a.tokenPath, a.conf.Scopes)
	switch {
	case err == nil:
		if !tok.Valid() && tok.RefreshToken == "" {
			// Expired with no way to refresh: back to consent
			a.logger.Warn("cached token expired without refresh token, re-running consent")
			tok = nil
		}
	case errors.Is(err, ErrNoToken):
		tok = nil
	case errors.Is(err, ErrScopeMismatch):
		a.logger.Warn("discarding cached token with mismatched scopes")
		tok = nil
	default:
		return nil, &AuthError{Op: "load", Err: err}
	}

	if tok == nil {
		tok, err = a.consent(ctx)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(a.tokenPath, tok, a.conf.Scopes); err != nil {
			return nil, &AuthError{Op: "consent", Err: err}
		}
	}

	a.source = &persistingTokenSource{
		auth:  a,
		inner: a.conf.TokenSource(ctx, tok),
		last:  tok,
	}
	return a.source, nil
}

// Authorize ensures a usable credential exists, running the consent flow if
// necessary, and returns the current token.
func (a *Authenticator) Authorize(ctx context.Context) (*oauth2.Token, error) {
	ts, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return ts.Token()
}

// consent runs the interactive browser consent flow (or the test seam).
func (a *Authenticator) consent(ctx context.Context) (*oauth2.Token, error) {
	if a.consentFn != nil {
		return a.consentFn(ctx)
	}
	return a.runConsentFlow(ctx)
}

// runConsentFlow starts a loopback redirect listener on an ephemeral port,
// opens the authorization URL in the user's browser and exchanges the
// returned code for a token. Blocks until the user acts, the context is
// cancelled, or the consent timeout elapses.
func (a *Authenticator) runConsentFlow(ctx context.Context) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, &AuthError{Op: "consent", Err: fmt.Errorf("failed to start redirect listener: %w", err)}
	}

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, &AuthError{Op: "consent", Err: err}
	}

	conf := *a.conf
	conf.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization response state mismatch")
			return
		}
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			errCh <- fmt.Errorf("authorization denied: %s", errParam)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization response missing code")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>Authorization complete. You can close this window.</body></html>")
		codeCh <- code
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Offline access so a refresh token is granted
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)

	fmt.Fprintf(os.Stderr, "Opening browser for Google authorization...\n")
	fmt.Fprintf(os.Stderr, "If the browser does not open automatically, visit:\n%s\n", authURL)
	a.openBrowser(authURL)

	timeout := a.consentTimeout
	if timeout <= 0 {
		timeout = DefaultConsentTimeout
	}

	var code string
	select {
	case code = <-codeCh:
	case flowErr := <-errCh:
		return nil, &AuthError{Op: "consent", Err: flowErr}
	case <-ctx.Done():
		return nil, &AuthError{Op: "consent", Err: ctx.Err()}
	case <-time.After(timeout):
		return nil, &AuthError{Op: "consent", Err: fmt.Errorf("authorization timed out after %s", timeout)}
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Op: "exchange", Err: err}
	}

	a.logger.Info("authorization complete, credential cached")
	return tok, nil
}

func (a *Authenticator) openBrowser(url string) {
	if a.openBrowserFn != nil {
		a.openBrowserFn(url)
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		a.logger.Warn("could not open browser automatically", "error", err.Error())
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// persistingTokenSource wraps the refresh token source and writes refreshed
// tokens back to the cache file, so a refresh survives process restarts.
type persistingTokenSource struct {
	auth  *Authenticator
	inner oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

// Token returns a valid token, refreshing and persisting it if the cached
// one has expired. A valid cached token triggers neither a network call nor
// a file write.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.inner.Token()
	if err != nil {
		if s.auth.metrics != nil {
			s.auth.metrics.RecordOAuthTokenRefresh(context.Background(), instrumentation.OAuthResultFailure)
		}
		return nil, &AuthError{Op: "refresh", Err: err}
	}

	if tok.AccessToken != s.last.AccessToken || !tok.Expiry.Equal(s.last.Expiry) {
		if err := SaveToken(s.auth.tokenPath, tok, s.auth.conf.Scopes); err != nil {
			s.auth.logger.Warn("failed to persist refreshed token", "error", err.Error())
		} else {
			s.auth.logger.Debug("persisted refreshed token")
		}
		if s.auth.metrics != nil {
			s.auth.metrics.RecordOAuthTokenRefresh(context.Background(), instrumentation.OAuthResultSuccess)
		}
		s.last = tok
	}

	return tok, nil
}
