package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/trasousa/mcp-gmail/internal/gmail"
	"github.com/trasousa/mcp-gmail/internal/google"
	"github.com/trasousa/mcp-gmail/internal/instrumentation"
	"github.com/trasousa/mcp-gmail/internal/logging"
)

func TestServerContextInjectedClient(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, logging.New(false))

	injected := &gmail.Client{}
	sc.SetGmailClient(injected)

	client, err := sc.GmailClient()
	require.NoError(t, err)
	assert.Same(t, injected, client)
}

// writeDesktopCredentials writes a desktop-app OAuth client descriptor whose
// token endpoint points at tokenURL.
func writeDesktopCredentials(t *testing.T, secretsDir, tokenURL string) {
	t.Helper()

	creds := fmt.Sprintf(`{
  "installed": {
    "client_id": "test-client-id",
    "client_secret": "test-client-secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": %q,
    "redirect_uris": ["http://localhost"]
  }
}`, tokenURL)

	require.NoError(t, os.MkdirAll(secretsDir, 0700))
	require.NoError(t, os.WriteFile(google.CredentialsPath(secretsDir), []byte(creds), 0600))
}

func TestGmailClientOutlivesRequestContext(t *testing.T) {
	dir := t.TempDir()

	var refreshes atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		n := refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		// expires_in below the oauth2 expiry skew, so every call refreshes
		fmt.Fprintf(w, `{"access_token":"refreshed-%d","token_type":"Bearer","expires_in":1,"refresh_token":"refresh-token"}`, n)
	}))
	t.Cleanup(tokenSrv.Close)

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer refreshed-")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&gmailv1.ListMessagesResponse{})
	}))
	t.Cleanup(apiSrv.Close)

	writeDesktopCredentials(t, dir, tokenSrv.URL)
	expired := &oauth2.Token{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-token",
		Expiry:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, google.SaveToken(google.TokenPath(dir), expired, []string{gmailv1.GmailReadonlyScope}))

	auth, err := google.NewAuthenticator(dir, logging.New(false))
	require.NoError(t, err)

	sc := NewServerContext(context.Background(), auth, logging.New(false))
	defer func() { _ = sc.Shutdown() }()
	sc.SetClientOptions(option.WithEndpoint(apiSrv.URL))

	client, err := sc.GmailClient()
	require.NoError(t, err)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	_, err = client.ListUnread(reqCtx, 1)
	require.NoError(t, err)
	cancelReq()

	// A cancelled request context must not poison the cached client: the
	// next call still refreshes through the shared token source.
	_, err = client.ListUnread(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), refreshes.Load())
}

func TestServerContextInstrumentation(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, logging.New(false))

	assert.Nil(t, sc.Metrics())
	assert.Nil(t, sc.AuditLogger())

	metrics := &instrumentation.Metrics{}
	sc.SetMetrics(metrics)
	assert.Same(t, metrics, sc.Metrics())

	al := instrumentation.NewAuditLogger(logging.New(false))
	sc.SetAuditLogger(al)
	assert.Same(t, al, sc.AuditLogger())
}

func TestServerContextShutdown(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, logging.New(false))
	assert.False(t, sc.IsShutdown())

	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())

	select {
	case <-sc.Context().Done():
	default:
		t.Fatal("context should be cancelled after shutdown")
	}

	// Idempotent
	require.NoError(t, sc.Shutdown())
}
