package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/trasousa/mcp-gmail/internal/instrumentation"
)

// errorResponse is the JSON body returned for rejected requests.
type errorResponse struct {
	Error string `json:"error"`
}

// APIKeyMiddleware guards an HTTP handler behind a static bearer API key.
// Requests must carry "Authorization: Bearer <key>"; the comparison is
// constant-time so the key cannot be probed byte by byte.
//
// An empty expected key disables the check entirely, which is the stdio
// deployment default where the transport itself is private.
func APIKeyMiddleware(expectedKey string, metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	if expectedKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		key, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
			if metrics != nil {
				metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, http.StatusUnauthorized, time.Since(start))
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="mcp-gmail"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(errorResponse{Error: "invalid or missing API key"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
