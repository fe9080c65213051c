package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// File names inside the secrets directory.
const (
	credentialsFile = "credentials.json"
	tokenFile       = "token.json"
)

// ErrNoToken indicates that no cached token exists yet.
var ErrNoToken = errors.New("no cached token")

// ErrScopeMismatch indicates that the cached token was granted for a
// different scope set than the one requested. The cache is considered
// invalid and a new consent is required.
var ErrScopeMismatch = errors.New("cached token scopes do not match requested scopes")

// cachedToken is the on-disk format of token.json.
type cachedToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// CredentialsPath returns the path of the OAuth client descriptor file.
func CredentialsPath(secretsDir string) string {
	return filepath.Join(secretsDir, credentialsFile)
}

// TokenPath returns the path of the cached token file.
func TokenPath(secretsDir string) string {
	return filepath.Join(secretsDir, tokenFile)
}

// LoadToken reads the cached token from path and validates that it was
// granted for exactly the requested scopes. Returns ErrNoToken when the file
// does not exist and ErrScopeMismatch when the scope sets differ.
func LoadToken(path string, scopes []string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token file %s: %w", path, err)
	}

	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}

	if !scopesEqual(cached.Scopes, scopes) {
		return nil, ErrScopeMismatch
	}

	return &oauth2.Token{
		AccessToken:  cached.AccessToken,
		TokenType:    cached.TokenType,
		RefreshToken: cached.RefreshToken,
		Expiry:       cached.Expiry,
	}, nil
}

// SaveToken writes the token and its granted scopes to path, creating the
// parent directory if needed. The file is written with owner-only
// permissions since it contains live credentials.
func SaveToken(path string, tok *oauth2.Token, scopes []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}

	cached := cachedToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}

	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file %s: %w", path, err)
	}

	return nil
}

// scopesEqual reports whether two scope sets are equal, ignoring order.
func scopesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
