// Package google provides OAuth2 authentication and token management for
// the Gmail API.
//
// Credentials are read from a secrets directory containing two files:
//
//   - credentials.json: the OAuth2 desktop-app client descriptor downloaded
//     from the Google Cloud Console (read-only input)
//   - token.json: the cached user credential (access/refresh token, expiry,
//     granted scopes), created and updated by this package
//
// The Authenticator hands out token sources that reuse the cached credential
// while it is valid, refresh it transparently when it has expired, and fall
// back to an interactive browser consent flow when no usable credential
// exists. The requested scope is fixed to gmail.readonly and never escalates
// at runtime; a cached token granted for different scopes is discarded.
package google
