package google

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials indicates that the OAuth client descriptor file is
// absent. This is a fatal configuration error: the process cannot authorize
// anything without it and there is no point retrying.
var ErrMissingCredentials = errors.New("credentials file not found")

// ErrBadCredentials indicates the credentials file exists but could not be
// parsed as a desktop-app OAuth client descriptor. Also fatal.
var ErrBadCredentials = errors.New("credentials file invalid")

// AuthError wraps a failure to obtain or refresh an authorized credential.
// Unlike a configuration error it is surfaced to the caller as a tool-call
// failure and can be retried by re-invoking the tool.
type AuthError struct {
	// Op names the step that failed: "load", "refresh", "exchange", "consent"
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("google auth %s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsConfigurationError reports whether err is a fatal configuration problem,
// such as a missing or unparseable credentials file.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrBadCredentials)
}
