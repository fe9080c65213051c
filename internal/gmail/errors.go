package gmail

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
)

// UpstreamError indicates that the Gmail API is temporarily unavailable:
// quota exhausted, rate limited, or a server-side failure. Callers may retry
// with backoff; this server never retries internally.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gmail api unavailable (status %d): %v", e.Status, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstreamUnavailable reports whether err represents a retryable upstream
// failure.
func IsUpstreamUnavailable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// classifyAPIError maps Gmail API errors onto the local taxonomy. Rate
// limits (429, and 403 with a rate-limit reason) and 5xx responses become
// UpstreamError; everything else, including the API's rejection of a
// malformed query, passes through verbatim.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == 429 || apiErr.Code >= 500:
		return &UpstreamError{Status: apiErr.Code, Err: err}
	case apiErr.Code == 403 && hasRateLimitReason(apiErr):
		return &UpstreamError{Status: apiErr.Code, Err: err}
	default:
		return err
	}
}

// hasRateLimitReason checks the error detail for Gmail's quota reasons,
// which arrive as 403 rather than 429.
func hasRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return strings.Contains(apiErr.Message, "Limit Exceeded")
}
