package gmail

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClassifyAPIError(t *testing.T) {
	plainErr := errors.New("connection refused")

	tests := []struct {
		name         string
		err          error
		wantUpstream bool
	}{
		{"nil", nil, false},
		{"non-api error passes through", plainErr, false},
		{"429", &googleapi.Error{Code: 429, Message: "rate limited"}, true},
		{"500", &googleapi.Error{Code: 500, Message: "backend error"}, true},
		{"503", &googleapi.Error{Code: 503, Message: "unavailable"}, true},
		{"400 malformed query passes through", &googleapi.Error{Code: 400, Message: "Invalid query"}, false},
		{"404 passes through", &googleapi.Error{Code: 404, Message: "not found"}, false},
		{"403 plain passes through", &googleapi.Error{Code: 403, Message: "forbidden"}, false},
		{
			name: "403 rate limit reason",
			err: &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{
				{Reason: "rateLimitExceeded"},
			}},
			wantUpstream: true,
		},
		{
			name: "403 quota reason",
			err: &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{
				{Reason: "quotaExceeded"},
			}},
			wantUpstream: true,
		},
		{
			name:         "403 limit exceeded message",
			err:          &googleapi.Error{Code: 403, Message: "User Rate Limit Exceeded"},
			wantUpstream: true,
		},
		{
			name:         "wrapped api error",
			err:          fmt.Errorf("call failed: %w", &googleapi.Error{Code: 429}),
			wantUpstream: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyAPIError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.wantUpstream, IsUpstreamUnavailable(got))
			if !tt.wantUpstream {
				// Non-upstream errors pass through verbatim
				assert.Equal(t, tt.err, got)
			}
		})
	}
}

func TestUpstreamErrorUnwrap(t *testing.T) {
	inner := &googleapi.Error{Code: 503, Message: "unavailable"}
	err := classifyAPIError(inner)

	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)
	assert.Equal(t, 503, ue.Status)

	var apiErr *googleapi.Error
	assert.ErrorAs(t, err, &apiErr)
	assert.Contains(t, err.Error(), "gmail api unavailable")
}
