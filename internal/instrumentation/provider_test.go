package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false

	provider, err := NewProvider(context.Background(), config)
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.NotNil(t, provider.Metrics())
	assert.NotNil(t, provider.Tracer(TracerName))
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProviderInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.MetricsExporter = "statsd"

	_, err := NewProvider(context.Background(), config)
	assert.Error(t, err)
}

func TestZeroValueMetricsAreNoOps(t *testing.T) {
	// A zero-value Metrics must be safe to call before instruments exist
	m := &Metrics{}
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "POST", "/mcp", 200, time.Millisecond)
	m.RecordGmailOperation(ctx, OperationList, StatusSuccess, time.Millisecond)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	m.RecordToolInvocation(ctx, "list_unread", StatusSuccess, time.Millisecond)
}
