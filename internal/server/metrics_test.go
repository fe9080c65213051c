package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trasousa/mcp-gmail/internal/instrumentation"
)

func disabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()

	config := instrumentation.DefaultConfig()
	config.Enabled = false

	provider, err := instrumentation.NewProvider(context.Background(), config)
	require.NoError(t, err)
	return provider
}

func TestNewMetricsServerRequiresProvider(t *testing.T) {
	_, err := NewMetricsServer(MetricsServerConfig{Addr: ":9090", Enabled: true})
	assert.Error(t, err)
}

func TestNewMetricsServerRequiresEnabledProvider(t *testing.T) {
	_, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    ":9090",
		Enabled:                 true,
		InstrumentationProvider: disabledProvider(t),
	})
	assert.Error(t, err)
}

func TestMetricsServerShutdownWithoutStart(t *testing.T) {
	s := &MetricsServer{addr: DefaultMetricsAddr}
	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, DefaultMetricsAddr, s.Addr())
}
