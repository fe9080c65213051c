package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/trasousa/mcp-gmail/internal/google"
	"github.com/trasousa/mcp-gmail/internal/instrumentation"
	"github.com/trasousa/mcp-gmail/internal/logging"
	"github.com/trasousa/mcp-gmail/internal/server"
	"github.com/trasousa/mcp-gmail/internal/tools/gmail_tools"
)

const (
	// DefaultSecretsDir is where credentials.json and token.json live unless
	// overridden by flag or environment.
	DefaultSecretsDir = "secrets"

	// DefaultHTTPAddr is the default bind address for the streamable HTTP
	// transport.
	DefaultHTTPAddr = ":8080"
)

// ServeConfig holds the resolved serve command configuration.
type ServeConfig struct {
	// Transport is "stdio" or "streamable-http".
	Transport string

	// Debug enables debug-level logging.
	Debug bool

	// SecretsDir contains credentials.json and the cached token.json.
	SecretsDir string

	// HTTPAddr is the bind address for the streamable-http transport.
	HTTPAddr string

	// APIKey guards the HTTP transport. Empty disables the check.
	APIKey string

	// MetricsEnabled starts the dedicated metrics server (HTTP transport only).
	MetricsEnabled bool

	// MetricsAddr is the bind address for the metrics server.
	MetricsAddr string
}

func newServeCmd() *cobra.Command {
	var cfg ServeConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing read-only Gmail
tools for AI assistants.

Supports two transport types:
  - stdio: standard input/output (default)
  - streamable-http: streamable HTTP transport

The server needs a Google OAuth desktop-app client descriptor at
<secrets-dir>/credentials.json. On first use it runs a browser consent
flow and caches the resulting token at <secrets-dir>/token.json; run
'mcp-gmail auth' to do this ahead of time.

The HTTP transport can be guarded with a static API key via --api-key or
the API_KEY environment variable. Clients then send
"Authorization: Bearer <key>" with every request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolveServeEnv(cmd, &cfg)
			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.Transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&cfg.SecretsDir, "secrets-dir", DefaultSecretsDir, "Directory containing credentials.json and token.json. Can also use MCP_GMAIL_SECRETS_DIR env var.")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	cmd.Flags().StringVar(&cfg.APIKey, "api-key", "", "Static API key required as a bearer token on the HTTP transport. Can also use API_KEY env var. Empty disables the check.")
	cmd.Flags().BoolVar(&cfg.MetricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (HTTP transport only). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// resolveServeEnv fills config values from environment variables when the
// corresponding flag was not explicitly set.
func resolveServeEnv(cmd *cobra.Command, cfg *ServeConfig) {
	if !cmd.Flags().Changed("secrets-dir") {
		if dir := os.Getenv("MCP_GMAIL_SECRETS_DIR"); dir != "" {
			cfg.SecretsDir = dir
		}
	}
	if !cmd.Flags().Changed("api-key") {
		if key := os.Getenv("API_KEY"); key != "" {
			cfg.APIKey = key
		}
	}
	if !cmd.Flags().Changed("metrics-enabled") {
		if os.Getenv("METRICS_ENABLED") == "false" {
			cfg.MetricsEnabled = false
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			cfg.MetricsAddr = addr
		}
	}
}

func runServe(cfg ServeConfig) error {
	// Graceful shutdown on SIGINT/SIGTERM
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// All logging goes to stderr; stdout belongs to the stdio transport.
	logger := logging.New(cfg.Debug)
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	// A missing or invalid credentials file is fatal: exit non-zero before
	// accepting any transport traffic.
	auth, err := google.NewAuthenticator(cfg.SecretsDir, logger)
	if err != nil {
		return fmt.Errorf("gmail authentication setup failed: %w", err)
	}

	serverContext := server.NewServerContext(shutdownCtx, auth, logger)
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("mcp-gmail", version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := gmail_tools.RegisterGmailTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register Gmail tools: %w", err)
	}

	switch cfg.Transport {
	case "stdio":
		logger.Info("starting MCP server", "transport", "stdio")
		return runStdioServer(shutdownCtx, mcpSrv, logger)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, provider, cfg, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", cfg.Transport)
	}
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

func runStreamableHTTPServer(
	ctx context.Context,
	mcpSrv *mcpserver.MCPServer,
	serverContext *server.ServerContext,
	provider *instrumentation.Provider,
	cfg ServeConfig,
	logger *slog.Logger,
) error {
	// Metrics server on a dedicated port, confirmed up before serving traffic
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", "addr", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	streamableSrv := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	)

	healthChecker := server.NewHealthChecker(serverContext)

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", server.APIKeyMiddleware(cfg.APIKey, metrics, streamableSrv))
	mux.Handle("/healthz", healthChecker.LivenessHandler())
	mux.Handle("/readyz", healthChecker.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting MCP server",
		"transport", "streamable-http",
		"addr", cfg.HTTPAddr,
		"api_key_required", cfg.APIKey != "",
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		healthChecker.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server stopped")
	return nil
}
