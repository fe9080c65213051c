package server

import (
	"context"
	"log/slog"
	"sync"

	"google.golang.org/api/option"

	"github.com/trasousa/mcp-gmail/internal/gmail"
	"github.com/trasousa/mcp-gmail/internal/google"
	"github.com/trasousa/mcp-gmail/internal/instrumentation"
)

// ServerContext holds the context for the MCP server.
//
// The Gmail client is built lazily on first use so the server can start (and
// list its tools) before the user has authorized; the first tool call then
// triggers authorization. The client is cached for the process lifetime --
// token expiry between calls is handled inside its token source.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	auth   *google.Authenticator
	logger *slog.Logger

	mu          sync.RWMutex
	gmailClient *gmail.Client
	clientOpts  []option.ClientOption
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	shutdown    bool
}

// NewServerContext creates a new server context around the authenticator.
func NewServerContext(ctx context.Context, auth *google.Authenticator, logger *slog.Logger) *ServerContext {
	if logger == nil {
		logger = slog.Default()
	}
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		auth:   auth,
		logger: logger,
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// GmailClient returns the Gmail client, creating it on first use. Creation
// may block on the interactive consent flow when no cached credential exists.
//
// The client and its token source are built from the server context, never
// from a request context: on the HTTP transport a request context is
// cancelled as soon as the request completes, and a token source bound to it
// would fail every later refresh with context.Canceled.
func (sc *ServerContext) GmailClient() (*gmail.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.gmailClient != nil {
		return sc.gmailClient, nil
	}

	client, err := gmail.NewClient(sc.ctx, sc.auth, sc.logger, sc.clientOpts...)
	if err != nil {
		return nil, err
	}
	if sc.metrics != nil {
		client.SetMetrics(sc.metrics)
	}

	sc.gmailClient = client
	return client, nil
}

// SetGmailClient sets the Gmail client. Used by tests to inject a client
// backed by a fake API server.
func (sc *ServerContext) SetGmailClient(client *gmail.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gmailClient = client
}

// SetClientOptions sets extra options applied when the Gmail client is
// built. Must be called before the first GmailClient call; used by tests to
// point the real construction path at a fake API server.
func (sc *ServerContext) SetClientOptions(opts ...option.ClientOption) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.clientOpts = opts
}

// SetMetrics attaches the metrics recorder used for tool instrumentation.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
	if sc.gmailClient != nil {
		sc.gmailClient.SetMetrics(m)
	}
	if sc.auth != nil {
		sc.auth.SetMetrics(m)
	}
}

// Metrics returns the metrics recorder, or nil if not configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger attaches the audit logger used for tool instrumentation.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, or nil if not configured.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
