package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/trasousa/mcp-gmail/internal/google"
	"github.com/trasousa/mcp-gmail/internal/instrumentation"
	"github.com/trasousa/mcp-gmail/internal/logging"
)

// unreadLabelID is the Gmail system label for unread messages.
const unreadLabelID = "UNREAD"

// DefaultAPITimeout bounds each outbound Gmail RPC so a stalled upstream
// cannot hang a tool call indefinitely.
const DefaultAPITimeout = 30 * time.Second

// metadataHeaders are the headers resolved for each message summary.
var metadataHeaders = []string{"Subject", "From", "Date"}

// MessageSummary is the per-message record returned by both tools.
type MessageSummary struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId,omitempty"`
	Subject  string `json:"subject,omitempty"`
	From     string `json:"from,omitempty"`
	Date     string `json:"date,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// Client wraps the Gmail Users service for the read operations this server
// exposes. All calls act on the authenticated user ("me").
type Client struct {
	svc     *gmailv1.UsersService
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	timeout time.Duration
}

// NewClient creates a Gmail client authorized through auth. The token source
// is obtained lazily here, so the first construction may run the interactive
// consent flow; a session expiring between calls is refreshed transparently
// by the underlying token source.
//
// ctx must outlive the client: token refreshes run on it, so it has to be a
// long-lived server context rather than a per-request one. Additional opts
// are passed through to the Gmail service constructor.
func NewClient(ctx context.Context, auth *google.Authenticator, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	ts, err := auth.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	svcOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gmailv1.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return newClient(svc, logger), nil
}

// NewClientWithService creates a client over an existing Gmail service.
// Used by tests to point the client at a fake API server.
func NewClientWithService(svc *gmailv1.Service, logger *slog.Logger) *Client {
	return newClient(svc, logger)
}

func newClient(svc *gmailv1.Service, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:     svc.Users,
		logger:  logger,
		timeout: DefaultAPITimeout,
	}
}

// SetMetrics attaches a metrics recorder for Gmail API observability.
func (c *Client) SetMetrics(m *instrumentation.Metrics) {
	c.metrics = m
}

// SetTimeout overrides the per-RPC timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// ListUnread returns summaries for up to max unread messages, newest first
// as returned by the API.
func (c *Client) ListUnread(ctx context.Context, max int) ([]MessageSummary, error) {
	ctx, span := instrumentation.StartGmailSpan(ctx, instrumentation.OperationList)
	defer span.End()

	refs, err := c.listIDs(ctx, instrumentation.OperationList, "", []string{unreadLabelID}, max)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	summaries, err := c.resolveSummaries(ctx, refs)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return summaries, nil
}

// Search returns summaries for up to max messages matching the Gmail query,
// in the relevance order returned by the API. The query is passed through
// verbatim; a malformed query is rejected upstream and that rejection is
// propagated unchanged.
func (c *Client) Search(ctx context.Context, query string, max int) ([]MessageSummary, error) {
	ctx, span := instrumentation.StartGmailSpan(ctx, instrumentation.OperationSearch)
	defer span.End()

	refs, err := c.listIDs(ctx, instrumentation.OperationSearch, query, nil, max)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	summaries, err := c.resolveSummaries(ctx, refs)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return summaries, nil
}

// listIDs issues a single messages.list call with the given query and
// labels. operation is the metric label, so search traffic stays
// distinguishable from unread listing.
func (c *Client) listIDs(ctx context.Context, operation, query string, labelIDs []string, max int) ([]*gmailv1.Message, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	call := c.svc.Messages.List("me").MaxResults(int64(max)).Context(opCtx)
	if query != "" {
		call = call.Q(query)
	}
	if len(labelIDs) > 0 {
		call = call.LabelIds(labelIDs...)
	}

	res, err := call.Do()
	c.recordOperation(ctx, operation, err, time.Since(start))
	if err != nil {
		return nil, classifyAPIError(err)
	}

	c.logger.Debug("listed messages",
		logging.Operation("messages.list"),
		slog.Int(logging.KeyCount, len(res.Messages)),
	)
	return res.Messages, nil
}

// resolveSummaries fetches metadata for each listed message. A failed fetch
// drops the message and logs a warning; only when every fetch fails does the
// whole batch fail.
func (c *Client) resolveSummaries(ctx context.Context, refs []*gmailv1.Message) ([]MessageSummary, error) {
	if len(refs) == 0 {
		return []MessageSummary{}, nil
	}

	summaries := make([]MessageSummary, 0, len(refs))
	var lastErr error

	for _, ref := range refs {
		summary, err := c.getSummary(ctx, ref.Id)
		if err != nil {
			lastErr = err
			c.logger.Warn("failed to fetch message details, skipping",
				logging.MessageID(ref.Id),
				logging.Err(err),
			)
			continue
		}
		summaries = append(summaries, summary)
	}

	if len(summaries) == 0 && lastErr != nil {
		return nil, fmt.Errorf("failed to fetch details for all %d messages: %w", len(refs), classifyAPIError(lastErr))
	}

	return summaries, nil
}

// getSummary resolves one message id to its summary via a metadata-format get.
func (c *Client) getSummary(ctx context.Context, id string) (MessageSummary, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	msg, err := c.svc.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(opCtx).
		Do()
	c.recordOperation(ctx, instrumentation.OperationGet, err, time.Since(start))
	if err != nil {
		return MessageSummary{}, err
	}

	summary := MessageSummary{
		ID:       id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				summary.Subject = h.Value
			case "From":
				summary.From = h.Value
			case "Date":
				summary.Date = h.Value
			}
		}
	}
	return summary, nil
}

func (c *Client) recordOperation(ctx context.Context, operation string, err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGmailOperation(ctx, operation, status, duration)
}
