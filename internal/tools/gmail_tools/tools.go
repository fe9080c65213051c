package gmail_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/trasousa/mcp-gmail/internal/gmail"
	"github.com/trasousa/mcp-gmail/internal/google"
	"github.com/trasousa/mcp-gmail/internal/instrumentation"
	"github.com/trasousa/mcp-gmail/internal/server"
	"github.com/trasousa/mcp-gmail/internal/tools/common"
)

const (
	// DefaultMaxResults is used when a tool call omits max_results.
	DefaultMaxResults = 10

	// MaxResultsCeiling caps max_results regardless of what the caller asks for.
	MaxResultsCeiling = 100
)

// messageList is the JSON envelope returned by both tools.
type messageList struct {
	Messages []gmail.MessageSummary `json:"messages"`
	Count    int                    `json:"count"`
}

// maxResultsFromArgs extracts max_results from request arguments.
// Missing or non-positive values fall back to DefaultMaxResults; values
// above MaxResultsCeiling are clamped down to it.
func maxResultsFromArgs(args map[string]any) int {
	max := DefaultMaxResults
	if v, ok := args["max_results"]; ok {
		switch n := v.(type) {
		case float64:
			max = int(n)
		case int:
			max = n
		case int64:
			max = int(n)
		}
	}
	if max <= 0 {
		max = DefaultMaxResults
	}
	if max > MaxResultsCeiling {
		max = MaxResultsCeiling
	}
	return max
}

// RegisterGmailTools registers the Gmail read tools with the MCP server.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if s == nil {
		return fmt.Errorf("mcp server is required")
	}
	if sc == nil {
		return fmt.Errorf("server context is required")
	}

	listUnreadTool := mcp.NewTool("list_unread",
		mcp.WithDescription("List unread emails from the Gmail inbox. Returns message summaries with id, subject, sender, date and a short snippet."),
		mcp.WithNumber("max_results",
			mcp.Description(fmt.Sprintf("Maximum number of messages to return (default: %d, max: %d)", DefaultMaxResults, MaxResultsCeiling)),
		),
	)

	s.AddTool(listUnreadTool, mcpserver.ToolHandlerFunc(common.InstrumentedToolHandlerWithOperation(
		"list_unread", instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListUnread(ctx, request, sc)
		},
	)))

	searchEmailsTool := mcp.NewTool("search_emails",
		mcp.WithDescription("Search emails using Gmail query syntax (e.g. 'from:alice@example.com is:unread', 'subject:invoice newer_than:7d'). Returns message summaries."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Gmail search query"),
		),
		mcp.WithNumber("max_results",
			mcp.Description(fmt.Sprintf("Maximum number of messages to return (default: %d, max: %d)", DefaultMaxResults, MaxResultsCeiling)),
		),
	)

	s.AddTool(searchEmailsTool, mcpserver.ToolHandlerFunc(common.InstrumentedToolHandlerWithOperation(
		"search_emails", instrumentation.OperationSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchEmails(ctx, request, sc)
		},
	)))

	return nil
}

func handleListUnread(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	maxResults := maxResultsFromArgs(args)

	client, err := sc.GmailClient()
	if err != nil {
		return mcp.NewToolResultError(describeClientError(err)), nil
	}

	messages, err := client.ListUnread(ctx, maxResults)
	if err != nil {
		return mcp.NewToolResultError(describeGmailError("list unread messages", err)), nil
	}

	return summariesResult(messages)
}

func handleSearchEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required and must be a non-empty string"), nil
	}
	maxResults := maxResultsFromArgs(args)

	client, err := sc.GmailClient()
	if err != nil {
		return mcp.NewToolResultError(describeClientError(err)), nil
	}

	messages, err := client.Search(ctx, query, maxResults)
	if err != nil {
		return mcp.NewToolResultError(describeGmailError("search messages", err)), nil
	}

	return summariesResult(messages)
}

// summariesResult serializes message summaries into the tool result envelope.
func summariesResult(messages []gmail.MessageSummary) (*mcp.CallToolResult, error) {
	if messages == nil {
		messages = []gmail.MessageSummary{}
	}

	payload, err := json.MarshalIndent(messageList{
		Messages: messages,
		Count:    len(messages),
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to serialize messages: %v", err)), nil
	}

	return mcp.NewToolResultText(string(payload)), nil
}

// describeClientError translates client construction failures into actionable
// tool error text.
func describeClientError(err error) string {
	switch {
	case google.IsConfigurationError(err):
		return fmt.Sprintf("Gmail client is not configured: %v. Place your OAuth client credentials at the configured secrets path and restart.", err)
	case google.IsAuthError(err):
		return fmt.Sprintf("Gmail authorization failed: %v. Run 'mcp-gmail auth' to (re-)authorize access, then retry.", err)
	default:
		return fmt.Sprintf("Failed to create Gmail client: %v", err)
	}
}

// describeGmailError translates API call failures into tool error text,
// distinguishing transient upstream trouble from auth problems.
func describeGmailError(op string, err error) string {
	switch {
	case gmail.IsUpstreamUnavailable(err):
		return fmt.Sprintf("Gmail API is temporarily unavailable, retry later: failed to %s: %v", op, err)
	case google.IsAuthError(err):
		return fmt.Sprintf("Gmail authorization failed while trying to %s: %v. Run 'mcp-gmail auth' to re-authorize.", op, err)
	default:
		return fmt.Sprintf("Failed to %s: %v", op, err)
	}
}
