// Package gmail_tools provides MCP tools for reading a Gmail mailbox.
//
// The package registers two read-only tools:
//   - list_unread: list unread inbox messages with metadata summaries
//   - search_emails: search the mailbox with full Gmail query syntax
//
// Both tools return JSON message summaries (id, subject, from, date,
// snippet) and never expose full message bodies.
package gmail_tools
