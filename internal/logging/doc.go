// Package logging provides structured logging helpers built on log/slog.
//
// All diagnostics are written to stderr because stdout carries the MCP
// stdio transport. The package defines canonical attribute keys so log
// entries stay queryable across the codebase, plus helpers that keep
// personally identifiable information (message contents, search queries)
// out of the logs.
package logging
