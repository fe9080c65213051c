// Package common provides shared helpers for MCP tool handlers, most notably
// the instrumentation wrapper that records metrics and audit log entries
// around each tool invocation.
package common
