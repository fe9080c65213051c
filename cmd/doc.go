// Package cmd implements the command-line interface for mcp-gmail.
//
// This package provides the following commands:
//   - serve: Start the MCP server exposing Gmail read tools (default)
//   - auth: Run the interactive Google OAuth consent flow and cache the token
//   - version: Print the build version
//
// The serve command supports stdio (default) and streamable-http transports.
// When serving over HTTP, requests are guarded by a bearer API key and a
// Prometheus metrics endpoint is exposed on a dedicated port.
package cmd
