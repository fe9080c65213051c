// Package server provides the shared runtime pieces behind the MCP server
// loop: the ServerContext holding the lazily-built Gmail client, health
// check handlers and the dedicated Prometheus metrics server for the HTTP
// transport, and the bearer API key middleware guarding it.
package server
