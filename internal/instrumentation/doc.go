// Package instrumentation provides OpenTelemetry metrics and tracing for
// the mcp-gmail server.
//
// The Provider owns the meter and tracer providers and is configured from
// environment variables (OTEL_*, METRICS_EXPORTER, TRACING_EXPORTER). Metrics
// can be exported through Prometheus (scraped from the dedicated metrics
// server), OTLP, or stdout for debugging; tracing through OTLP or stdout, or
// disabled entirely, which is the default for stdio deployments.
//
// The package also contains the audit logger used to record every tool
// invocation on slog without leaking message contents or search queries.
package instrumentation
