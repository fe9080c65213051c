package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyTool      = "tool"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyQueryHash = "query_hash"
	KeyMessageID = "message_id"
	KeyCount     = "count"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from the instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New returns a logger writing text records to stderr. Debug enables the
// debug level; otherwise info and above are emitted.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// MessageID returns a slog attribute for a Gmail message id. Message ids are
// opaque API identifiers, not message contents, so they are safe to log.
func MessageID(id string) slog.Attr {
	return slog.String(KeyMessageID, id)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from
// output, so Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeQuery returns a short hash of a Gmail search query for logging.
// Queries routinely contain addresses and free text, so the raw string is
// never written to the logs; the hash still allows correlating repeated
// invocations of the same query.
func AnonymizeQuery(query string) string {
	if query == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(query))
	return "q:" + hex.EncodeToString(hash[:8])
}

// QueryHash returns a slog attribute with the anonymized search query.
func QueryHash(query string) slog.Attr {
	return slog.String(KeyQueryHash, AnonymizeQuery(query))
}
