package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "simple query", query: "is:unread"},
		{name: "query with address", query: "from:jane@example.com"},
		{name: "free text", query: "quarterly report draft"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnonymizeQuery(tt.query)
			assert.True(t, strings.HasPrefix(got, "q:"))
			assert.NotContains(t, got, tt.query)
			// Same query hashes to the same value
			assert.Equal(t, got, AnonymizeQuery(tt.query))
		})
	}
}

func TestAnonymizeQueryEmpty(t *testing.T) {
	assert.Equal(t, "", AnonymizeQuery(""))
}

func TestErrNilIsOmitted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("op done", Err(nil))
	assert.NotContains(t, buf.String(), "error=")
}

func TestErrIncludesMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Warn("op failed", Err(errors.New("boom")))
	assert.Contains(t, buf.String(), "boom")
}

func TestWithToolAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := WithTool(slog.New(slog.NewTextHandler(&buf, nil)), "search_emails")

	logger.Info("invoked")
	assert.Contains(t, buf.String(), "tool=search_emails")
}
