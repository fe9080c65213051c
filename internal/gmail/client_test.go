package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/trasousa/mcp-gmail/internal/instrumentation"
	"github.com/trasousa/mcp-gmail/internal/logging"
)

// fakeGmail is a minimal in-memory Gmail API backend for client tests.
type fakeGmail struct {
	t *testing.T

	// messages by id, returned from both list and get
	messages map[string]*gmailv1.Message

	// listOrder fixes the order of messages.list responses
	listOrder []string

	// failGets contains message ids whose metadata get returns 500
	failGets map[string]bool

	// listStatus, when non-zero, makes messages.list fail with that code
	lastListQuery  string
	lastListLabels string
	lastMaxResults string
	listStatus     int
}

func (f *fakeGmail) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/gmail/v1/users/me/messages":
			f.handleList(w, r)
		case strings.HasPrefix(r.URL.Path, "/gmail/v1/users/me/messages/"):
			id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
			f.handleGet(w, r, id)
		default:
			f.t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})
}

func (f *fakeGmail) handleList(w http.ResponseWriter, r *http.Request) {
	f.lastListQuery = r.URL.Query().Get("q")
	f.lastListLabels = r.URL.Query().Get("labelIds")
	f.lastMaxResults = r.URL.Query().Get("maxResults")

	if f.listStatus != 0 {
		writeAPIError(w, f.listStatus, "list failed")
		return
	}

	res := &gmailv1.ListMessagesResponse{}
	for _, id := range f.listOrder {
		msg := f.messages[id]
		res.Messages = append(res.Messages, &gmailv1.Message{Id: msg.Id, ThreadId: msg.ThreadId})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (f *fakeGmail) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	if f.failGets[id] {
		writeAPIError(w, http.StatusInternalServerError, "backend error")
		return
	}

	msg, ok := f.messages[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msg)
}

func writeAPIError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func fakeMessage(id, subject, from, date, snippet string) *gmailv1.Message {
	return &gmailv1.Message{
		Id:       id,
		ThreadId: "thread-" + id,
		Snippet:  snippet,
		Payload: &gmailv1.MessagePart{
			Headers: []*gmailv1.MessagePartHeader{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: from},
				{Name: "Date", Value: date},
			},
		},
	}
}

func newTestClient(t *testing.T, fake *fakeGmail) *Client {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc, err := gmailv1.NewService(context.Background(),
		option.WithEndpoint(srv.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	return NewClientWithService(svc, logging.New(true))
}

func TestListUnread(t *testing.T) {
	fake := &fakeGmail{
		t: t,
		messages: map[string]*gmailv1.Message{
			"m1": fakeMessage("m1", "Hello", "alice@example.com", "Mon, 2 Jun 2025 10:00:00 +0000", "hi there"),
			"m2": fakeMessage("m2", "Invoice", "billing@example.com", "Tue, 3 Jun 2025 11:00:00 +0000", "your invoice"),
		},
		listOrder: []string{"m1", "m2"},
	}
	client := newTestClient(t, fake)

	summaries, err := client.ListUnread(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "UNREAD", fake.lastListLabels)
	assert.Empty(t, fake.lastListQuery)
	assert.Equal(t, "10", fake.lastMaxResults)

	assert.Equal(t, MessageSummary{
		ID:       "m1",
		ThreadID: "thread-m1",
		Subject:  "Hello",
		From:     "alice@example.com",
		Date:     "Mon, 2 Jun 2025 10:00:00 +0000",
		Snippet:  "hi there",
	}, summaries[0])
	assert.Equal(t, "m2", summaries[1].ID)
}

func TestListUnreadEmpty(t *testing.T) {
	fake := &fakeGmail{t: t, messages: map[string]*gmailv1.Message{}}
	client := newTestClient(t, fake)

	summaries, err := client.ListUnread(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestSearchPassesQueryVerbatim(t *testing.T) {
	fake := &fakeGmail{
		t: t,
		messages: map[string]*gmailv1.Message{
			"m1": fakeMessage("m1", "Hello", "alice@example.com", "", ""),
		},
		listOrder: []string{"m1"},
	}
	client := newTestClient(t, fake)

	query := `from:alice@example.com subject:"status report" newer_than:7d`
	summaries, err := client.Search(context.Background(), query, 25)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	assert.Equal(t, query, fake.lastListQuery)
	assert.Empty(t, fake.lastListLabels)
	assert.Equal(t, "25", fake.lastMaxResults)
}

func TestSearchPartialFailureSkipsMessages(t *testing.T) {
	fake := &fakeGmail{
		t: t,
		messages: map[string]*gmailv1.Message{
			"m1": fakeMessage("m1", "One", "a@example.com", "", ""),
			"m2": fakeMessage("m2", "Two", "b@example.com", "", ""),
			"m3": fakeMessage("m3", "Three", "c@example.com", "", ""),
		},
		listOrder: []string{"m1", "m2", "m3"},
		failGets:  map[string]bool{"m2": true},
	}
	client := newTestClient(t, fake)

	summaries, err := client.Search(context.Background(), "is:unread", 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "m1", summaries[0].ID)
	assert.Equal(t, "m3", summaries[1].ID)
}

func TestSearchAllResolutionsFail(t *testing.T) {
	fake := &fakeGmail{
		t: t,
		messages: map[string]*gmailv1.Message{
			"m1": fakeMessage("m1", "One", "a@example.com", "", ""),
			"m2": fakeMessage("m2", "Two", "b@example.com", "", ""),
		},
		listOrder: []string{"m1", "m2"},
		failGets:  map[string]bool{"m1": true, "m2": true},
	}
	client := newTestClient(t, fake)

	_, err := client.Search(context.Background(), "is:unread", 10)
	require.Error(t, err)
	assert.True(t, IsUpstreamUnavailable(err))
}

func TestListErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantUpstream bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"bad request passes through", http.StatusBadRequest, false},
		{"plain forbidden passes through", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGmail{t: t, listStatus: tt.status}
			client := newTestClient(t, fake)

			_, err := client.ListUnread(context.Background(), 10)
			require.Error(t, err)
			assert.Equal(t, tt.wantUpstream, IsUpstreamUnavailable(err),
				fmt.Sprintf("status %d", tt.status))
		})
	}
}

// gmailOperationCounts sums the gmail_api_operations_total counter by its
// operation label.
func gmailOperationCounts(t *testing.T, rm *metricdata.ResourceMetrics) map[string]int64 {
	t.Helper()

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gmail_api_operations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "expected an int64 sum")
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value(attribute.Key("operation"))
				counts[op.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestMetricsDistinguishSearchFromList(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := instrumentation.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	fake := &fakeGmail{
		t: t,
		messages: map[string]*gmailv1.Message{
			"m1": fakeMessage("m1", "Hello", "alice@example.com", "Mon, 2 Jun 2025 10:00:00 +0000", "hi"),
		},
		listOrder: []string{"m1"},
	}
	client := newTestClient(t, fake)
	client.SetMetrics(metrics)

	_, err = client.Search(context.Background(), "is:unread", 10)
	require.NoError(t, err)
	_, err = client.ListUnread(context.Background(), 10)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	ops := gmailOperationCounts(t, &rm)
	assert.Equal(t, int64(1), ops[instrumentation.OperationSearch])
	assert.Equal(t, int64(1), ops[instrumentation.OperationList])
	assert.Equal(t, int64(2), ops[instrumentation.OperationGet])
}
