package help

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() Request {
	return NewRequest(time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC), "555", "9001", "AV", "Crew A", "5001", "Keynote")
}

func TestNewRequest(t *testing.T) {
	req := sampleRequest()
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "2026-10-19T09:15:00Z", req.Timestamp)
	assert.Equal(t, "9001", req.Room)
	assert.NotEqual(t, req.ID, sampleRequest().ID)
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, zerolog.Nop())
	req := sampleRequest()
	require.NoError(t, n.Notify(context.Background(), req))
	assert.Equal(t, req, got)
}

func TestWebhookNotifierDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, zerolog.Nop())
	err := n.Notify(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWebhookNotifierDisabled(t *testing.T) {
	n := NewWebhookNotifier("", time.Second, zerolog.Nop())
	assert.NoError(t, n.Notify(context.Background(), sampleRequest()))
}

func TestSlackNotifierPostsBlocks(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, time.Second, zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), sampleRequest()))

	assert.Equal(t, "Help requested in room 9001", payload["text"])
	blocks, ok := payload["blocks"].([]interface{})
	require.True(t, ok)
	assert.Len(t, blocks, 3)
}

func TestSlackNotifierDisabled(t *testing.T) {
	n := NewSlackNotifier("", time.Second, zerolog.Nop())
	assert.NoError(t, n.Notify(context.Background(), sampleRequest()))
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, Request) error {
	r.calls++
	return r.err
}

func TestMultiRunsAllNotifiers(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}

	err := Multi{failing, nil, ok}.Notify(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)

	assert.NoError(t, Multi{ok}.Notify(context.Background(), sampleRequest()))
}
