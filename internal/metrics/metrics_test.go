package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_RecordSync(t *testing.T) {
	m := New()
	m.RecordSync("synced", "timer")
	m.RecordSync("synced", "timer")
	m.RecordSync("offline", "forced")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `roomsync_sync_cycles_total{result="synced",trigger="timer"} 2`)
	assert.Contains(t, body, `roomsync_sync_cycles_total{result="offline",trigger="forced"} 1`)
}

func TestMetrics_ObserveRemote(t *testing.T) {
	m := New()
	m.ObserveRemote("query_board", "ok", 0.2)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `roomsync_remote_requests_total{operation="query_board",status="ok"} 1`)
	assert.Contains(t, body, `roomsync_remote_request_duration_seconds_count{operation="query_board"} 1`)
}

func TestMetrics_Gauges(t *testing.T) {
	m := New()
	m.SetPresentations(4)
	m.SetCompletion(42.5)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "roomsync_presentations 4")
	assert.Contains(t, body, "roomsync_current_completion_percent 42.5")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSync("synced", "timer")
		m.RecordDiscovery("resolved")
		m.ObserveRemote("query_item", "ok", 1)
		m.RecordCacheWrite("ok")
		m.RecordAction("force_sync", "ok")
		m.RecordError("cache", "write")
		m.SetPresentations(1)
		m.SetCompletion(1)
	})
}
