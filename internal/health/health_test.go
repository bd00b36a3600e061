package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/roomsync/internal/variables"
)

func TestLivenessHandler(t *testing.T) {
	handler := LivenessHandler()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("discovery", func(ctx context.Context) Status { return StatusOK })
	c.Register("cache", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("cache", func(ctx context.Context) Status { return StatusOK })
	c.Register("discovery", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("sync", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

func TestReadinessHandler_Healthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("svc", func(ctx context.Context) Status { return StatusOK })

	handler := c.ReadinessHandler()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ready")
}

func TestReadinessHandler_NotReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("svc", func(ctx context.Context) Status { return StatusDown })

	handler := c.ReadinessHandler()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_ready")
}

func TestDiscoveryCheck(t *testing.T) {
	resolved := false
	check := DiscoveryCheck(func() bool { return resolved })
	assert.Equal(t, StatusDown, check(context.Background()))

	resolved = true
	assert.Equal(t, StatusOK, check(context.Background()))
}

func TestSyncCheck(t *testing.T) {
	store := variables.NewMemoryStore()
	check := SyncCheck(store)
	assert.Equal(t, StatusDegraded, check(context.Background()))

	store.SetMany(map[string]string{variables.BoardSyncStatus: variables.StatusSynced})
	assert.Equal(t, StatusOK, check(context.Background()))

	store.SetMany(map[string]string{variables.BoardSyncStatus: variables.StatusOffline})
	assert.Equal(t, StatusDegraded, check(context.Background()))
}

func TestCacheDirCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	assert.Equal(t, StatusOK, CacheDirCheck(dir)(context.Background()))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Equal(t, StatusDegraded, CacheDirCheck(filepath.Join(file, "sub"))(context.Background()))
}
