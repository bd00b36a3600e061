// Package health provides liveness and readiness checks for the sync engine.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/roomsync/internal/variables"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// CheckFunc is a function that checks a dependency's health.
type CheckFunc func(ctx context.Context) Status

// Checker manages health checks for all dependencies.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	last    map[string]Status
	timeout time.Duration
	logger  zerolog.Logger
}

// NewChecker creates a new health checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		last:    make(map[string]Status),
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RunAll executes all health checks concurrently and records the results.
func (c *Checker) RunAll(ctx context.Context) map[string]Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			s := f(checkCtx)
			mu.Lock()
			results[n] = s
			mu.Unlock()
		}(name, fn)
	}

	wg.Wait()

	c.mu.Lock()
	for n, s := range results {
		if prev, ok := c.last[n]; ok && prev != s {
			c.logger.Info().Str("check", n).Str("from", string(prev)).Str("to", string(s)).Msg("health changed")
		}
	}
	c.last = results
	c.mu.Unlock()

	return results
}

// IsReady returns true if no check is down.
func (c *Checker) IsReady(ctx context.Context) bool {
	results := c.RunAll(ctx)
	for _, s := range results {
		if s == StatusDown {
			return false
		}
	}
	return true
}

// DiscoveryCheck is down until a room is resolved.
func DiscoveryCheck(resolved func() bool) CheckFunc {
	return func(context.Context) Status {
		if resolved() {
			return StatusOK
		}
		return StatusDown
	}
}

// SyncCheck is degraded while the engine serves cached or no data.
func SyncCheck(store variables.Store) CheckFunc {
	return func(context.Context) Status {
		switch variables.GetOr(store, variables.BoardSyncStatus, variables.StatusUnsynced) {
		case variables.StatusSynced:
			return StatusOK
		default:
			return StatusDegraded
		}
	}
}

// CacheDirCheck is degraded when the cache directory cannot be created or
// written.
func CacheDirCheck(dir string) CheckFunc {
	return func(context.Context) Status {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return StatusDegraded
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return StatusDegraded
		}
		name := f.Name()
		f.Close()
		_ = os.Remove(name)
		return StatusOK
	}
}

// LivenessHandler returns an HTTP handler for /health (liveness).
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// ReadinessHandler returns an HTTP handler for /ready (readiness).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		results := c.RunAll(r.Context())

		allOK := true
		for _, s := range results {
			if s == StatusDown {
				allOK = false
				break
			}
		}

		resp := map[string]interface{}{
			"checks": results,
		}

		if allOK {
			resp["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			resp["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(resp)
	}
}
