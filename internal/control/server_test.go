package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/roomsync/internal/errors"
	"github.com/p-blackswan/roomsync/internal/health"
	"github.com/p-blackswan/roomsync/internal/metrics"
	"github.com/p-blackswan/roomsync/internal/monday"
	"github.com/p-blackswan/roomsync/internal/syncer"
	"github.com/p-blackswan/roomsync/internal/variables"
)

type fakeEngine struct {
	mu       sync.Mutex
	ready    bool
	executed []string
	opts     map[string]string
	err      error
}

func (f *fakeEngine) Status() syncer.Status {
	return syncer.Status{DiscoveryState: "resolved", Mode: "kit", SyncStatus: variables.StatusSynced, Presentations: 3}
}

func (f *fakeEngine) Ready() bool { return f.ready }

func (f *fakeEngine) Actions() []syncer.ActionInfo {
	return []syncer.ActionInfo{
		{ID: syncer.ActionForceSync, Role: syncer.RoleOperator},
		{ID: syncer.ActionAddPasswordLetter, Role: syncer.RoleOperator},
		{ID: syncer.ActionResetSync, Role: syncer.RoleAdmin},
	}
}

func (f *fakeEngine) Action(id string) (syncer.ActionInfo, bool) {
	for _, a := range f.Actions() {
		if a.ID == id {
			return a, true
		}
	}
	return syncer.ActionInfo{}, false
}

func (f *fakeEngine) Execute(_ context.Context, id string, opts map[string]string) (syncer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, id)
	f.opts = opts
	if f.err != nil {
		return syncer.Result{}, f.err
	}
	return syncer.Result{Message: "done", Values: map[string]string{"x": "y"}}, nil
}

func (f *fakeEngine) Feedbacks() []syncer.FeedbackInfo {
	return []syncer.FeedbackInfo{{ID: syncer.FeedbackSyncStatus}}
}

func (f *fakeEngine) Evaluate(id string, opts map[string]string) (bool, error) {
	if id != syncer.FeedbackSyncStatus {
		return false, fmt.Errorf("%w: %s", syncer.ErrUnknownFeedback, id)
	}
	return opts["status"] == variables.StatusSynced, nil
}

type fakeKits struct {
	kits    []monday.Kit
	err     error
	boardID string
}

func (f *fakeKits) ListKits(_ context.Context, boardID string) ([]monday.Kit, error) {
	f.boardID = boardID
	return f.kits, f.err
}

type fakeLog struct {
	mu      sync.Mutex
	records []variables.ActionRecord
}

func (f *fakeLog) RecordAction(action, caller, result, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, variables.ActionRecord{Action: action, Caller: caller, Result: result, Detail: detail, CreatedAt: 1767225600000})
	return nil
}

func (f *fakeLog) RecentActions(limit int) ([]variables.ActionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]variables.ActionRecord(nil), f.records...), nil
}

type testEnv struct {
	app    *fiber.App
	engine *fakeEngine
	kits   *fakeKits
	log    *fakeLog
	vars   *variables.MemoryStore
}

func newTestEnv(t *testing.T, auth AuthConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		engine: &fakeEngine{ready: true},
		kits:   &fakeKits{kits: []monday.Kit{{ID: "1", Label: "Kit A"}}},
		log:    &fakeLog{},
		vars:   variables.NewMemoryStore(),
	}
	env.vars.SetMany(map[string]string{variables.BoardSyncStatus: variables.StatusSynced})

	checker := health.NewChecker(zerolog.Nop())
	checker.Register("discovery", func(context.Context) health.Status {
		if env.engine.Ready() {
			return health.StatusOK
		}
		return health.StatusDown
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewServer(ctx, ServerConfig{
		ListenAddr:  ":0",
		AuthConfig:  auth,
		RateLimit:   RateLimitConfig{RPS: 100, Burst: 200},
		KitsBoardID: "7926688621",
	}, Deps{
		Engine:    env.engine,
		Variables: env.vars,
		Kits:      env.kits,
		ActionLog: env.log,
		Checker:   checker,
		Metrics:   metrics.New(),
	}, zerolog.Nop())
	env.app = srv.App()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

var noAuth = AuthConfig{Mode: AuthNone}

func TestServer_Probes(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.engine.ready = false
	resp = env.do(t, "GET", "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "roomsync_presentations")
}

func TestServer_RequestID(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/api/v1/status", "", "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, _ := http.NewRequest("GET", "/api/v1/status", nil)
	req.Header.Set("X-Request-ID", "6f1c1f4e-8a53-4a4b-9d59-3d3f0b3f6f1a")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "6f1c1f4e-8a53-4a4b-9d59-3d3f0b3f6f1a", resp.Header.Get("X-Request-ID"))
}

func TestServer_Status(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st syncer.Status
	decode(t, resp, &st)
	assert.Equal(t, "resolved", st.DiscoveryState)
	assert.Equal(t, 3, st.Presentations)
}

func TestServer_HealthDetail(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/api/v1/health", "", "")
	var body HealthDetailResponse
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["discovery"])
}

func TestServer_Variables(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/api/v1/variables", "", "")
	var all map[string]string
	decode(t, resp, &all)
	assert.Equal(t, variables.StatusSynced, all[variables.BoardSyncStatus])

	resp = env.do(t, "GET", "/api/v1/variables/"+variables.BoardSyncStatus, "", "")
	var one VariableResponse
	decode(t, resp, &one)
	assert.Equal(t, variables.StatusSynced, one.Value)

	resp = env.do(t, "GET", "/api/v1/variables/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ExecuteAction(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "POST", "/api/v1/actions/"+syncer.ActionAddPasswordLetter, "", `{"options":{"letter":"a"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out ExecuteActionResponse
	decode(t, resp, &out)
	assert.Equal(t, "done", out.Message)
	assert.NotEmpty(t, out.RequestID)
	assert.Equal(t, map[string]string{"letter": "a"}, env.engine.opts)

	require.Len(t, env.log.records, 1)
	assert.Equal(t, "anonymous", env.log.records[0].Caller)
	assert.Equal(t, "ok", env.log.records[0].Result)
}

func TestServer_ExecuteActionWithoutBody(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "POST", "/api/v1/actions/"+syncer.ActionForceSync, "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{syncer.ActionForceSync}, env.engine.executed)
}

func TestServer_ExecuteUnknownAction(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "POST", "/api/v1/actions/launch", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, env.engine.executed)
}

func TestServer_ExecuteActionErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{fmt.Errorf("bad letter: %w", perrors.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("room: %w", perrors.ErrNotResolved), http.StatusConflict, "not_resolved"},
		{fmt.Errorf("no match: %w", perrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "action_failed"},
	}
	for _, tc := range cases {
		env := newTestEnv(t, noAuth)
		env.engine.err = tc.err

		resp := env.do(t, "POST", "/api/v1/actions/"+syncer.ActionForceSync, "", "")
		assert.Equal(t, tc.status, resp.StatusCode, tc.err.Error())
		var problem ProblemDetail
		decode(t, resp, &problem)
		assert.Equal(t, tc.typ, problem.Type)
		require.Len(t, env.log.records, 1)
		assert.Equal(t, "error", env.log.records[0].Result)
	}
}

func TestServer_ActionHistory(t *testing.T) {
	env := newTestEnv(t, noAuth)
	env.do(t, "POST", "/api/v1/actions/"+syncer.ActionForceSync, "", "")

	resp := env.do(t, "GET", "/api/v1/actions/log", "", "")
	var body struct {
		Entries []ActionLogEntry `json:"entries"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, syncer.ActionForceSync, body.Entries[0].Action)
	assert.Equal(t, 2026, body.Entries[0].CreatedAt.Year())
}

func TestServer_ListActions(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/api/v1/actions", "", "")
	var body struct {
		Actions []syncer.ActionInfo `json:"actions"`
	}
	decode(t, resp, &body)
	assert.Len(t, body.Actions, 3)
}

func TestServer_Feedbacks(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/api/v1/feedbacks/sync_status?status=Synced", "", "")
	var fb FeedbackResponse
	decode(t, resp, &fb)
	assert.True(t, fb.Value)

	resp = env.do(t, "GET", "/api/v1/feedbacks/sync_status?status=Offline", "", "")
	decode(t, resp, &fb)
	assert.False(t, fb.Value)

	resp = env.do(t, "GET", "/api/v1/feedbacks/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/feedbacks", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Kits(t *testing.T) {
	env := newTestEnv(t, noAuth)

	resp := env.do(t, "GET", "/api/v1/kits", "", "")
	var body struct {
		Kits []monday.Kit `json:"kits"`
	}
	decode(t, resp, &body)
	assert.Equal(t, []monday.Kit{{ID: "1", Label: "Kit A"}}, body.Kits)
	assert.Equal(t, "7926688621", env.kits.boardID)

	env.kits.err = perrors.ErrUnavailable
	resp = env.do(t, "GET", "/api/v1/kits", "", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	env := newTestEnv(t, noAuth)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := NewServer(ctx, ServerConfig{
		AuthConfig: noAuth,
		RateLimit:  RateLimitConfig{RPS: 1, Burst: 2},
	}, Deps{Engine: env.engine, Variables: env.vars}, zerolog.Nop())
	app := srv.App()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/api/v1/status", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// Probes bypass the limiter.
	req, _ := http.NewRequest("GET", "/healthz", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
