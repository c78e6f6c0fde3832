package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/pocketdev/pkg/agent"
	"github.com/odvcencio/pocketdev/pkg/auth"
	"github.com/odvcencio/pocketdev/pkg/events"
	"github.com/odvcencio/pocketdev/pkg/logging"
	"github.com/odvcencio/pocketdev/pkg/model"
	"github.com/odvcencio/pocketdev/pkg/persist"
	"github.com/odvcencio/pocketdev/pkg/ratelimit"
	"github.com/odvcencio/pocketdev/pkg/registry"
	"github.com/odvcencio/pocketdev/pkg/tools"
	"github.com/odvcencio/pocketdev/pkg/workspace"
)

type fixture struct {
	ts    *httptest.Server
	token string
	reg   *registry.Registry
	logs  *registry.LogBook
	dir   string
}

func newFixture(t *testing.T, gen model.Generator) *fixture {
	t.Helper()

	if gen == nil {
		gen = model.GenerateFunc(func(ctx context.Context, prompt, m string, temp float64) (string, error) {
			return "stub answer", nil
		})
	}

	dir := t.TempDir()
	root, err := workspace.NewRoot(dir)
	require.NoError(t, err)

	logger := logging.NewNopLogger()
	reg := registry.New()
	logs := registry.NewLogBook()
	store := persist.New(dir, reg, logs, logger)
	hub := events.NewHub()
	listener := events.NewListener(reg, hub)
	exec := tools.NewExecutor(root, logger)
	runner := agent.NewRunner(gen, exec, reg, logs, store, listener, logger, "test-model", 0.7)
	tokens := auth.NewTokenManager("test-secret", "pair-key", logger)

	srv := New(Options{
		Runner:   runner,
		Executor: exec,
		Tokens:   tokens,
		Limiter:  ratelimit.New(0),
		Hub:      hub,
		Listener: listener,
		Registry: reg,
		Logs:     logs,
		Store:    store,
		Logger:   logger,
		Version:  "test",
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	token, err := tokens.Pair("pair-key", "test-device")
	require.NoError(t, err)

	return &fixture{ts: ts, token: token, reg: reg, logs: logs, dir: dir}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var envelope apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func dataMap(t *testing.T, envelope apiResponse) map[string]any {
	t.Helper()
	m, ok := envelope.Data.(map[string]any)
	require.True(t, ok, "data is %T", envelope.Data)
	return m
}

func TestHealth_NoAuthRequired(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.ts.URL + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPair_IssuesWorkingToken(t *testing.T) {
	f := newFixture(t, nil)

	body, _ := json.Marshal(map[string]string{"pairing_key": "pair-key", "device_name": "phone"})
	resp, err := http.Post(f.ts.URL+"/auth/pair", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	token := dataMap(t, envelope)["token"].(string)

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/api/agents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestPair_WrongKey(t *testing.T) {
	f := newFixture(t, nil)

	body, _ := json.Marshal(map[string]string{"pairing_key": "wrong"})
	resp, err := http.Post(f.ts.URL+"/auth/pair", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPlaygroundRun(t *testing.T) {
	f := newFixture(t, nil)

	resp, envelope := f.do(t, http.MethodPost, "/api/playground/run", map[string]string{"prompt": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, envelope)
	assert.Equal(t, "stub answer", data["response"])
	assert.Equal(t, float64(1), data["turns"])

	a, ok := f.reg.Get(PlaygroundSession)
	require.True(t, ok)
	assert.Equal(t, "Playground Agent", a.Name)

	// Snapshot written in the workspace.
	_, err := os.Stat(filepath.Join(f.dir, persist.SnapshotName))
	assert.NoError(t, err)
}

func TestPlaygroundRun_EmptyPrompt(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPost, "/api/playground/run", map[string]string{"prompt": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgents_ListAndGet(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.Upsert(registry.Agent{ID: "a1", Name: "Builder", Status: registry.StatusRunning})
	f.logs.Append("a1", registry.LogLevelInfo, "started")

	resp, envelope := f.do(t, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agents := dataMap(t, envelope)["agents"].([]any)
	require.Len(t, agents, 1)

	resp, envelope = f.do(t, http.MethodGet, "/api/agents/a1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := dataMap(t, envelope)
	assert.Equal(t, "Builder", view["name"])
	assert.Len(t, view["logs"].([]any), 1)

	resp, _ = f.do(t, http.MethodGet, "/api/agents/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApprove(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.Upsert(registry.Agent{ID: "a1", Name: "Builder", Status: registry.StatusWaitingApproval})

	resp, _ := f.do(t, http.MethodPost, "/api/agents/a1/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	a, _ := f.reg.Get("a1")
	assert.Equal(t, registry.StatusRunning, a.Status)

	resp, _ = f.do(t, http.MethodPost, "/api/agents/ghost/approve", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.Upsert(registry.Agent{ID: "a1", Name: "Builder", Status: registry.StatusRunning})

	resp, envelope := f.do(t, http.MethodPost, "/api/agents/a1/message", map[string]string{"message": "ping"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stub answer", dataMap(t, envelope)["response"])

	resp, _ = f.do(t, http.MethodPost, "/api/agents/ghost/message", map[string]string{"message": "ping"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIDEFiles_ListReadWrite(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "hello.txt"), []byte("hi there"), 0644))

	resp, envelope := f.do(t, http.MethodGet, "/api/ide/files", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	files := dataMap(t, envelope)["files"].([]any)
	require.Len(t, files, 1)

	resp, envelope = f.do(t, http.MethodGet, "/api/ide/files/read?path=hello.txt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hi there", dataMap(t, envelope)["content"])

	resp, _ = f.do(t, http.MethodPost, "/api/ide/files/write",
		map[string]string{"path": "sub/new.txt", "content": "fresh"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := os.ReadFile(filepath.Join(f.dir, "sub", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestIDEFiles_TraversalRejected(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodGet, "/api/ide/files/read?path=../../etc/passwd", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTerminalRun(t *testing.T) {
	f := newFixture(t, nil)

	resp, envelope := f.do(t, http.MethodPost, "/api/ide/terminal/run",
		map[string]string{"command": "echo pocket"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, envelope)
	assert.Contains(t, data["stdout"], "pocket")
	assert.Equal(t, float64(0), data["exit_code"])
}

func TestTerminalRun_BlockedCommand(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPost, "/api/ide/terminal/run",
		map[string]string{"command": "rm -rf /"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGitRun_DisallowedCommand(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPost, "/api/ide/git/run",
		map[string]string{"command": "rebase main"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGitStatus_NotARepo(t *testing.T) {
	f := newFixture(t, nil)

	resp, envelope := f.do(t, http.MethodGet, "/api/ide/git/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, dataMap(t, envelope)["is_repo"])
}

func TestWorkspaces_SwitchMissingPath(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPost, "/api/ide/workspaces/switch",
		map[string]string{"path": filepath.Join(f.dir, "does-not-exist")})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWorkspaces_SwitchAndList(t *testing.T) {
	f := newFixture(t, nil)
	other := t.TempDir()

	resp, envelope := f.do(t, http.MethodPost, "/api/ide/workspaces/switch",
		map[string]string{"path": other})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	switched := dataMap(t, envelope)["workspace"].(string)

	resp, envelope = f.do(t, http.MethodGet, "/api/ide/workspaces", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, switched, dataMap(t, envelope)["current"])
}

func TestSystemStatus(t *testing.T) {
	f := newFixture(t, nil)

	resp, envelope := f.do(t, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, envelope)
	assert.Equal(t, "test", data["version"])
	assert.Equal(t, f.dir, data["workspace"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
