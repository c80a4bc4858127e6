package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/config"
	"github.com/gzhole/deskpilot/internal/planner"
	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/protocol"
	"github.com/gzhole/deskpilot/internal/provider"
	"github.com/gzhole/deskpilot/internal/session"
)

// scriptedProvider always proposes the same action.
type scriptedProvider struct {
	observation string
	raw         string
}

func (p scriptedProvider) Name() string { return "scripted" }

func (p scriptedProvider) PlanNextAction(context.Context, provider.Input) (provider.Output, error) {
	return provider.Output{
		Observation: p.observation,
		Reasoning:   "scripted",
		Action:      json.RawMessage(p.raw),
		Confidence:  0.9,
	}, nil
}

func newTestServer(t *testing.T, p provider.Planner, cfg config.ServerConfig) *httptest.Server {
	t.Helper()
	engine, err := policy.NewEngine(policy.DefaultPolicy())
	require.NoError(t, err)
	svc := planner.NewService(p, session.NewMemoryStore(), engine)
	ts := httptest.NewServer(New(svc, cfg, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	resp, err := http.Post(url, "application/json", reader)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func detail(t *testing.T, body []byte) string {
	t.Helper()
	var e protocol.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Detail
}

func turnBody(sessionID string, step int) map[string]any {
	return map[string]any{
		"session_id": sessionID,
		"task":       "open settings",
		"screen":     map[string]any{"image_base64": "aGVsbG8=", "width": 800, "height": 600},
		"context":    map[string]any{"step_index": step},
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, provider.NewStub(), config.ServerConfig{})
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body protocol.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestSessionTurnConfirmFlow(t *testing.T) {
	ts := newTestServer(t, scriptedProvider{observation: "Reset button visible", raw: `{"action":"click","parameters":{"x":10,"y":20}}`}, config.ServerConfig{})

	resp, body := post(t, ts.URL+"/v1/session/start", map[string]any{
		"task":        "open settings",
		"constraints": map[string]any{"blocked_apps": []string{"Terminal"}, "max_steps": 5},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var started protocol.StartSessionResponse
	require.NoError(t, json.Unmarshal(body, &started))
	assert.Equal(t, 5, started.Constraints.MaxSteps)

	resp, body = post(t, ts.URL+"/v1/turn", turnBody(started.SessionID, 1))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var turn protocol.TurnResponse
	require.NoError(t, json.Unmarshal(body, &turn))
	assert.Equal(t, action.Click{X: 10, Y: 20}, turn.Action.Action)
	assert.Equal(t, policy.RiskDestructive, turn.Risk)
	require.True(t, turn.ConfirmationRequired)
	require.NotEmpty(t, turn.ConfirmationID)

	// approved defaults to true when omitted.
	resp, body = post(t, ts.URL+"/v1/session/"+started.SessionID+"/confirm", map[string]any{"confirmation_id": turn.ConfirmationID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var confirmed protocol.ConfirmResponse
	require.NoError(t, json.Unmarshal(body, &confirmed))
	assert.Equal(t, protocol.ConfirmApproved, confirmed.Status)

	resp, body = post(t, ts.URL+"/v1/turn", turnBody(started.SessionID, 1))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &turn))
	assert.False(t, turn.ConfirmationRequired)

	resp, body = post(t, ts.URL+"/v1/session/"+started.SessionID+"/confirm", map[string]any{"confirmation_id": "bogus", "approved": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &confirmed))
	assert.Equal(t, protocol.ConfirmRejected, confirmed.Status)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, provider.NewStub(), config.ServerConfig{MaxBodyBytes: 4096})

	_, body := post(t, ts.URL+"/v1/session/start", map[string]any{"task": "t"})
	var started protocol.StartSessionResponse
	require.NoError(t, json.Unmarshal(body, &started))

	bad := turnBody(started.SessionID, 0)
	bad["context"] = map[string]any{"step_index": 0, "last_action": map[string]any{"action": "speak", "parameters": map[string]any{}}}

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		detail string
	}{
		{"malformed json", "/v1/session/start", `{"task":`, http.StatusBadRequest, "invalid JSON"},
		{"empty task", "/v1/session/start", map[string]any{"task": ""}, http.StatusUnprocessableEntity, "task"},
		{"max steps out of range", "/v1/session/start", map[string]any{"task": "x", "constraints": map[string]any{"max_steps": 1001}}, http.StatusUnprocessableEntity, "max_steps"},
		{"unknown session", "/v1/turn", turnBody("nosuchsession", 0), http.StatusNotFound, "session not found"},
		{"bad screen", "/v1/turn", map[string]any{"session_id": started.SessionID, "task": "t", "screen": map[string]any{"image_base64": "", "width": 1, "height": 1}}, http.StatusUnprocessableEntity, "image_base64"},
		{"unsupported last action", "/v1/turn", bad, http.StatusUnprocessableEntity, "speak"},
		{"confirm unknown session", "/v1/session/nosuchsession/confirm", map[string]any{"confirmation_id": "x"}, http.StatusNotFound, "session not found"},
		{"confirm empty id", "/v1/session/" + started.SessionID + "/confirm", map[string]any{"confirmation_id": ""}, http.StatusUnprocessableEntity, "confirmation_id"},
		{"too large", "/v1/session/start", map[string]any{"task": strings.Repeat("a", 5000)}, http.StatusRequestEntityTooLarge, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Contains(t, detail(t, body), tt.detail)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, provider.NewStub(), config.ServerConfig{Metrics: true})
	_, body := post(t, ts.URL+"/v1/session/start", map[string]any{"task": "t"})
	var started protocol.StartSessionResponse
	require.NoError(t, json.Unmarshal(body, &started))
	post(t, ts.URL+"/v1/turn", turnBody(started.SessionID, 0))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `deskpilot_turns_total{action="screenshot",risk="low"} 1`)
	assert.Contains(t, string(data), `route="POST /v1/turn"`)
}

func TestMetricsDisabled(t *testing.T) {
	ts := newTestServer(t, provider.NewStub(), config.ServerConfig{})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListenAndServeShutdown(t *testing.T) {
	engine, err := policy.NewEngine(policy.DefaultPolicy())
	require.NoError(t, err)
	srv := New(planner.NewService(provider.NewStub(), session.NewMemoryStore(), engine), config.ServerConfig{Addr: "127.0.0.1:0"}, nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	require.Eventually(t, func() bool { return srv.ListenAddr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.ListenAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errc)
}
