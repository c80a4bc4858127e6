package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/gzhole/deskpilot/internal/server"
	"github.com/gzhole/deskpilot/internal/session"
)

func newPlanner(t *testing.T) *Client {
	t.Helper()
	engine, err := policy.NewEngine(policy.DefaultPolicy())
	require.NoError(t, err)
	svc := planner.NewService(provider.NewStub(), session.NewMemoryStore(), engine)
	ts := httptest.NewServer(server.New(svc, config.ServerConfig{}, nil).Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", time.Second)
}

func TestClient_AgainstPlanner(t *testing.T) {
	c := newPlanner(t)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	started, err := c.StartSession(ctx, protocol.StartSessionRequest{Task: "open notepad"})
	require.NoError(t, err)
	require.NotEmpty(t, started.SessionID)

	turn, err := c.Turn(ctx, protocol.TurnRequest{
		SessionID: started.SessionID,
		Task:      "open notepad",
		Screen:    protocol.ScreenCapture{ImageBase64: "aGVsbG8=", Width: 100, Height: 100},
		Context: protocol.TurnContext{
			StepIndex:  0,
			LastAction: &action.Envelope{Action: action.Screenshot{}},
			LastResult: protocol.NewResult(protocol.ResultExecuted, "dry-run:screenshot"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, action.KindScreenshot, turn.Action.Action.Kind())

	conf, err := c.Confirm(ctx, started.SessionID, protocol.ConfirmRequest{ConfirmationID: "nope", Approved: true})
	require.NoError(t, err)
	assert.Equal(t, protocol.ConfirmNotFound, conf.Status)
}

func TestClient_APIErrors(t *testing.T) {
	c := newPlanner(t)
	ctx := context.Background()

	_, err := c.Confirm(ctx, "missing-session", protocol.ConfirmRequest{ConfirmationID: "x", Approved: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "session not found", apiErr.Detail)

	_, err = c.StartSession(ctx, protocol.StartSessionRequest{Task: ""})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL, time.Second).Health(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream exploded", apiErr.Detail)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_SendsJSON(t *testing.T) {
	var gotPath, gotType string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		fmt.Fprint(w, `{"session_id":"s 1","confirmation_id":"c","status":"rejected"}`)
	}))
	defer ts.Close()

	resp, err := New(ts.URL, 0).Confirm(context.Background(), "s 1", protocol.ConfirmRequest{ConfirmationID: "c", Approved: false})
	require.NoError(t, err)
	assert.Equal(t, protocol.ConfirmRejected, resp.Status)
	assert.Equal(t, "/v1/session/s 1/confirm", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, false, gotBody["approved"])
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	_, err := New(ts.URL, 50*time.Millisecond).Health(context.Background())
	assert.Error(t, err)
}
