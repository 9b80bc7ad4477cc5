package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/driftcode/agentcore/internal/broadcast"
	"github.com/driftcode/agentcore/internal/providers"
	"github.com/driftcode/agentcore/internal/session"
	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/internal/tools"
	"github.com/driftcode/agentcore/internal/turn"
)

// fakeProvider is a stand-in providers.Provider that streams one
// text_delta and a done event, for exercising agent.prompt without a
// network-backed adapter.
type fakeProvider struct{}

func (fakeProvider) Name() string                  { return "fake" }
func (fakeProvider) Model() string                 { return "fake-model" }
func (fakeProvider) IDFormat() providers.IDFormat   { return providers.IDFormatAnthropic }
func (fakeProvider) Stream(ctx context.Context, c providers.Context, opts providers.Options) (<-chan providers.StreamEvent, error) {
	ch := make(chan providers.StreamEvent, 2)
	ch <- providers.StreamEvent{Type: providers.StreamTextDelta, Text: "hello"}
	ch <- providers.StreamEvent{Type: providers.StreamDone, StopReason: "end_turn"}
	close(ch)
	return ch, nil
}

type fakeProviderFactory struct{}

func (fakeProviderFactory) Build(ctx context.Context, name, model string) (providers.Provider, error) {
	return fakeProvider{}, nil
}
func (fakeProviderFactory) Names() []string                 { return []string{"fake"} }
func (fakeProviderFactory) DefaultModel(name string) string { return "fake-model" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := store.NewMemoryStore()
	orch := session.NewOrchestrator(s, 0)
	executor := tools.NewExecutor(tools.NewRegistry(), nil, nil)
	runner := turn.NewRunner(nil, executor, nil)

	return NewServer(Deps{
		Orchestrator: orch,
		Runner:       runner,
		Store:        s,
		Broadcast:    broadcast.NewManager(nil),
		Tools:        tools.NewRegistry(),
		Providers:    fakeProviderFactory{},
	})
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params any) frame {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame{Type: "request", ID: id, Method: method, Params: raw}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp frame
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestGateway_SessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts)

	created := call(t, conn, "1", "session.create", map[string]string{"model": "fake-model", "workingDirectory": "/work"})
	require.NotNil(t, created.OK)
	require.True(t, *created.OK)

	var summary sessionSummary
	require.NoError(t, json.Unmarshal(toJSON(t, created.Payload), &summary))
	require.NotEmpty(t, summary.ID)

	listed := call(t, conn, "2", "session.list", map[string]any{})
	require.True(t, *listed.OK)
}

func TestGateway_AgentSendRunsATurn(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts)

	created := call(t, conn, "1", "session.create", map[string]string{"model": "fake-model", "workingDirectory": "/work"})
	var summary sessionSummary
	require.NoError(t, json.Unmarshal(toJSON(t, created.Payload), &summary))

	sent := call(t, conn, "2", "agent.prompt", map[string]string{"sessionId": summary.ID, "message": "hi there"})
	require.NotNil(t, sent.OK)
	require.True(t, *sent.OK, "agent.prompt error: %+v", sent.Error)

	history := call(t, conn, "3", "events.getHistory", map[string]string{"sessionId": summary.ID})
	require.True(t, *history.OK)
}

func TestGateway_TreeCompareBranchesSameHead(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts)

	created := call(t, conn, "1", "session.create", map[string]string{"model": "fake-model", "workingDirectory": "/work"})
	var summary sessionSummary
	require.NoError(t, json.Unmarshal(toJSON(t, created.Payload), &summary))

	resp := call(t, conn, "2", "tree.compareBranches", map[string]string{"headA": summary.HeadEvent, "headB": summary.HeadEvent})
	require.True(t, *resp.OK, "tree.compareBranches error: %+v", resp.Error)

	var diff struct {
		CommonAncestorID string `json:"CommonAncestorID"`
	}
	require.NoError(t, json.Unmarshal(toJSON(t, resp.Payload), &diff))
	require.Equal(t, summary.HeadEvent, diff.CommonAncestorID)
}

func TestGateway_SessionGetHeadAndState(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts)

	created := call(t, conn, "1", "session.create", map[string]string{"model": "fake-model", "workingDirectory": "/work"})
	var summary sessionSummary
	require.NoError(t, json.Unmarshal(toJSON(t, created.Payload), &summary))

	head := call(t, conn, "2", "session.getHead", map[string]string{"sessionId": summary.ID})
	require.True(t, *head.OK)
	var headResult map[string]string
	require.NoError(t, json.Unmarshal(toJSON(t, head.Payload), &headResult))
	require.Equal(t, summary.HeadEvent, headResult["headEventId"])

	state := call(t, conn, "3", "session.getState", map[string]string{"sessionId": summary.ID})
	require.True(t, *state.OK)
	var stateResult sessionStateResult
	require.NoError(t, json.Unmarshal(toJSON(t, state.Payload), &stateResult))
	require.True(t, stateResult.Active)
}

func TestGateway_ModelSwitch(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts)

	created := call(t, conn, "1", "session.create", map[string]string{"model": "fake-model", "workingDirectory": "/work"})
	var summary sessionSummary
	require.NoError(t, json.Unmarshal(toJSON(t, created.Payload), &summary))

	switched := call(t, conn, "2", "model.switch", map[string]string{"sessionId": summary.ID, "provider": "fake", "model": "fake-model-2"})
	require.True(t, *switched.OK, "model.switch error: %+v", switched.Error)
	var updated sessionSummary
	require.NoError(t, json.Unmarshal(toJSON(t, switched.Payload), &updated))
	require.Equal(t, "fake-model-2", updated.Model)
}

func TestGateway_EventsAppendAndGetSince(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts)

	created := call(t, conn, "1", "session.create", map[string]string{"model": "fake-model", "workingDirectory": "/work"})
	var summary sessionSummary
	require.NoError(t, json.Unmarshal(toJSON(t, created.Payload), &summary))

	appended := call(t, conn, "2", "events.append", map[string]any{
		"sessionId": summary.ID,
		"eventType": "metadata.update",
		"payload":   map[string]string{"k": "v"},
	})
	require.True(t, *appended.OK, "events.append error: %+v", appended.Error)

	since := call(t, conn, "3", "events.getSince", map[string]string{"sessionId": summary.ID, "sinceEventId": summary.HeadEvent})
	require.True(t, *since.OK)
}

func TestGateway_UnknownMethod(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts)

	resp := call(t, conn, "1", "bogus.method", map[string]any{})
	require.NotNil(t, resp.OK)
	require.False(t, *resp.OK)
	require.Equal(t, "unknown_method", resp.Error.Code)
}

func toJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
