package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	agentctx "github.com/driftcode/agentcore/internal/context"
	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/internal/turn"
	"github.com/driftcode/agentcore/pkg/models"
)

// methodHandler is one RPC method's implementation. params is the raw
// request params object; the returned value is marshaled as the response
// payload.
type methodHandler func(c *connection, params json.RawMessage) (any, error)

// methods is the gateway's full dialect: every method a client may call
// over the WebSocket control channel.
var methods = map[string]methodHandler{
	"session.create":   handleSessionCreate,
	"session.resume":   handleSessionResume,
	"session.fork":     handleSessionFork,
	"session.list":     handleSessionList,
	"session.delete":   handleSessionDelete,
	"session.archive":  handleSessionArchive,
	"session.getHead":  handleSessionGetHead,
	"session.getState": handleSessionGetState,

	"agent.prompt":   handleAgentPrompt,
	"agent.abort":    handleAgentAbort,
	"agent.getState": handleAgentGetState,

	"events.getHistory": handleEventsGetHistory,
	"events.getSince":   handleEventsGetSince,
	"events.subscribe":  handleEventsSubscribe,
	"events.append":     handleEventsAppend,

	"tree.getVisualization": handleTreeGetVisualization,
	"tree.getBranches":      handleTreeGetBranches,
	"tree.getSubtree":       handleTreeGetSubtree,
	"tree.getAncestors":     handleTreeGetAncestors,
	"tree.compareBranches":  handleTreeCompareBranches,

	"model.list":   handleModelList,
	"model.switch": handleModelSwitch,

	"settings.get":    handleSettingsGet,
	"settings.update": handleSettingsUpdate,
}

func decodeParams[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, fmt.Errorf("decode params: %w", err)
	}
	return v, nil
}

type sessionSummary struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	WorkingDir string `json:"workingDirectory"`
	Title      string `json:"title,omitempty"`
	HeadEvent  string `json:"headEventId"`
	Archived   bool   `json:"archived"`
}

func toSummary(s *models.Session) sessionSummary {
	return sessionSummary{
		ID:         s.ID,
		Model:      s.Model,
		WorkingDir: s.WorkingDir,
		Title:      s.Title,
		HeadEvent:  s.HeadEventID,
		Archived:   s.Archived,
	}
}

type sessionCreateParams struct {
	Model      string `json:"model"`
	WorkingDir string `json:"workingDirectory"`
	Title      string `json:"title"`
}

func handleSessionCreate(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionCreateParams](params)
	if err != nil {
		return nil, err
	}
	active, err := c.server.orchestrator.CreateSession(context.Background(), p.Model, p.WorkingDir, p.Title)
	if err != nil {
		return nil, err
	}
	c.bc.Bind(active.Session.ID)
	return toSummary(active.Session), nil
}

type sessionIDParams struct {
	SessionID string `json:"sessionId"`
}

func handleSessionResume(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	active, err := c.server.orchestrator.ResumeSession(context.Background(), p.SessionID)
	if err != nil {
		return nil, err
	}
	c.bc.Bind(active.Session.ID)
	return toSummary(active.Session), nil
}

type sessionForkParams struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

func handleSessionFork(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionForkParams](params)
	if err != nil {
		return nil, err
	}
	active, err := c.server.orchestrator.ForkSession(context.Background(), p.SessionID, p.Title)
	if err != nil {
		return nil, err
	}
	c.bc.Bind(active.Session.ID)
	return toSummary(active.Session), nil
}

type sessionListParams struct {
	IncludeArchived bool `json:"includeArchived"`
	Limit           int  `json:"limit"`
}

func handleSessionList(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionListParams](params)
	if err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	sessions, err := c.server.store.ListSessions(context.Background(), p.IncludeArchived, limit)
	if err != nil {
		return nil, err
	}
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSummary(s))
	}
	return out, nil
}

type sessionArchiveParams struct {
	SessionID string `json:"sessionId"`
	Archived  bool   `json:"archived"`
}

func handleSessionArchive(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionArchiveParams](params)
	if err != nil {
		return nil, err
	}
	if err := c.server.store.ArchiveSession(context.Background(), p.SessionID, p.Archived); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func handleSessionDelete(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	c.server.orchestrator.Evict(p.SessionID)
	if err := c.server.store.DeleteSession(context.Background(), p.SessionID); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func handleSessionGetHead(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	sess, err := c.server.store.GetSession(context.Background(), p.SessionID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"headEventId": sess.HeadEventID}, nil
}

type sessionStateResult struct {
	Session sessionSummary     `json:"session"`
	Active  bool               `json:"active"`
	Tokens  *models.TokenState `json:"tokens,omitempty"`
}

// handleSessionGetState returns a session's durable summary plus, when it
// is currently active, its in-memory token-window state.
func handleSessionGetState(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	sess, err := c.server.store.GetSession(context.Background(), p.SessionID)
	if err != nil {
		return nil, err
	}
	result := sessionStateResult{Session: toSummary(sess)}
	if active, ok := c.server.orchestrator.Get(p.SessionID); ok {
		state := active.Tokens.State()
		result.Active = true
		result.Tokens = &state
	}
	return result, nil
}

type agentPromptParams struct {
	SessionID  string `json:"sessionId"`
	Message    string `json:"message"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	SystemRoot string `json:"systemPrompt"`
}

// handleAgentPrompt appends the user's message, then runs one turn to
// completion before replying, mirroring the serialised, at-most-one-turn-
// in-flight invariant session.Active.Lock enforces. A turn can take tens
// of seconds; callers that want progress before it finishes should issue a
// events.getHistory poll on a second connection rather than expect a
// partial reply here.
func handleAgentPrompt(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[agentPromptParams](params)
	if err != nil {
		return nil, err
	}
	if p.Message == "" {
		return nil, fmt.Errorf("message is required")
	}

	active, ok := c.server.orchestrator.Get(p.SessionID)
	if !ok {
		active, err = c.server.orchestrator.ResumeSession(context.Background(), p.SessionID)
		if err != nil {
			return nil, err
		}
	}

	userMsg := &models.Message{Role: models.RoleUser, Content: p.Message}
	active.Messages.Add(userMsg)
	userPayload, err := json.Marshal(userMsg)
	if err != nil {
		return nil, fmt.Errorf("encode user message: %w", err)
	}
	if _, err := active.Persist.Append(context.Background(), models.EventMessageUser, userPayload, ""); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	provider, err := c.server.providers.Build(context.Background(), p.Provider, p.Model)
	if err != nil {
		return nil, err
	}

	system := agentctx.Compose(agentctx.RollUps{SystemPrompt: p.SystemRoot, WorkingDirectory: active.Session.WorkingDir})
	turnNumber := len(active.Tokens.State().History) + 1

	result, err := c.server.runner.Run(context.Background(), active, turn.Request{
		TurnNumber: turnNumber,
		System:     system,
		WorkingDir: active.Session.WorkingDir,
		Provider:   provider,
		ToolDefs:   c.server.tools.ProviderTools(),
	})
	if err != nil {
		return nil, err
	}

	c.server.broadcast.BroadcastToSession(active.Session.ID, "turn.complete", result)
	return result, nil
}

func handleAgentAbort(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	active, ok := c.server.orchestrator.Get(p.SessionID)
	if !ok {
		return map[string]bool{"ok": false}, nil
	}
	active.Cancel()
	return map[string]bool{"ok": true}, nil
}

type agentStateResult struct {
	Active bool               `json:"active"`
	Tokens *models.TokenState `json:"tokens,omitempty"`
}

func handleAgentGetState(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	active, ok := c.server.orchestrator.Get(p.SessionID)
	if !ok {
		return agentStateResult{Active: false}, nil
	}
	state := active.Tokens.State()
	return agentStateResult{Active: true, Tokens: &state}, nil
}

type eventsHistoryParams struct {
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

func handleEventsGetHistory(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[eventsHistoryParams](params)
	if err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	return c.server.store.GetEventsBySession(context.Background(), p.SessionID, limit, p.Offset)
}

type eventsSinceParams struct {
	SessionID  string `json:"sessionId"`
	SinceEvent string `json:"sinceEventId"`
}

// handleEventsGetSince returns every event in sessionId strictly newer
// than sinceEventId, ordered as the store returns them. A session's full
// history is pulled and filtered by sequence rather than adding a
// dedicated range query to the store, since sessions are expected to stay
// small enough for this to be cheap.
func handleEventsGetSince(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[eventsSinceParams](params)
	if err != nil {
		return nil, err
	}
	since, err := c.server.store.GetEvent(context.Background(), p.SinceEvent)
	if err != nil {
		return nil, fmt.Errorf("resolve sinceEventId: %w", err)
	}
	all, err := c.server.store.GetEventsBySession(context.Background(), p.SessionID, 10000, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Event, 0, len(all))
	for _, ev := range all {
		if ev.Sequence > since.Sequence {
			out = append(out, ev)
		}
	}
	return out, nil
}

// handleEventsSubscribe binds this connection to a session without
// activating or mutating it, so a second, read-only connection can
// receive the same broadcast.BroadcastToSession traffic a prompting
// connection gets.
func handleEventsSubscribe(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	c.bc.Bind(p.SessionID)
	return map[string]bool{"ok": true}, nil
}

type eventsAppendParams struct {
	SessionID string          `json:"sessionId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// handleEventsAppend lets a client record an out-of-band event (e.g.
// metadata.update) on an active session's event chain directly, bypassing
// the turn runner.
func handleEventsAppend(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[eventsAppendParams](params)
	if err != nil {
		return nil, err
	}
	active, ok := c.server.orchestrator.Get(p.SessionID)
	if !ok {
		active, err = c.server.orchestrator.ResumeSession(context.Background(), p.SessionID)
		if err != nil {
			return nil, err
		}
	}
	return active.Persist.Append(context.Background(), models.EventType(p.EventType), p.Payload, "")
}

type eventIDParams struct {
	EventID string `json:"eventId"`
}

func handleTreeGetBranches(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	return c.server.store.GetBranches(context.Background(), p.SessionID)
}

func handleTreeGetAncestors(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[eventIDParams](params)
	if err != nil {
		return nil, err
	}
	return c.server.store.GetAncestors(context.Background(), p.EventID)
}

// handleTreeGetSubtree returns every descendant of eventId; the client
// reconstructs the subtree locally from each event's parent_id.
func handleTreeGetSubtree(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[eventIDParams](params)
	if err != nil {
		return nil, err
	}
	return c.server.store.GetDescendants(context.Background(), p.EventID)
}

// handleTreeGetVisualization returns a session's full event list, flat
// and parent-linked, for a client to lay out as a graph. This runtime has
// no server-side graph-layout concern of its own.
func handleTreeGetVisualization(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	return c.server.store.GetEventsBySession(context.Background(), p.SessionID, 10000, 0)
}

type treeCompareParams struct {
	HeadA string `json:"headA"`
	HeadB string `json:"headB"`
}

func handleTreeCompareBranches(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[treeCompareParams](params)
	if err != nil {
		return nil, err
	}
	return store.CompareBranches(context.Background(), c.server.store, p.HeadA, p.HeadB)
}

type modelEntry struct {
	Provider     string `json:"provider"`
	DefaultModel string `json:"defaultModel"`
}

func handleModelList(c *connection, _ json.RawMessage) (any, error) {
	names := c.server.providers.Names()
	out := make([]modelEntry, 0, len(names))
	for _, name := range names {
		out = append(out, modelEntry{Provider: name, DefaultModel: c.server.providers.DefaultModel(name)})
	}
	return out, nil
}

type modelSwitchParams struct {
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// handleModelSwitch changes an active session's provider/model for
// subsequent turns and resets the token-window's current size, since a
// new provider starts each turn with an empty context window (the
// accumulated totals and history are preserved). The session record is
// updated too, so a later session.getState reflects the switch even
// across eviction and resume.
func handleModelSwitch(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[modelSwitchParams](params)
	if err != nil {
		return nil, err
	}
	if p.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	active, ok := c.server.orchestrator.Get(p.SessionID)
	if !ok {
		active, err = c.server.orchestrator.ResumeSession(context.Background(), p.SessionID)
		if err != nil {
			return nil, err
		}
	}
	if err := c.server.store.UpdateSessionModel(context.Background(), p.SessionID, p.Model); err != nil {
		return nil, err
	}
	active.Session.Model = p.Model
	active.Tokens.OnProviderChange(p.Provider)
	return toSummary(active.Session), nil
}

func handleSettingsGet(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[sessionIDParams](params)
	if err != nil {
		return nil, err
	}
	active, ok := c.server.orchestrator.Get(p.SessionID)
	if !ok {
		return nil, fmt.Errorf("session %s is not active", p.SessionID)
	}
	return active.Tokens.State(), nil
}

type settingsUpdateParams struct {
	SessionID    string `json:"sessionId"`
	ContextLimit int    `json:"contextLimit"`
}

func handleSettingsUpdate(c *connection, params json.RawMessage) (any, error) {
	p, err := decodeParams[settingsUpdateParams](params)
	if err != nil {
		return nil, err
	}
	active, ok := c.server.orchestrator.Get(p.SessionID)
	if !ok {
		return nil, fmt.Errorf("session %s is not active", p.SessionID)
	}
	if p.ContextLimit > 0 {
		active.Tokens.SetContextLimit(p.ContextLimit)
	}
	return map[string]bool{"ok": true}, nil
}
