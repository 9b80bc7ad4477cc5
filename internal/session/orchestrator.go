// Package session implements the session orchestrator (spec §4.H): a
// registry of active sessions bounded by a concurrency cap, each owning a
// cancellation token, a hydrated message store, token-tracking state, and
// a background event persister.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	agentctx "github.com/driftcode/agentcore/internal/context"
	"github.com/driftcode/agentcore/internal/persist"
	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/internal/tokens"
	"github.com/driftcode/agentcore/pkg/models"
)

// ErrMaxSessionsReached is returned when activating a session would exceed
// the orchestrator's concurrency cap.
var ErrMaxSessionsReached = errors.New("max active sessions reached")

// DefaultMaxActiveSessions is used when the orchestrator is constructed
// with a non-positive cap.
const DefaultMaxActiveSessions = 64

// forkPayload is the session.fork root event's payload: a pointer back to
// the session and head event it was forked from. The new session's own
// event tree starts fresh (event parent links cannot cross sessions); this
// payload is how a fork's provenance is recovered.
type forkPayload struct {
	SourceSessionID   string `json:"sourceSessionId"`
	SourceHeadEventID string `json:"sourceHeadEventId"`
}

// Active is one session's live runtime state.
type Active struct {
	Session *models.Session

	Messages *agentctx.MessageStore
	Tokens   *tokens.StateManager
	Persist  *persist.Persister

	turnMu sync.Mutex // turns never overlap within a session (spec §4.I)

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the session's live cancellation context. Tool execution
// and stream consumption derive their per-call contexts from this so that
// Cancel reaches every suspension point.
func (a *Active) Context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

// Cancel trips the session's cancellation token. This is how agent.abort
// is realised.
func (a *Active) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel()
}

// Lock/Unlock serialise turn execution for this session.
func (a *Active) Lock()   { a.turnMu.Lock() }
func (a *Active) Unlock() { a.turnMu.Unlock() }

// Orchestrator maintains the registry of active sessions.
type Orchestrator struct {
	store     store.Store
	maxActive int

	mu     sync.Mutex
	active map[string]*Active
}

// NewOrchestrator returns an orchestrator backed by s, capping simultaneous
// active sessions at maxActive (DefaultMaxActiveSessions if non-positive).
func NewOrchestrator(s store.Store, maxActive int) *Orchestrator {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveSessions
	}
	return &Orchestrator{
		store:     s,
		maxActive: maxActive,
		active:    make(map[string]*Active),
	}
}

// CreateSession allocates a new root event and begins active state for it.
func (o *Orchestrator) CreateSession(ctx context.Context, model, workingDir, title string) (*Active, error) {
	sess, _, err := o.store.CreateSession(ctx, model, workingDir, title)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return o.activate(sess)
}

// ResumeSession hydrates the active state for sessionID from the event
// store if it is not already active, replaying its event history into a
// message store and token-tracking state.
func (o *Orchestrator) ResumeSession(ctx context.Context, sessionID string) (*Active, error) {
	if active, ok := o.lookupActive(sessionID); ok {
		return active, nil
	}

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}

	active, err := o.activate(sess)
	if err != nil {
		return nil, err
	}
	if err := o.hydrate(ctx, active); err != nil {
		o.Evict(sessionID)
		return nil, fmt.Errorf("resume session: %w", err)
	}
	return active, nil
}

// ForkSession creates a new session whose root is a session.fork event
// referencing source's current head, seeded with a copy of source's
// current message history, and begins active state for it.
func (o *Orchestrator) ForkSession(ctx context.Context, sourceID, title string) (*Active, error) {
	source, err := o.ResumeSession(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("fork session: %w", err)
	}

	if title == "" {
		title = source.Session.Title
	}

	sess, _, err := o.store.CreateSession(ctx, source.Session.Model, source.Session.WorkingDir, title)
	if err != nil {
		return nil, fmt.Errorf("fork session: create: %w", err)
	}

	payload, err := json.Marshal(forkPayload{
		SourceSessionID:   sourceID,
		SourceHeadEventID: source.Session.HeadEventID,
	})
	if err != nil {
		return nil, fmt.Errorf("fork session: encode payload: %w", err)
	}
	if _, err := o.store.Append(ctx, sess.ID, models.EventSessionFork, payload, ""); err != nil {
		return nil, fmt.Errorf("fork session: append fork event: %w", err)
	}

	active, err := o.activate(sess)
	if err != nil {
		return nil, err
	}
	active.Messages.Set(append([]*models.Message(nil), source.Messages.Get()...))
	return active, nil
}

// Evict removes sessionID from the active registry and stops its
// persister worker. It is a no-op if the session is not active.
func (o *Orchestrator) Evict(sessionID string) {
	o.mu.Lock()
	active, ok := o.active[sessionID]
	if ok {
		delete(o.active, sessionID)
	}
	o.mu.Unlock()

	if !ok {
		return
	}
	active.Cancel()
	active.Persist.Close()
}

// Get returns the active state for sessionID without hydrating it.
func (o *Orchestrator) Get(sessionID string) (*Active, bool) {
	return o.lookupActive(sessionID)
}

// ActiveCount reports the number of currently active sessions.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Orchestrator) lookupActive(sessionID string) (*Active, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.active[sessionID]
	return a, ok
}

func (o *Orchestrator) activate(sess *models.Session) (*Active, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if a, ok := o.active[sess.ID]; ok {
		return a, nil
	}
	if len(o.active) >= o.maxActive {
		return nil, ErrMaxSessionsReached
	}

	ctx, cancel := context.WithCancel(context.Background())
	active := &Active{
		Session:  sess,
		Messages: agentctx.NewMessageStore(),
		Tokens:   tokens.NewStateManager(tokens.DefaultContextLimit),
		Persist:  persist.New(o.store, sess.ID),
		ctx:      ctx,
		cancel:   cancel,
	}
	o.active[sess.ID] = active
	return active, nil
}
