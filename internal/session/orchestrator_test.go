package session

import (
	"context"
	"testing"

	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_CreateSessionActivatesImmediately(t *testing.T) {
	o := NewOrchestrator(store.NewMemoryStore(), 0)

	active, err := o.CreateSession(context.Background(), "claude-sonnet", "/workspace", "demo")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, 1, o.ActiveCount())
	require.True(t, active.Messages.IsEmpty())
}

func TestOrchestrator_ResumeSessionReturnsSameInstanceWhileActive(t *testing.T) {
	o := NewOrchestrator(store.NewMemoryStore(), 0)
	created, err := o.CreateSession(context.Background(), "m", "/wd", "t")
	require.NoError(t, err)

	resumed, err := o.ResumeSession(context.Background(), created.Session.ID)
	require.NoError(t, err)
	require.Same(t, created, resumed)
}

func TestOrchestrator_ResumeSessionHydratesFromStore(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	sess, _, err := s.CreateSession(ctx, "m", "/wd", "t")
	require.NoError(t, err)

	userMsg := `{"role":"user","content":"hello"}`
	_, err = s.Append(ctx, sess.ID, models.EventMessageUser, []byte(userMsg), "")
	require.NoError(t, err)

	o := NewOrchestrator(s, 0)
	active, err := o.ResumeSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, active.Messages.Len())
	require.Equal(t, models.RoleUser, active.Messages.Get()[0].Role)
}

func TestOrchestrator_ResumeSessionRepairsDanglingToolCall(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	sess, _, err := s.CreateSession(ctx, "m", "/wd", "t")
	require.NoError(t, err)

	assistantMsg := `{"role":"assistant","toolCalls":[{"id":"call-1","name":"echo","input":{}}]}`
	_, err = s.Append(ctx, sess.ID, models.EventMessageAssist, []byte(assistantMsg), "")
	require.NoError(t, err)

	o := NewOrchestrator(s, 0)
	active, err := o.ResumeSession(ctx, sess.ID)
	require.NoError(t, err)

	msgs := active.Messages.Get()
	require.Len(t, msgs, 2)
	require.Equal(t, models.RoleTool, msgs[1].Role)
	require.True(t, msgs[1].ToolResults[0].IsError)
	require.Equal(t, "call-1", msgs[1].ToolResults[0].ToolCallID)
}

func TestOrchestrator_ForkSessionCopiesHistoryAndLinksSource(t *testing.T) {
	o := NewOrchestrator(store.NewMemoryStore(), 0)
	ctx := context.Background()

	source, err := o.CreateSession(ctx, "m", "/wd", "original")
	require.NoError(t, err)
	source.Messages.Add(&models.Message{Role: models.RoleUser, Content: "hi"})

	fork, err := o.ForkSession(ctx, source.Session.ID, "")
	require.NoError(t, err)
	require.NotEqual(t, source.Session.ID, fork.Session.ID)
	require.Equal(t, "original", fork.Session.Title)
	require.Equal(t, 1, fork.Messages.Len())
}

func TestOrchestrator_MaxSessionsReached(t *testing.T) {
	o := NewOrchestrator(store.NewMemoryStore(), 1)
	ctx := context.Background()

	_, err := o.CreateSession(ctx, "m", "/wd", "first")
	require.NoError(t, err)

	_, err = o.CreateSession(ctx, "m", "/wd", "second")
	require.ErrorIs(t, err, ErrMaxSessionsReached)
}

func TestOrchestrator_EvictRemovesFromRegistry(t *testing.T) {
	o := NewOrchestrator(store.NewMemoryStore(), 0)
	active, err := o.CreateSession(context.Background(), "m", "/wd", "t")
	require.NoError(t, err)

	o.Evict(active.Session.ID)
	require.Equal(t, 0, o.ActiveCount())

	select {
	case <-active.Context().Done():
	default:
		t.Fatal("expected cancellation context to be done after evict")
	}
}

func TestActive_CancelTripsContext(t *testing.T) {
	o := NewOrchestrator(store.NewMemoryStore(), 0)
	active, err := o.CreateSession(context.Background(), "m", "/wd", "t")
	require.NoError(t, err)

	active.Cancel()
	select {
	case <-active.Context().Done():
	default:
		t.Fatal("expected context to be cancelled")
	}
}
