package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftcode/agentcore/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(nil)

	called := false
	id := r.Register(models.HookPreToolUse, "noop", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		called = true
		return &models.HookResult{Decision: models.HookContinue}, nil
	})

	require.NotEmpty(t, id)
	require.Equal(t, 1, r.HandlerCount(models.HookPreToolUse))

	_, err := r.Dispatch(context.Background(), NewContext(models.HookPreToolUse, "session-1"))
	require.NoError(t, err)
	require.True(t, called)
}

func TestRegistry_RegisterReplacesByName(t *testing.T) {
	r := NewRegistry(nil)

	r.Register(models.HookPreToolUse, "guard", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		return &models.HookResult{Decision: models.HookAbort, Reason: "v1"}, nil
	})
	r.Register(models.HookPreToolUse, "guard", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		return &models.HookResult{Decision: models.HookAbort, Reason: "v2"}, nil
	})

	require.Equal(t, 1, r.HandlerCount(models.HookPreToolUse))

	result, err := r.Dispatch(context.Background(), NewContext(models.HookPreToolUse, "session-1"))
	require.NoError(t, err)
	require.Equal(t, "v2", result.Reason)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(nil)

	r.Register(models.HookPreToolUse, "noop", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		return &models.HookResult{Decision: models.HookContinue}, nil
	})

	require.True(t, r.Unregister(models.HookPreToolUse, "noop"))
	require.Equal(t, 0, r.HandlerCount(models.HookPreToolUse))
	require.False(t, r.Unregister(models.HookPreToolUse, "noop"))
}

func TestRegistry_DispatchDescendingPriority(t *testing.T) {
	r := NewRegistry(nil)

	var order []int
	r.Register(models.HookPreToolUse, "normal", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		order = append(order, 2)
		return &models.HookResult{Decision: models.HookContinue}, nil
	}, WithPriority(PriorityNormal))

	r.Register(models.HookPreToolUse, "high", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		order = append(order, 1)
		return &models.HookResult{Decision: models.HookContinue}, nil
	}, WithPriority(PriorityHighest))

	r.Register(models.HookPreToolUse, "low", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		order = append(order, 3)
		return &models.HookResult{Decision: models.HookContinue}, nil
	}, WithPriority(PriorityLowest))

	_, err := r.Dispatch(context.Background(), NewContext(models.HookPreToolUse, "session-1"))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestRegistry_BlockingShortCircuits(t *testing.T) {
	r := NewRegistry(nil)

	var secondCalled bool
	r.Register(models.HookPreToolUse, "blocker", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		return &models.HookResult{Decision: models.HookAbort, Reason: "blocked"}, nil
	}, WithPriority(PriorityHighest))

	r.Register(models.HookPreToolUse, "trailing", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		secondCalled = true
		return &models.HookResult{Decision: models.HookContinue}, nil
	}, WithPriority(PriorityLowest))

	result, err := r.Dispatch(context.Background(), NewContext(models.HookPreToolUse, "session-1"))
	require.NoError(t, err)
	require.Equal(t, models.HookAbort, result.Decision)
	require.False(t, secondCalled, "handler after an aborting hook must not run")
}

func TestRegistry_ParallelNeverGates(t *testing.T) {
	r := NewRegistry(nil)

	r.Register(models.HookPostToolUse, "observer", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		return nil, errors.New("observer failure")
	}, WithMode(models.HookParallel))

	result, err := r.Dispatch(context.Background(), NewContext(models.HookPostToolUse, "session-1"))
	require.NoError(t, err)
	require.Equal(t, models.HookContinue, result.Decision)
}

func TestRegistry_PanicRecovery(t *testing.T) {
	r := NewRegistry(nil)

	var secondCalled bool
	r.Register(models.HookPreToolUse, "panics", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		panic("boom")
	}, WithPriority(PriorityHighest))

	r.Register(models.HookPreToolUse, "trailing", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		secondCalled = true
		return &models.HookResult{Decision: models.HookContinue}, nil
	}, WithPriority(PriorityLowest))

	result, err := r.Dispatch(context.Background(), NewContext(models.HookPreToolUse, "session-1"))
	require.NoError(t, err)
	require.Equal(t, models.HookContinue, result.Decision)
	require.True(t, secondCalled, "a panicking handler must not stop subsequent handlers")
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry(nil)

	r.Register(models.HookPreToolUse, "a", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		return &models.HookResult{Decision: models.HookContinue}, nil
	})
	r.Register(models.HookPostToolUse, "b", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		return &models.HookResult{Decision: models.HookContinue}, nil
	})

	r.Clear()
	require.Empty(t, r.RegisteredTypes())
}

func TestRegistry_DispatchNoHandlersContinues(t *testing.T) {
	r := NewRegistry(nil)

	result, err := r.Dispatch(context.Background(), NewContext(models.HookSessionStart, "session-1"))
	require.NoError(t, err)
	require.Equal(t, models.HookContinue, result.Decision)
}

func TestRegistry_ParallelTimeoutDoesNotBlockDispatch(t *testing.T) {
	r := NewRegistry(nil)

	started := make(chan struct{})
	r.Register(models.HookPostToolUse, "slow", func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithMode(models.HookParallel))

	start := time.Now()
	result, err := r.Dispatch(context.Background(), NewContext(models.HookPostToolUse, "session-1"))
	require.NoError(t, err)
	require.Equal(t, models.HookContinue, result.Decision)
	require.Less(t, time.Since(start), time.Second, "dispatch must not wait on parallel handlers")

	<-started
}
