package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/driftcode/agentcore/pkg/models"
	"github.com/google/uuid"
)

// DefaultParallelTimeout bounds how long a single parallel-mode handler may
// run before its result is dropped and logged.
const DefaultParallelTimeout = 5 * time.Second

// Registry manages hook registrations and dispatch.
type Registry struct {
	handlers map[models.HookType][]*Registration // hook type -> handlers
	byKey    map[string]*Registration             // type+name -> registration, for replace-on-conflict
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates a new hook registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[models.HookType][]*Registration),
		byKey:    make(map[string]*Registration),
		logger:   logger.With("component", "hooks"),
	}
}

func regKey(hookType models.HookType, name string) string {
	return fmt.Sprintf("%s:%s", hookType, name)
}

// Register adds a handler for a hook type under name. Registering the same
// (type, name) pair again replaces the existing handler in place, preserving
// its slot rather than appending a duplicate.
func (r *Registry) Register(hookType models.HookType, name string, handler Handler, opts ...RegisterOption) string {
	reg := &Registration{
		ID:       uuid.New().String(),
		Type:     hookType,
		Name:     name,
		Handler:  handler,
		Priority: PriorityNormal,
		Mode:     models.HookBlocking,
	}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := regKey(hookType, name)
	if existing, ok := r.byKey[key]; ok {
		r.replaceLocked(existing, reg)
	} else {
		r.handlers[hookType] = append(r.handlers[hookType], reg)
	}
	r.byKey[key] = reg

	sort.SliceStable(r.handlers[hookType], func(i, j int) bool {
		return r.handlers[hookType][i].Priority > r.handlers[hookType][j].Priority
	})

	r.logger.Debug("registered hook",
		"id", reg.ID,
		"type", hookType,
		"name", name,
		"priority", reg.Priority,
		"mode", reg.Mode)

	return reg.ID
}

func (r *Registry) replaceLocked(old, next *Registration) {
	handlers := r.handlers[old.Type]
	for i, h := range handlers {
		if h == old {
			handlers[i] = next
			return
		}
	}
}

// Unregister removes a named handler from a hook type.
func (r *Registry) Unregister(hookType models.HookType, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := regKey(hookType, name)
	reg, exists := r.byKey[key]
	if !exists {
		return false
	}
	delete(r.byKey, key)

	handlers := r.handlers[hookType]
	for i, h := range handlers {
		if h == reg {
			r.handlers[hookType] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}

	r.logger.Debug("unregistered hook", "type", hookType, "name", name)
	return true
}

// Clear removes all registered handlers.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = make(map[models.HookType][]*Registration)
	r.byKey = make(map[string]*Registration)
	r.logger.Debug("cleared all hooks")
}

// Dispatch runs every handler registered for hc.Type. Parallel-mode handlers
// are started concurrently and never gate the result; each is bounded by
// DefaultParallelTimeout and a dropped/errored one is logged, not returned.
// Blocking-mode handlers then run sequentially in descending-priority order
// and short-circuit on the first decision other than HookContinue.
func (r *Registry) Dispatch(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
	if hc == nil {
		return nil, fmt.Errorf("hook context is nil")
	}

	r.mu.RLock()
	registered := append([]*Registration(nil), r.handlers[hc.Type]...)
	r.mu.RUnlock()

	if len(registered) == 0 {
		return &models.HookResult{Decision: models.HookContinue}, nil
	}

	var blocking []*Registration
	for _, reg := range registered {
		if reg.Mode == models.HookParallel {
			r.dispatchParallel(ctx, reg, hc)
			continue
		}
		blocking = append(blocking, reg)
	}

	for _, reg := range blocking {
		result, err := r.callHandler(ctx, reg, hc)
		if err != nil {
			r.logger.Warn("hook handler error",
				"type", hc.Type,
				"name", reg.Name,
				"error", err)
			continue
		}
		if result != nil && result.Decision != models.HookContinue {
			return result, nil
		}
	}

	return &models.HookResult{Decision: models.HookContinue}, nil
}

func (r *Registry) dispatchParallel(ctx context.Context, reg *Registration, hc *models.HookContext) {
	go func() {
		timeoutCtx, cancel := context.WithTimeout(ctx, DefaultParallelTimeout)
		defer cancel()

		done := make(chan struct{})
		var err error
		go func() {
			_, err = r.callHandler(timeoutCtx, reg, hc)
			close(done)
		}()

		select {
		case <-done:
			if err != nil {
				r.logger.Warn("parallel hook handler error",
					"type", hc.Type, "name", reg.Name, "error", err)
			}
		case <-timeoutCtx.Done():
			r.logger.Warn("parallel hook handler timed out",
				"type", hc.Type, "name", reg.Name, "timeout", DefaultParallelTimeout)
		}
	}()
}

func (r *Registry) callHandler(ctx context.Context, reg *Registration, hc *models.HookContext) (result *models.HookResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook panic: %v", p)
		}
	}()

	return reg.Handler(ctx, hc)
}

// RegisteredTypes returns all hook types with at least one registered handler.
func (r *Registry) RegisteredTypes() []models.HookType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.HookType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// HandlerCount returns the number of handlers registered for hookType.
func (r *Registry) HandlerCount(hookType models.HookType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[hookType])
}

// ListRegistrations returns all registrations for hookType, in dispatch order.
func (r *Registry) ListRegistrations(hookType models.HookType) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := r.handlers[hookType]
	result := make([]*Registration, len(handlers))
	copy(result, handlers)
	return result
}
