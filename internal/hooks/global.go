package hooks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/driftcode/agentcore/pkg/models"
)

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the global hook registry.
// The registry is created lazily on first access.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry(nil)
	})
	return globalRegistry
}

// SetGlobalRegistry replaces the global registry.
// This should only be called during initialization.
func SetGlobalRegistry(r *Registry) {
	globalRegistry = r
}

// SetGlobalLogger sets the logger for the global registry.
func SetGlobalLogger(logger *slog.Logger) {
	Global().logger = logger.With("component", "hooks")
}

// Register adds a handler to the global registry.
func Register(hookType models.HookType, name string, handler Handler, opts ...RegisterOption) string {
	return Global().Register(hookType, name, handler, opts...)
}

// Unregister removes a named handler from the global registry.
func Unregister(hookType models.HookType, name string) bool {
	return Global().Unregister(hookType, name)
}

// Dispatch runs the global registry's handlers for hc.Type.
func Dispatch(ctx context.Context, hc *models.HookContext) (*models.HookResult, error) {
	return Global().Dispatch(ctx, hc)
}

// On is a convenience function to register a blocking handler for a hook type.
func On(hookType models.HookType, name string, handler Handler, opts ...RegisterOption) string {
	return Register(hookType, name, handler, opts...)
}
