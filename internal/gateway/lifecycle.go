package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const shutdownGrace = 10 * time.Second

// Run starts an HTTP server on addr serving s.Handler() and blocks until
// ctx is cancelled, at which point it drains in-flight requests for
// shutdownGrace before returning. Grounded on the teacher's
// internal/gateway/lifecycle.go Start/Shutdown split, trimmed to this
// runtime's single HTTP listener (no gRPC, no singleton lock file, no
// background task scheduler).
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return <-errCh
}
