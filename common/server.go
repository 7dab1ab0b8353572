package common

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tokenvault/tokenvault/log"
)

// ServerShutdownTimeout bounds how long RunServer waits for in-flight
// requests after ctx is cancelled.
const ServerShutdownTimeout = 10 * time.Second

// RunServer serves until ctx is cancelled, then shuts the server down
// gracefully. It returns nil on a clean shutdown.
func RunServer(ctx context.Context, server *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down http server", "addr", server.Addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ServerShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
