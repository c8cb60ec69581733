// Package httpserver runs an HTTP server next to background workers and
// shuts everything down together.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 10 * time.Second

// Worker is a background loop that returns when its context is done
type Worker func(ctx context.Context) error

// New builds an http.Server with the timeouts used by every entry point
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

// Run serves srv and runs the workers until ctx is cancelled or any of them
// fails, then shuts the server down gracefully
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger, workers ...Worker) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	for _, w := range workers {
		w := w
		g.Go(func() error { return w(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		logger.Info("http server shutting down", "addr", srv.Addr)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
