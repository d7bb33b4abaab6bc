// Package lifecycle adapts the server startup/shutdown shape from the
// teacher's gRPC RunServer to the HTTP/WS surface spec.md §6 specifies:
// same signal-channel + error-channel + context-done select, same bounded
// shutdown timeout, a plain net/http.Server in place of a grpc.Server.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icecake0141/nwrunner/pkg/logger"
)

// DefaultShutdownTimeout bounds how long graceful shutdown may take before
// RunServer gives up and returns an error.
const DefaultShutdownTimeout = 10 * time.Second

// Service is anything with its own background lifecycle RunServer should
// start alongside the HTTP server and stop alongside it. nwrunnerd has none
// today (the execution engine has no ambient background loop of its own,
// only per-job goroutines started by RunCoordinator), so ServerOptions.Service
// may be left nil.
type Service interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// ServerOptions holds configuration for RunServer.
type ServerOptions struct {
	ListenAddr      string
	ServiceName     string
	Handler         http.Handler
	Service         Service
	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

var (
	errShutdownTimeout = errors.New("timeout shutting down")
	errServiceStop     = errors.New("service stop failed")
)

// RunServer starts an HTTP server (and the optional Service) and blocks
// until a termination signal, a startup error, or ctx is cancelled, then
// drives a bounded graceful shutdown.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	httpServer := &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           opts.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)

	if opts.Service != nil {
		go func() {
			if err := opts.Service.Start(ctx); err != nil {
				errChan <- fmt.Errorf("service start failed: %w", err)
			}
		}()
	}

	go func() {
		log.Info().Str("address", opts.ListenAddr).Str("service", opts.ServiceName).
			Msg("starting HTTP server")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	return handleShutdown(ctx, cancel, httpServer, opts.Service, shutdownTimeout, errChan, log)
}

func handleShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	httpServer *http.Server,
	svc Service,
	shutdownTimeout time.Duration,
	errChan chan error,
	log logger.Logger,
) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received signal, initiating shutdown")
	case err := <-errChan:
		log.Error().Err(err).Msg("received error, initiating shutdown")
		cancel()

		return err
	case <-ctx.Done():
		log.Info().Msg("context canceled, initiating shutdown")

		return ctx.Err()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	cancel()

	want := 1
	if svc != nil {
		want = 2
	}

	errChanShutdown := make(chan error, want)

	go func() {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errChanShutdown <- fmt.Errorf("HTTP server shutdown failed: %w", err)
			return
		}
		errChanShutdown <- nil
	}()

	if svc != nil {
		go func() {
			if err := svc.Stop(shutdownCtx); err != nil {
				errChanShutdown <- fmt.Errorf("%w: %w", errServiceStop, err)
				return
			}
			errChanShutdown <- nil
		}()
	}

	for i := 0; i < want; i++ {
		select {
		case <-shutdownCtx.Done():
			log.Error().Msg("shutdown timed out")

			return fmt.Errorf("%w: %w", errShutdownTimeout, shutdownCtx.Err())
		case err := <-errChanShutdown:
			if err != nil {
				return err
			}
		}
	}

	return nil
}
