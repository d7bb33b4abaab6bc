package lifecycle

import (
	"context"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icecake0141/nwrunner/pkg/logger"
)

func TestRunServer_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- RunServer(ctx, &ServerOptions{
			ListenAddr: "127.0.0.1:0",
			Handler:    http.NewServeMux(),
			Logger:     logger.Nop(),
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunServer did not return after context cancel")
	}
}

func TestRunServer_StopsOnSignal(t *testing.T) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunServer(context.Background(), &ServerOptions{
			ListenAddr:      "127.0.0.1:0",
			Handler:         http.NewServeMux(),
			ShutdownTimeout: time.Second,
			Logger:          logger.Nop(),
		})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunServer did not return after signal")
	}
}
