package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/icecake0141/nwrunner/pkg/control"
	"github.com/icecake0141/nwrunner/pkg/models"
)

// fakeSSHClient is a test double for sshClient that scripts command output
// per call index, avoiding any real network I/O.
type fakeSSHClient struct {
	outputs []string
	errs    []error
	call    int
	closed  bool
}

func (f *fakeSSHClient) RunCommand(_ context.Context, _ string, _ time.Duration) (string, error) {
	idx := f.call
	f.call++

	var out string
	var err error

	if idx < len(f.outputs) {
		out = f.outputs[idx]
	}
	if idx < len(f.errs) {
		err = f.errs[idx]
	}

	return out, err
}

func (f *fakeSSHClient) Close() error {
	f.closed = true
	return nil
}

func newFakeDial(client sshClient, dialErr error) func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (sshClient, error) {
	return func(_ context.Context, _ string, _ *ssh.ClientConfig) (sshClient, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return client, nil
	}
}

func sshRequest() Request {
	return Request{
		Device:  models.DeviceTarget{Host: "10.0.0.5", Port: 22},
		Params:  models.DeviceParams{Username: "admin", Password: "secret", DeviceType: "cisco_ios"},
		Commands: []string{"conf t", "interface Gi0/1", "no shutdown"},
		Control: control.New(),
	}
}

func TestSSHDeviceWorker_SuccessNoVerify(t *testing.T) {
	fake := &fakeSSHClient{outputs: []string{"ok", "ok", "ok", "ok"}}
	w := NewSSHDeviceWorker(DefaultSSHWorkerConfig(), nil)
	w.dial = newFakeDial(fake, nil)

	res := w.Run(context.Background(), sshRequest())

	require.Equal(t, StatusSuccess, res.Status)
	assert.True(t, fake.closed)
	assert.Equal(t, 1, res.Attempts)
}

func TestSSHDeviceWorker_ConnectFailureNoRetryOnCanary(t *testing.T) {
	w := NewSSHDeviceWorker(DefaultSSHWorkerConfig(), nil)
	w.dial = newFakeDial(nil, errors.New("dial refused"))

	req := sshRequest()
	req.IsCanary = true
	req.RetryOnConnectionError = true

	res := w.Run(context.Background(), req)

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "Connection failed")
	assert.Equal(t, 1, res.Attempts)
}

func TestSSHDeviceWorker_ConnectRetriesWhenAllowed(t *testing.T) {
	cfg := DefaultSSHWorkerConfig()
	cfg.ConnectRetryBackoff = time.Millisecond

	w := NewSSHDeviceWorker(cfg, nil)
	w.dial = newFakeDial(nil, errors.New("refused"))

	req := sshRequest()
	req.RetryOnConnectionError = true

	res := w.Run(context.Background(), req)

	require.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 2, res.Attempts)
}

func TestSSHDeviceWorker_CommandErrorFailsApply(t *testing.T) {
	fake := &fakeSSHClient{outputs: []string{"ok", "% Invalid input detected"}}
	w := NewSSHDeviceWorker(DefaultSSHWorkerConfig(), nil)
	w.dial = newFakeDial(fake, nil)

	req := sshRequest()
	req.Commands = []string{"no shut"}

	res := w.Run(context.Background(), req)

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "Command error detected")
}

func TestSSHDeviceWorker_VerifyProducesDiff(t *testing.T) {
	// paging command, pre-verify, three apply commands, post-verify
	fake := &fakeSSHClient{outputs: []string{"ok", "a\nb\n", "ok", "ok", "ok", "a\nc\n"}}
	w := NewSSHDeviceWorker(DefaultSSHWorkerConfig(), nil)
	w.dial = newFakeDial(fake, nil)

	req := sshRequest()
	req.VerifyCmds = []string{"show run"}

	res := w.Run(context.Background(), req)

	require.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.Diff)
	assert.Contains(t, *res.Diff, "- b\n")
	assert.Contains(t, *res.Diff, "+ c\n")
}

func TestSSHDeviceWorker_CancelledBeforeConnect(t *testing.T) {
	w := NewSSHDeviceWorker(DefaultSSHWorkerConfig(), nil)
	w.dial = newFakeDial(&fakeSSHClient{}, nil)

	req := sshRequest()
	req.Control.Cancel()

	res := w.Run(context.Background(), req)

	require.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, ErrCancelledMsg, res.Error)
}
