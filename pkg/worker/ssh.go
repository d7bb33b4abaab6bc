package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/icecake0141/nwrunner/pkg/control"
	"github.com/icecake0141/nwrunner/pkg/logger"
)

var errCancelled = errors.New(ErrCancelledMsg)

// SSHWorkerConfig carries the timeouts that are worker configuration, not
// engine configuration, per spec.md §5 ("Per-command read timeout and
// connection timeout are configuration of the worker, not of the engine").
type SSHWorkerConfig struct {
	ConnectTimeout      time.Duration // default 10s
	CommandTimeout      time.Duration // default 20s
	ConnectRetryBackoff time.Duration // default 5s, spec.md §4.5 point 3
}

// DefaultSSHWorkerConfig returns the spec's documented defaults.
func DefaultSSHWorkerConfig() SSHWorkerConfig {
	return SSHWorkerConfig{
		ConnectTimeout:      10 * time.Second,
		CommandTimeout:      20 * time.Second,
		ConnectRetryBackoff: 5 * time.Second,
	}
}

// SSHDeviceWorker is the real DeviceWorker adapter, driving an SSH session
// via golang.org/x/crypto/ssh. It issues one exec-channel command per line
// the way a simple line-oriented CLI session does: connect once, run each
// verify/apply command against a fresh session on that connection (matching
// the original Netmiko-based executor's command-at-a-time model), and
// disconnect at the end.
type SSHDeviceWorker struct {
	cfg SSHWorkerConfig
	log logger.Logger

	// dial is overridable in tests to avoid real network I/O while still
	// exercising the full lifecycle/retry/error-detection logic.
	dial func(ctx context.Context, addr string, clientCfg *ssh.ClientConfig) (sshClient, error)
}

// sshClient is the minimal surface SSHDeviceWorker needs from *ssh.Client,
// narrowed so tests can substitute a fake.
type sshClient interface {
	RunCommand(ctx context.Context, cmd string, timeout time.Duration) (string, error)
	Close() error
}

type realSSHClient struct {
	client *ssh.Client
}

func (c *realSSHClient) RunCommand(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(cmd) }()

	select {
	case err := <-errCh:
		if err != nil {
			return out.String(), err
		}

		return out.String(), nil
	case <-time.After(timeout):
		_ = session.Signal(ssh.SIGKILL)
		return out.String(), fmt.Errorf("command %q timed out after %s", cmd, timeout)
	case <-ctx.Done():
		return out.String(), ctx.Err()
	}
}

func (c *realSSHClient) Close() error {
	return c.client.Close()
}

func dialSSH(ctx context.Context, addr string, clientCfg *ssh.ClientConfig) (sshClient, error) {
	dialer := net.Dialer{Timeout: clientCfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		return nil, err
	}

	return &realSSHClient{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// NewSSHDeviceWorker builds the real adapter.
func NewSSHDeviceWorker(cfg SSHWorkerConfig, log logger.Logger) *SSHDeviceWorker {
	return &SSHDeviceWorker{cfg: cfg, log: log, dial: dialSSH}
}

func (w *SSHDeviceWorker) Run(ctx context.Context, req Request) Result {
	var logs []string
	add := func(msg string) {
		logs = append(logs, msg)
		if w.log != nil {
			w.log.Debug().Str("device", req.Device.DeviceKey()).Msg(msg)
		}
	}

	if req.Control != nil && req.Control.Cancelled() {
		add("cancelled before connect")
		return finalize(Result{Status: StatusCancelled, Error: ErrCancelledMsg}, logs)
	}

	client, attempts, err := w.connectWithRetry(ctx, req, add)
	if err != nil {
		add("connection failed: " + err.Error())
		return finalize(Result{Status: StatusFailed, Error: "Connection failed: " + err.Error(), Attempts: attempts}, logs)
	}
	defer func() {
		_ = client.Close()
		add("disconnected")
	}()

	add("connected successfully")

	if paging := pagingCommandFor(req.Params.DeviceType); paging != "" {
		if _, err := client.RunCommand(ctx, paging, w.cfg.CommandTimeout); err != nil {
			add("warning: failed to disable paging: " + err.Error())
		}
	}

	return w.runCommands(ctx, req, client, attempts, add, logs)
}

// ErrCancelledMsg is the sentinel message used for cancelled results,
// matching the spec's "cancelled" sentinel (spec.md §4.5 point 2).
const ErrCancelledMsg = "cancelled"

func (w *SSHDeviceWorker) connectWithRetry(ctx context.Context, req Request, add func(string)) (sshClient, int, error) {
	clientCfg := &ssh.ClientConfig{
		User:            req.Params.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(req.Params.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // operator-supplied lab/internal devices; no CA infra assumed
		Timeout:         w.cfg.ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", req.Device.Host, req.Device.Port)

	maxRetries := 1
	if req.IsCanary || !req.RetryOnConnectionError {
		maxRetries = 0
	}

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if req.Control != nil && req.Control.Cancelled() {
			return nil, attempt, errCancelled
		}

		add(fmt.Sprintf("connecting to %s...", addr))

		client, err := w.dial(ctx, addr, clientCfg)
		if err == nil {
			return client, attempt + 1, nil
		}

		lastErr = err

		if attempt < maxRetries {
			add(fmt.Sprintf("connection failed: %s. retrying in %s...", err, w.cfg.ConnectRetryBackoff))

			select {
			case <-time.After(w.cfg.ConnectRetryBackoff):
			case <-ctx.Done():
				return nil, attempt + 1, ctx.Err()
			}
		}
	}

	return nil, maxRetries + 1, lastErr
}

func (w *SSHDeviceWorker) runCommands(ctx context.Context, req Request, client sshClient, attempts int, add func(string), logs []string) Result {
	var pre *string

	if len(req.VerifyCmds) > 0 {
		add("running pre-verification commands...")

		if req.Control != nil && req.Control.Cancelled() {
			return finalize(Result{Status: StatusCancelled, Error: ErrCancelledMsg, Attempts: attempts}, logs)
		}

		out, err := w.runBatch(ctx, client, req.VerifyCmds, req.Control, add)
		if err != nil {
			if errors.Is(err, errCancelled) {
				return finalize(Result{Status: StatusCancelled, Error: ErrCancelledMsg, Attempts: attempts}, logs)
			}

			return finalize(Result{Status: StatusFailed, Error: "Verify failed: " + err.Error(), Attempts: attempts}, logs)
		}

		pre = &out
		add("pre-verification complete")
	}

	add("applying configuration commands...")

	if req.Control != nil && req.Control.Cancelled() {
		return finalize(Result{Status: StatusCancelled, Error: ErrCancelledMsg, PreOutput: pre, Attempts: attempts}, logs)
	}

	applyOut, err := w.runBatch(ctx, client, req.Commands, req.Control, add)
	if err != nil {
		if errors.Is(err, errCancelled) {
			return finalize(Result{Status: StatusCancelled, Error: ErrCancelledMsg, PreOutput: pre, Attempts: attempts}, logs)
		}

		return finalize(Result{Status: StatusFailed, Error: "Apply failed: " + err.Error(), PreOutput: pre, Attempts: attempts}, logs)
	}

	add("configuration applied")

	if pattern := detectCommandError(applyOut); pattern != "" {
		add("ERROR: command error detected: " + pattern)
		return finalize(Result{
			Status:      StatusFailed,
			Error:       "Command error detected: " + pattern,
			PreOutput:   pre,
			ApplyOutput: &applyOut,
			Attempts:    attempts,
		}, logs)
	}

	if req.Control != nil && req.Control.Cancelled() {
		return finalize(Result{Status: StatusCancelled, Error: ErrCancelledMsg, PreOutput: pre, ApplyOutput: &applyOut, Attempts: attempts}, logs)
	}

	var post *string
	var diff *string

	if len(req.VerifyCmds) > 0 {
		add("running post-verification commands...")

		out, err := w.runBatch(ctx, client, req.VerifyCmds, req.Control, add)
		if err != nil {
			if errors.Is(err, errCancelled) {
				return finalize(Result{Status: StatusCancelled, Error: ErrCancelledMsg, PreOutput: pre, ApplyOutput: &applyOut, Attempts: attempts}, logs)
			}

			return finalize(Result{Status: StatusFailed, Error: "Post-verify failed: " + err.Error(), PreOutput: pre, ApplyOutput: &applyOut, Attempts: attempts}, logs)
		}

		post = &out
		add("post-verification complete")

		if pre != nil && post != nil {
			d := UnifiedDiff(*pre, *post)
			diff = &d
			add("diff created")
		}
	}

	return finalize(Result{
		Status:      StatusSuccess,
		PreOutput:   pre,
		ApplyOutput: &applyOut,
		PostOutput:  post,
		Diff:        diff,
		Attempts:    attempts,
	}, logs)
}

func (w *SSHDeviceWorker) runBatch(ctx context.Context, client sshClient, cmds []string, ctrl *control.Control, add func(string)) (string, error) {
	var outputs []string

	for _, cmd := range cmds {
		if ctrl != nil && ctrl.Cancelled() {
			return strings.Join(outputs, "\n"), errCancelled
		}

		add("  > " + cmd)

		out, err := client.RunCommand(ctx, cmd, w.cfg.CommandTimeout)
		if err != nil {
			return strings.Join(outputs, "\n"), err
		}

		outputs = append(outputs, out)
	}

	return strings.Join(outputs, "\n"), nil
}
