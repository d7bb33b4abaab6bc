package worker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimulatedOutcome is the scripted result a SimulatedDeviceWorker returns
// for a given device key on a given attempt.
type SimulatedOutcome struct {
	Status    ResultStatus
	Error     string
	PreOutput string
	Output    string // apply_output
	PostOutput string
}

// SimulatedDeviceWorker is a deterministic DeviceWorker keyed by device,
// used in tests and in the "simulated" worker mode toggle (spec.md §6). Each
// device key maps to a queue of outcomes consumed in order across repeated
// Run calls (one per attempt); the last outcome in a queue repeats once
// exhausted.
type SimulatedDeviceWorker struct {
	// Outcomes maps a device key to the sequence of outcomes it should
	// produce, in call order.
	Outcomes map[string][]SimulatedOutcome
	// Delay is applied before returning, simulating network latency; it
	// observes cancellation via req.Control, but not pause.
	Delay time.Duration

	// callsMu guards calls: Run is invoked concurrently for distinct device
	// keys during fan-out (spec.md §5: "no shared mutable state exists
	// between concurrent device workers" still requires this worker's own
	// bookkeeping to be safe under that concurrency).
	callsMu sync.Mutex
	calls   map[string]int
}

// NewSimulatedDeviceWorker builds a worker from a fixed outcome table.
func NewSimulatedDeviceWorker(outcomes map[string][]SimulatedOutcome, delay time.Duration) *SimulatedDeviceWorker {
	return &SimulatedDeviceWorker{Outcomes: outcomes, Delay: delay, calls: make(map[string]int)}
}

// nextAttemptIndex atomically returns and increments the call count for key.
func (w *SimulatedDeviceWorker) nextAttemptIndex(key string) int {
	w.callsMu.Lock()
	defer w.callsMu.Unlock()

	if w.calls == nil {
		w.calls = make(map[string]int)
	}

	idx := w.calls[key]
	w.calls[key] = idx + 1

	return idx
}

func (w *SimulatedDeviceWorker) Run(ctx context.Context, req Request) Result {
	key := req.Device.DeviceKey()

	var logs []string
	add := func(msg string) { logs = append(logs, msg) }

	if req.Control != nil && req.Control.Cancelled() {
		add("cancelled before connect")
		return Result{Status: StatusCancelled, Error: "cancelled", Logs: logs}
	}

	add(fmt.Sprintf("connecting to %s...", key))

	if w.Delay > 0 {
		if w.sleepOrCancel(ctx, req, w.Delay) {
			add("cancelled during connect")
			return Result{Status: StatusCancelled, Error: "cancelled", Logs: logs}
		}
	}

	add("connected")

	attemptIdx := w.nextAttemptIndex(key)

	queue := w.Outcomes[key]

	var outcome SimulatedOutcome
	switch {
	case len(queue) == 0:
		outcome = SimulatedOutcome{Status: StatusSuccess, Output: "ok"}
	case attemptIdx < len(queue):
		outcome = queue[attemptIdx]
	default:
		outcome = queue[len(queue)-1]
	}

	if req.Control != nil && req.Control.Cancelled() {
		add("cancelled before verify")
		return Result{Status: StatusCancelled, Error: "cancelled", Logs: logs, Attempts: attemptIdx + 1}
	}

	var pre *string
	if len(req.VerifyCmds) > 0 {
		add("running pre-verification commands")
		pre = strPtr(outcome.PreOutput)
	}

	add("applying configuration commands")

	for _, cmd := range req.Commands {
		add("  > " + cmd)
	}

	apply := outcome.Output

	if req.Control != nil && req.Control.Cancelled() {
		add("cancelled after apply")
		return Result{Status: StatusCancelled, Error: "cancelled", Logs: logs, ApplyOutput: strPtr(apply), Attempts: attemptIdx + 1}
	}

	if pattern := detectCommandError(apply); pattern != "" {
		add("ERROR: command error detected: " + pattern)
		return finalize(Result{
			Status:      StatusFailed,
			Error:       "Command error detected: " + pattern,
			ApplyOutput: strPtr(apply),
			Attempts:    attemptIdx + 1,
		}, logs)
	}

	var post *string
	var diff *string

	if len(req.VerifyCmds) > 0 {
		add("running post-verification commands")
		postVal := outcome.PostOutput
		post = strPtr(postVal)

		if pre != nil && post != nil {
			d := UnifiedDiff(*pre, *post)
			diff = &d
		}
	}

	add("disconnected")

	if outcome.Status == "" {
		outcome.Status = StatusSuccess
	}

	res := Result{
		Status:      outcome.Status,
		Error:       outcome.Error,
		PreOutput:   pre,
		ApplyOutput: strPtr(apply),
		PostOutput:  post,
		Diff:        diff,
		Attempts:    attemptIdx + 1,
	}

	return finalize(res, logs)
}

// sleepOrCancel sleeps for d, returning true early if cancel is observed.
func (w *SimulatedDeviceWorker) sleepOrCancel(ctx context.Context, req Request, d time.Duration) bool {
	if req.Control == nil {
		select {
		case <-time.After(d):
			return false
		case <-ctx.Done():
			return true
		}
	}

	const poll = 20 * time.Millisecond

	remaining := d
	for remaining > 0 {
		if req.Control.Cancelled() {
			return true
		}

		step := poll
		if remaining < step {
			step = remaining
		}

		select {
		case <-time.After(step):
		case <-ctx.Done():
			return true
		}

		remaining -= step
	}

	return req.Control.Cancelled()
}

func finalize(res Result, logs []string) Result {
	trimmed, wasTrimmed := TrimLog(logs, MaxLogBytes)
	res.Logs = trimmed
	res.LogTrimmed = wasTrimmed

	return res
}

func strPtr(s string) *string {
	return &s
}
