// Package engine implements the ExecutionEngine (spec.md §4.6): the
// canary-first, bounded-fan-out orchestrator that drives a JobRecord from
// RUNNING to a terminal status, publishing ExecutionEvents as it goes.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/icecake0141/nwrunner/pkg/control"
	"github.com/icecake0141/nwrunner/pkg/eventbus"
	"github.com/icecake0141/nwrunner/pkg/logger"
	"github.com/icecake0141/nwrunner/pkg/models"
	"github.com/icecake0141/nwrunner/pkg/registry"
	"github.com/icecake0141/nwrunner/pkg/statemachine"
	"github.com/icecake0141/nwrunner/pkg/worker"
)

// Clock is overridable in tests.
type Clock func() time.Time

// Engine is the ExecutionEngine. It holds no per-job state of its own: all
// durable state lives in the JobRegistry and EventBus it's built from, so a
// single Engine value safely drives any number of jobs (sequentially, one
// job at a time per spec.md's single-active-job guard, but nothing here
// prevents concurrent Run calls for different job ids).
type Engine struct {
	Registry *registry.JobRegistry
	Bus      *eventbus.Bus
	Worker   worker.DeviceWorker
	Log      logger.Logger
	Now      Clock
}

// New builds an Engine from its collaborators.
func New(reg *registry.JobRegistry, bus *eventbus.Bus, w worker.DeviceWorker, log logger.Logger) *Engine {
	return &Engine{Registry: reg, Bus: bus, Worker: w, Log: log, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}

	return time.Now()
}

func (e *Engine) publish(jobID string, typ models.EventType, device, status, message string) {
	e.Bus.Publish(models.ExecutionEvent{
		Type:      typ,
		JobID:     jobID,
		Timestamp: e.now(),
		Device:    device,
		Status:    status,
		Message:   message,
	})
}

func (e *Engine) publishLogs(jobID, device string, logs []string) {
	for _, line := range logs {
		e.publish(jobID, models.EventLog, device, "", line)
	}
}

// mapStatus translates a worker's tagged result status to a DeviceResult
// status (spec.md §4.6 step 2: worker "cancelled" -> CANCELLED, "success" ->
// SUCCESS, otherwise FAILED).
func mapStatus(s worker.ResultStatus) models.DeviceResultStatus {
	switch s {
	case worker.StatusSuccess:
		return models.DeviceSuccess
	case worker.StatusCancelled:
		return models.DeviceCancelled
	default:
		return models.DeviceFailed
	}
}

// effectiveVerifyCmds applies verify_mode (spec.md §3) to a single device:
// none never verifies, canary only verifies the canary, all verifies every
// device that has verify commands in its DeviceParams snapshot.
func effectiveVerifyCmds(rec *models.JobRecord, key string, isCanary bool) []string {
	if rec.VerifyMode == models.VerifyNone {
		return nil
	}

	if rec.VerifyMode == models.VerifyCanary && !isCanary {
		return nil
	}

	return rec.DeviceParams[key].VerifyCmds
}

// applyDeviceResult merges a worker Result into the registry's DeviceResult
// for key, stamping CompletedAt and returning the mapped terminal status.
func (e *Engine) applyDeviceResult(jobID string, rec *models.JobRecord, key string, res worker.Result) models.DeviceResultStatus {
	status := mapStatus(res.Status)
	completedAt := e.now()

	err := e.Registry.UpdateDeviceResult(jobID, key, func(dr *models.DeviceResult) {
		dr.Status = status
		dr.Error = res.Error
		dr.PreOutput = res.PreOutput
		dr.ApplyOutput = res.ApplyOutput
		dr.PostOutput = res.PostOutput
		dr.Diff = res.Diff
		dr.Logs = res.Logs
		dr.LogTrimmed = res.LogTrimmed
		dr.Attempts = res.Attempts
		dr.CompletedAt = &completedAt
	})
	if err != nil && e.Log != nil {
		e.Log.Warn().Str("job_id", jobID).Str("device", key).Err(err).Msg("failed to persist device result")
	}

	e.publishLogs(jobID, key, res.Logs)
	e.publish(jobID, models.EventDeviceStatus, key, string(status), res.Error)

	return status
}

func (e *Engine) markRunning(jobID string, key string) {
	now := e.now()

	_ = e.Registry.UpdateDeviceResult(jobID, key, func(dr *models.DeviceResult) {
		dr.Status = models.DeviceRunning
		dr.StartedAt = &now
	})

	e.publish(jobID, models.EventDeviceStatus, key, string(models.DeviceRunning), "")
}

// markCancelledWithoutRunning marks a not-yet-admitted device CANCELLED. It
// publishes no event: spec.md §8 property 2 requires any terminal
// device_status event to be preceded by exactly one device_status=running,
// and a device that never transitioned to RUNNING gets neither (matching
// original_source/backend_v2/app/application/execution_engine.py, which
// drops pending devices silently on stop-on-error/cancel rather than
// reporting a terminal status for work that never started).
func (e *Engine) markCancelledWithoutRunning(jobID string, key string) {
	now := e.now()

	_ = e.Registry.UpdateDeviceResult(jobID, key, func(dr *models.DeviceResult) {
		dr.Status = models.DeviceCancelled
		dr.CompletedAt = &now
	})
}

// sleepInterruptible sleeps for d or until ctrl observes cancel or ctx ends,
// whichever comes first, polling at control.PausePollInterval granularity so
// cancellation latency stays bounded (spec.md §5).
func sleepInterruptible(ctx context.Context, ctrl *control.Control, d time.Duration) {
	if d <= 0 {
		return
	}

	deadline := time.Now().Add(d)

	for {
		if ctrl != nil && ctrl.Cancelled() {
			return
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}

		step := control.PausePollInterval
		if remaining < step {
			step = remaining
		}

		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Run drives jobID from RUNNING to a terminal status. The caller (typically
// RunCoordinator) is responsible for ensuring at most one Run is active per
// job id at a time.
func (e *Engine) Run(ctx context.Context, jobID string, ctrl *control.Control, runSpec models.RunSpec) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e.Log != nil {
				e.Log.Error().Str("job_id", jobID).Interface("panic", r).Msg("engine run panicked, failing job")
			}

			_ = e.finish(jobID, statemachine.EventFail, models.JobFailed)
			err = fmt.Errorf("%w: %v", models.ErrUnhandledEngineFailure, r)
		}
	}()

	if _, err := e.Registry.ApplyEvent(jobID, statemachine.EventStart); err != nil {
		return err
	}
	e.publish(jobID, models.EventJobStatus, "", string(models.JobRunning), "")

	rec, err := e.Registry.Get(jobID)
	if err != nil {
		return err
	}

	if ctrl.Cancelled() {
		return e.finish(jobID, statemachine.EventCancel, models.JobCancelled)
	}

	if len(rec.DeviceOrder) == 0 {
		return e.finish(jobID, statemachine.EventFail, models.JobFailed)
	}

	canaryKey := rec.DeviceOrder[0]

	status, err := e.runCanary(ctx, jobID, rec, canaryKey, ctrl)
	if err != nil {
		return err
	}

	if status != models.DeviceSuccess {
		terminal := models.JobFailed
		event := statemachine.EventFail
		if status == models.DeviceCancelled {
			terminal = models.JobCancelled
			event = statemachine.EventCancel
		}

		return e.finish(jobID, event, terminal)
	}

	remaining := rec.DeviceOrder[1:]
	if len(remaining) == 0 {
		return e.finish(jobID, statemachine.EventComplete, models.JobCompleted)
	}

	return e.runFanOut(ctx, jobID, rec, remaining, ctrl, runSpec)
}

func (e *Engine) finish(jobID string, event statemachine.Event, fallback models.JobStatus) error {
	rec, err := e.Registry.ApplyEvent(jobID, event)
	status := fallback
	if err == nil {
		status = rec.Status
	} else if e.Log != nil {
		e.Log.Warn().Str("job_id", jobID).Err(err).Msg("final FSM transition rejected, reporting fallback status")
	}

	e.publish(jobID, models.EventJobComplete, "", string(status), "")

	return nil
}

func (e *Engine) runCanary(ctx context.Context, jobID string, rec *models.JobRecord, canaryKey string, ctrl *control.Control) (models.DeviceResultStatus, error) {
	e.markRunning(jobID, canaryKey)

	if ctrl.WaitWhilePaused(ctx) {
		e.applyDeviceResult(jobID, rec, canaryKey, worker.Result{Status: worker.StatusCancelled, Error: worker.ErrCancelledMsg})
		return models.DeviceCancelled, nil
	}

	params := rec.DeviceParams[canaryKey]

	req := worker.Request{
		Device:                 params.DeviceTarget,
		Params:                 params,
		Commands:               rec.Commands,
		VerifyCmds:             effectiveVerifyCmds(rec, canaryKey, true),
		IsCanary:               true,
		RetryOnConnectionError: false,
		Control:                ctrl,
	}

	res := e.Worker.Run(ctx, req)
	res.Attempts = 1

	status := e.applyDeviceResult(jobID, rec, canaryKey, res)

	return status, nil
}

type deviceOutcome struct {
	key    string
	result worker.Result
}

func (e *Engine) runFanOut(ctx context.Context, jobID string, rec *models.JobRecord, pending []string, ctrl *control.Control, runSpec models.RunSpec) error {
	concurrency := runSpec.ConcurrencyLimit
	if concurrency < 1 {
		concurrency = 1
	}

	doneCh := make(chan deviceOutcome, len(pending))
	inFlight := make(map[string]bool)

	pendingIdx := 0
	pendingCancelled := false
	anyFailed := false
	workerCancelledJob := false

	admit := func(key string) {
		e.markRunning(jobID, key)
		inFlight[key] = true

		go func() {
			res := e.runDeviceWithRetry(ctx, rec, key, ctrl, runSpec)
			doneCh <- deviceOutcome{key: key, result: res}
		}()
	}

	cancelPending := func() {
		for ; pendingIdx < len(pending); pendingIdx++ {
			e.markCancelledWithoutRunning(jobID, pending[pendingIdx])
		}
	}

	for {
		// Non-blocking drain: keep in-flight bookkeeping accurate even
		// while the loop is parked in the pause branch below.
		drained := true
		for drained {
			select {
			case out := <-doneCh:
				e.handleFanOutOutcome(jobID, rec, out, inFlight, &anyFailed, &workerCancelledJob, ctrl)
			default:
				drained = false
			}
		}

		switch {
		case ctrl.Cancelled() || workerCancelledJob:
			if !pendingCancelled {
				cancelPending()
				pendingCancelled = true
			}
		case ctrl.Paused():
			sleepInterruptible(ctx, ctrl, control.PausePollInterval)
			continue
		case runSpec.StopOnError && anyFailed:
			if !pendingCancelled {
				cancelPending()
				pendingCancelled = true
			}
		default:
			for len(inFlight) < concurrency && pendingIdx < len(pending) {
				key := pending[pendingIdx]
				pendingIdx++
				admit(key)

				if runSpec.StaggerDelay > 0 && (len(inFlight) < concurrency && pendingIdx < len(pending)) {
					sleepInterruptible(ctx, ctrl, runSpec.StaggerDelay)
				}
			}
		}

		if len(inFlight) == 0 && pendingIdx >= len(pending) {
			break
		}

		if len(inFlight) > 0 {
			out := <-doneCh
			e.handleFanOutOutcome(jobID, rec, out, inFlight, &anyFailed, &workerCancelledJob, ctrl)
		}
	}

	switch {
	case ctrl.Cancelled() || workerCancelledJob:
		return e.finish(jobID, statemachine.EventCancel, models.JobCancelled)
	case anyFailed:
		return e.finish(jobID, statemachine.EventFail, models.JobFailed)
	default:
		return e.finish(jobID, statemachine.EventComplete, models.JobCompleted)
	}
}

func (e *Engine) handleFanOutOutcome(jobID string, rec *models.JobRecord, out deviceOutcome, inFlight map[string]bool, anyFailed, workerCancelledJob *bool, ctrl *control.Control) {
	delete(inFlight, out.key)

	status := e.applyDeviceResult(jobID, rec, out.key, out.result)

	switch status {
	case models.DeviceFailed:
		*anyFailed = true
	case models.DeviceCancelled:
		if out.result.Status == worker.StatusCancelled && !ctrl.Cancelled() {
			// A worker-observed cancel not already latched by the caller
			// still triggers job-wide cancellation (spec.md §4.6: "a
			// worker-returned CANCELLED result triggers immediate job
			// cancellation").
			*workerCancelledJob = true
			ctrl.Cancel()
		}
	}
}

// runDeviceWithRetry invokes the worker for a non-canary device, retrying up
// to run_spec.non_canary_retry_limit times on a FAILED outcome with a fixed
// backoff between attempts (spec.md §8 scenario 3).
func (e *Engine) runDeviceWithRetry(ctx context.Context, rec *models.JobRecord, key string, ctrl *control.Control, runSpec models.RunSpec) worker.Result {
	params := rec.DeviceParams[key]

	var res worker.Result
	attempts := 0

	for {
		attempts++

		req := worker.Request{
			Device:                 params.DeviceTarget,
			Params:                 params,
			Commands:               rec.Commands,
			VerifyCmds:             effectiveVerifyCmds(rec, key, false),
			IsCanary:               false,
			RetryOnConnectionError: true,
			Control:                ctrl,
		}

		res = e.Worker.Run(ctx, req)
		res.Attempts = attempts

		if res.Status != worker.StatusFailed {
			return res
		}

		retriesUsed := attempts - 1
		if retriesUsed >= runSpec.NonCanaryRetryLimit {
			return res
		}

		if ctrl.Cancelled() {
			return res
		}

		backoff := time.Duration(runSpec.RetryBackoffSeconds * float64(time.Second))
		sleepInterruptible(ctx, ctrl, backoff)

		if ctrl.Cancelled() {
			res.Status = worker.StatusCancelled
			res.Error = worker.ErrCancelledMsg
			return res
		}
	}
}
