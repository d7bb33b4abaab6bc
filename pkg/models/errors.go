package models

import "errors"

// Error taxonomy (spec.md §7). ValidationError and ActiveJobConflict never
// reach the engine; InvalidTransition is surfaced to the client unless the
// engine is finalizing an already-terminal job, in which case it is a noop.
var (
	// ErrValidation wraps malformed operator input (bad CSV row, empty
	// command block, unknown verify mode, out-of-range numeric field).
	ErrValidation = errors.New("validation error")

	// ErrActiveJobConflict is returned when job creation is attempted
	// while another job is QUEUED/RUNNING/PAUSED.
	ErrActiveJobConflict = errors.New("another job is already active")

	// ErrInvalidTransition is returned by the JobStateMachine for any
	// (status, event) pair not in the transition table.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrCanaryNotInTargets is returned by JobRegistry.Create when the
	// canary key is absent from the requested targets; no job is created.
	ErrCanaryNotInTargets = errors.New("canary device is not in the target set")

	// ErrDeviceConnectionFailure, ErrDeviceCommandError and
	// ErrDeviceTimeout are reported per device as DeviceResult.Error; the
	// engine does not distinguish between them beyond propagation.
	ErrDeviceConnectionFailure = errors.New("device connection failure")
	ErrDeviceCommandError      = errors.New("device command error")
	ErrDeviceTimeout           = errors.New("device timeout")

	// ErrWorkerCancelled is the sentinel the DeviceWorker contract uses
	// for DeviceExecutionResult.Status == "cancelled"; it is treated as a
	// cancel signal even if control.Cancel was not observed beforehand.
	ErrWorkerCancelled = errors.New("cancelled")

	// ErrUnhandledEngineFailure marks the single place the engine
	// recovers a programmer error and still emits a terminal event.
	ErrUnhandledEngineFailure = errors.New("unhandled engine failure")

	// ErrJobNotFound is returned by JobRegistry.Get for an unknown id.
	ErrJobNotFound = errors.New("job not found")

	// ErrDeviceNotInInventory is returned at job creation when a
	// requested target is absent from the current DeviceInventory.
	ErrDeviceNotInInventory = errors.New("device not present in inventory")

	// ErrDisruptiveCommand is returned by the status_command guard when
	// a read-only exec request contains a disruptive pattern.
	ErrDisruptiveCommand = errors.New("disruptive command rejected in status_command mode")
)
