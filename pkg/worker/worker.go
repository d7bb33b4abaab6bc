// Package worker implements the DeviceWorker capability contract from
// spec.md §4.5: a pluggable per-device command runner the engine drives
// without knowing whether it talks to a real SSH session or a deterministic
// simulator.
package worker

import (
	"context"

	"github.com/icecake0141/nwrunner/pkg/control"
	"github.com/icecake0141/nwrunner/pkg/models"
)

// ResultStatus is the tagged outcome a DeviceWorker returns. Exceptions from
// the underlying transport are translated to this at the worker boundary
// (spec.md §9: exception-driven control flow in workers is re-architected
// as tagged results).
type ResultStatus string

const (
	StatusSuccess   ResultStatus = "success"
	StatusFailed    ResultStatus = "failed"
	StatusCancelled ResultStatus = "cancelled"
)

// MaxLogBytes bounds the total text of DeviceExecutionResult.Logs, keeping
// the earliest content (spec.md §4.5 point 6).
const MaxLogBytes = 1 << 20 // 1 MiB

// Result is what Run returns.
type Result struct {
	Status      ResultStatus
	Error       string
	PreOutput   *string
	ApplyOutput *string
	PostOutput  *string
	Diff        *string
	Logs        []string
	LogTrimmed  bool
	Attempts    int
}

// DeviceWorker is the capability the engine drives. Two implementations
// exist: SSHDeviceWorker (real) and SimulatedDeviceWorker (deterministic,
// for tests).
type DeviceWorker interface {
	Run(ctx context.Context, req Request) Result
}

// Request is the full input to a single device run (spec.md §4.5 contract).
type Request struct {
	Device                 models.DeviceTarget
	Params                 models.DeviceParams
	Commands               []string
	VerifyCmds             []string
	IsCanary               bool
	RetryOnConnectionError bool
	Control                *control.Control
}
