package models

import "time"

// JobStatus is the lifecycle status of a JobRecord (spec.md §4.1).
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status has no further lifecycle event.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// VerifyMode controls which devices run verify_cmds before/after apply.
type VerifyMode string

const (
	VerifyNone   VerifyMode = "none"
	VerifyCanary VerifyMode = "canary"
	VerifyAll    VerifyMode = "all"
)

// DeviceResultStatus is the per-device outcome status.
type DeviceResultStatus string

const (
	DeviceQueued    DeviceResultStatus = "queued"
	DeviceRunning   DeviceResultStatus = "running"
	DeviceSuccess   DeviceResultStatus = "success"
	DeviceFailed    DeviceResultStatus = "failed"
	DeviceCancelled DeviceResultStatus = "cancelled"
)

// IsTerminal reports whether the device result status is final.
func (s DeviceResultStatus) IsTerminal() bool {
	return s == DeviceSuccess || s == DeviceFailed || s == DeviceCancelled
}

// DeviceResult is the per-device outcome captured on a JobRecord. Terminal
// status is set exactly once (spec.md §3 invariant).
type DeviceResult struct {
	Status      DeviceResultStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
	PreOutput   *string            `json:"pre_output,omitempty"`
	ApplyOutput *string            `json:"apply_output,omitempty"`
	PostOutput  *string            `json:"post_output,omitempty"`
	Diff        *string            `json:"diff,omitempty"`
	Logs        []string           `json:"logs"`
	LogTrimmed  bool               `json:"log_trimmed"`
	Attempts    int                `json:"attempts"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// JobCreate is the input to JobRegistry.Create.
type JobCreate struct {
	JobName          string
	Creator          string
	Targets          []DeviceTarget
	CanaryTarget     DeviceTarget
	Commands         []string
	VerifyMode       VerifyMode
	VerifyCmds       []string // override; empty means "use each device's own verify_cmds"
	ConcurrencyLimit int
	StaggerDelay     time.Duration
	StopOnError      bool
}

// RunSpec configures a single run of an already-created job (spec.md §4.6).
type RunSpec struct {
	ConcurrencyLimit    int
	StaggerDelay        time.Duration
	StopOnError         bool
	NonCanaryRetryLimit int // [0,3]
	RetryBackoffSeconds float64
}

// JobRecord is the aggregate described in spec.md §3.
type JobRecord struct {
	JobID            string                   `json:"job_id"`
	JobName          string                   `json:"job_name,omitempty"`
	Creator          string                   `json:"creator,omitempty"`
	Status           JobStatus                `json:"status"`
	CreatedAt        time.Time                `json:"created_at"`
	StartedAt        *time.Time               `json:"started_at,omitempty"`
	CompletedAt      *time.Time               `json:"completed_at,omitempty"`
	Commands         []string                 `json:"commands"`
	VerifyMode       VerifyMode               `json:"verify_mode"`
	VerifyCmds       []string                 `json:"verify_cmds,omitempty"`
	ConcurrencyLimit int                      `json:"concurrency_limit"`
	StaggerDelay     time.Duration            `json:"stagger_delay"`
	StopOnError      bool                     `json:"stop_on_error"`
	CanaryTarget     DeviceTarget             `json:"canary_target"`
	DeviceOrder      []string                 `json:"device_order"` // device keys in original target order, canary first
	DeviceResults    map[string]*DeviceResult `json:"device_results"`
	DeviceParams     map[string]DeviceParams  `json:"device_params"`
}

// Clone returns a deep-enough copy of the record suitable for returning to a
// caller without risking mutation of registry-owned state.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}

	out := *j
	out.Commands = append([]string(nil), j.Commands...)
	out.VerifyCmds = append([]string(nil), j.VerifyCmds...)
	out.DeviceOrder = append([]string(nil), j.DeviceOrder...)

	out.DeviceResults = make(map[string]*DeviceResult, len(j.DeviceResults))
	for k, v := range j.DeviceResults {
		cp := *v
		cp.Logs = append([]string(nil), v.Logs...)
		out.DeviceResults[k] = &cp
	}

	out.DeviceParams = make(map[string]DeviceParams, len(j.DeviceParams))
	for k, v := range j.DeviceParams {
		out.DeviceParams[k] = v
	}

	return &out
}
