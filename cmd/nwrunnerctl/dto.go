package main

import "time"

// These DTOs mirror the JSON shapes pkg/httpapi serves; nwrunnerctl decodes
// into its own copies instead of importing pkg/models so the CLI binary
// only depends on the wire contract, not the server's internal types.

type deviceTargetPayload struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type createJobPayload struct {
	JobName             string                 `json:"job_name,omitempty"`
	Creator             string                 `json:"creator,omitempty"`
	Targets             []deviceTargetPayload  `json:"targets"`
	CanaryTarget        deviceTargetPayload    `json:"canary_target"`
	Commands            []string               `json:"commands"`
	VerifyMode          string                 `json:"verify_mode,omitempty"`
	VerifyCmds          []string               `json:"verify_cmds,omitempty"`
	ConcurrencyLimit    int                    `json:"concurrency_limit,omitempty"`
	StaggerDelaySeconds float64                `json:"stagger_delay_seconds,omitempty"`
	StopOnError         bool                   `json:"stop_on_error,omitempty"`
}

type runJobPayload struct {
	ConcurrencyLimit    int     `json:"concurrency_limit,omitempty"`
	StaggerDelaySeconds float64 `json:"stagger_delay_seconds,omitempty"`
	StopOnError         bool    `json:"stop_on_error,omitempty"`
	NonCanaryRetryLimit int     `json:"non_canary_retry_limit,omitempty"`
	RetryBackoffSeconds float64 `json:"retry_backoff_seconds,omitempty"`
	Async               bool    `json:"async,omitempty"`
}

type jobRefDTO struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type deviceResultDTO struct {
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	PreOutput   *string    `json:"pre_output,omitempty"`
	ApplyOutput *string    `json:"apply_output,omitempty"`
	PostOutput  *string    `json:"post_output,omitempty"`
	Diff        *string    `json:"diff,omitempty"`
	Logs        []string   `json:"logs"`
	LogTrimmed  bool       `json:"log_trimmed"`
	Attempts    int        `json:"attempts"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type jobRecordDTO struct {
	JobID         string                      `json:"job_id"`
	JobName       string                      `json:"job_name,omitempty"`
	Status        string                      `json:"status"`
	CreatedAt     time.Time                   `json:"created_at"`
	StartedAt     *time.Time                  `json:"started_at,omitempty"`
	CompletedAt   *time.Time                  `json:"completed_at,omitempty"`
	DeviceOrder   []string                    `json:"device_order"`
	DeviceResults map[string]*deviceResultDTO `json:"device_results"`
}

type eventDTO struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// exitCodeForStatus maps a terminal job status to the CLI exit code named
// in spec.md §6: COMPLETED -> 0, FAILED -> 1, CANCELLED -> 130.
func exitCodeForStatus(status string) int {
	switch status {
	case "completed":
		return 0
	case "cancelled":
		return 130
	default:
		return 1
	}
}
