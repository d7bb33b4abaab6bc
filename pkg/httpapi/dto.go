package httpapi

import (
	"time"

	"github.com/icecake0141/nwrunner/pkg/models"
)

// deviceTargetDTO is the wire shape of models.DeviceTarget.
type deviceTargetDTO struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (d deviceTargetDTO) toModel() models.DeviceTarget {
	port := d.Port
	if port == 0 {
		port = 22
	}

	return models.DeviceTarget{Host: d.Host, Port: port}
}

// createJobRequest is the request body for POST /jobs.
type createJobRequest struct {
	JobName             string            `json:"job_name"`
	Creator             string            `json:"creator"`
	Targets             []deviceTargetDTO `json:"targets"`
	CanaryTarget        deviceTargetDTO   `json:"canary_target"`
	Commands            []string          `json:"commands"`
	VerifyMode          string            `json:"verify_mode"`
	VerifyCmds          []string          `json:"verify_cmds"`
	ConcurrencyLimit    int               `json:"concurrency_limit"`
	StaggerDelaySeconds float64           `json:"stagger_delay_seconds"`
	StopOnError         bool              `json:"stop_on_error"`
}

func (req createJobRequest) toJobCreate() models.JobCreate {
	targets := make([]models.DeviceTarget, len(req.Targets))
	for i, t := range req.Targets {
		targets[i] = t.toModel()
	}

	return models.JobCreate{
		JobName:          req.JobName,
		Creator:          req.Creator,
		Targets:          targets,
		CanaryTarget:     req.CanaryTarget.toModel(),
		Commands:         req.Commands,
		VerifyMode:       models.VerifyMode(req.VerifyMode),
		VerifyCmds:       req.VerifyCmds,
		ConcurrencyLimit: req.ConcurrencyLimit,
		StaggerDelay:     secondsToDuration(req.StaggerDelaySeconds),
		StopOnError:      req.StopOnError,
	}
}

// runJobRequest is the request body for POST /jobs/{id}/run.
type runJobRequest struct {
	ConcurrencyLimit    int     `json:"concurrency_limit"`
	StaggerDelaySeconds float64 `json:"stagger_delay_seconds"`
	StopOnError         bool    `json:"stop_on_error"`
	NonCanaryRetryLimit int     `json:"non_canary_retry_limit"`
	RetryBackoffSeconds float64 `json:"retry_backoff_seconds"`
	Async               bool    `json:"async"`
}

func (req runJobRequest) toRunSpec() models.RunSpec {
	return models.RunSpec{
		ConcurrencyLimit:    req.ConcurrencyLimit,
		StaggerDelay:        secondsToDuration(req.StaggerDelaySeconds),
		StopOnError:         req.StopOnError,
		NonCanaryRetryLimit: req.NonCanaryRetryLimit,
		RetryBackoffSeconds: req.RetryBackoffSeconds,
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// statusCommandRequest is the request body for POST /devices/status_command.
type statusCommandRequest struct {
	Device   deviceTargetDTO `json:"device"`
	Commands []string        `json:"commands"`
}

// errorResponse is the JSON body for any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}
