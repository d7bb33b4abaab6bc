package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

// parseTarget splits "host:port" (port optional, default 22) into the wire
// DTO, mirroring models.DeviceTarget.DeviceKey's inverse.
func parseTarget(raw string) (deviceTargetPayload, error) {
	host, portStr, found := strings.Cut(raw, ":")
	if !found {
		return deviceTargetPayload{Host: host, Port: 22}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return deviceTargetPayload{}, fmt.Errorf("invalid target %q: port must be an integer", raw)
	}

	return deviceTargetPayload{Host: host, Port: port}, nil
}

func newCreateCmd(opts *cliOptions) *cobra.Command {
	var (
		targets     []string
		canary      string
		commands    []string
		verifyMode  string
		verifyCmds  []string
		concurrency int
		stagger     float64
		stopOnError bool
		jobName     string
		creator     string
		copyID      bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job from a target list and command block",
		RunE: func(cmd *cobra.Command, args []string) error {
			if canary == "" && len(targets) > 0 {
				canary = targets[0]
			}

			targetDTOs := make([]deviceTargetPayload, 0, len(targets))
			for _, t := range targets {
				dto, err := parseTarget(t)
				if err != nil {
					return err
				}

				targetDTOs = append(targetDTOs, dto)
			}

			canaryDTO, err := parseTarget(canary)
			if err != nil {
				return err
			}

			ref, err := opts.client().createJob(context.Background(), createJobPayload{
				JobName:             jobName,
				Creator:             creator,
				Targets:             targetDTOs,
				CanaryTarget:        canaryDTO,
				Commands:            commands,
				VerifyMode:          verifyMode,
				VerifyCmds:          verifyCmds,
				ConcurrencyLimit:    concurrency,
				StaggerDelaySeconds: stagger,
				StopOnError:         stopOnError,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job_id=%s status=%s\n", ref.JobID, ref.Status)

			if copyID {
				if err := clipboard.WriteAll(ref.JobID); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not copy job id to clipboard: %v\n", err)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&targets, "target", nil, "device target host:port (repeatable); first is the canary unless --canary is set")
	cmd.Flags().StringVar(&canary, "canary", "", "canary device host:port (defaults to the first --target)")
	cmd.Flags().StringSliceVar(&commands, "command", nil, "apply command (repeatable, in order)")
	cmd.Flags().StringVar(&verifyMode, "verify-mode", "none", "none|canary|all")
	cmd.Flags().StringSliceVar(&verifyCmds, "verify-cmd", nil, "verify command override (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "concurrency_limit recorded on the job; each run uses its own run --concurrency")
	cmd.Flags().Float64Var(&stagger, "stagger", 0, "stagger_delay in seconds recorded on the job; each run uses its own run --stagger")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", true, "stop_on_error recorded on the job; each run uses its own run --stop-on-error")
	cmd.Flags().StringVar(&jobName, "name", "", "optional job_name")
	cmd.Flags().StringVar(&creator, "creator", "", "optional creator")
	cmd.Flags().BoolVar(&copyID, "copy-id", false, "copy the new job id to the clipboard")

	return cmd
}

func newRunCmd(opts *cliOptions) *cobra.Command {
	var (
		concurrency  int
		stagger      float64
		stopOnError  bool
		retryLimit   int
		retryBackoff float64
		async        bool
	)

	cmd := &cobra.Command{
		Use:   "run <job-id>",
		Short: "Run a created job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := opts.client().runJob(context.Background(), args[0], runJobPayload{
				ConcurrencyLimit:    concurrency,
				StaggerDelaySeconds: stagger,
				StopOnError:         stopOnError,
				NonCanaryRetryLimit: retryLimit,
				RetryBackoffSeconds: retryBackoff,
				Async:               async,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s finished with status %s\n", rec.JobID, rec.Status)

			if !async {
				os.Exit(exitCodeForStatus(rec.Status))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "concurrency_limit for this run")
	cmd.Flags().Float64Var(&stagger, "stagger", 0, "stagger_delay in seconds")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", true, "stop admitting new devices after the first failure")
	cmd.Flags().IntVar(&retryLimit, "retry-limit", 0, "non_canary_retry_limit, 0-3")
	cmd.Flags().Float64Var(&retryBackoff, "retry-backoff", 0, "retry_backoff_seconds")
	cmd.Flags().BoolVar(&async, "async", false, "return immediately; run continues in the background")

	return cmd
}

func newPauseCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <job-id>",
		Short: "Pause a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := opts.client().pause(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s status=%s\n", rec.JobID, rec.Status)

			return nil
		},
	}
}

func newResumeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Resume a paused job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := opts.client().resume(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s status=%s\n", rec.JobID, rec.Status)

			return nil
		},
	}
}

func newCancelCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := opts.client().cancel(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s status=%s\n", rec.JobID, rec.Status)

			return nil
		},
	}
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print a job's current record as formatted text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := opts.client().getJob(context.Background(), args[0])
			if err != nil {
				return err
			}

			printJobTable(cmd.OutOrStdout(), rec)

			return nil
		},
	}
}
