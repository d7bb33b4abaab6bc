package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/icecake0141/nwrunner/pkg/control"
	"github.com/icecake0141/nwrunner/pkg/models"
	"github.com/icecake0141/nwrunner/pkg/registry"
	"github.com/icecake0141/nwrunner/pkg/statemachine"
)

// runner is a single job's in-flight background execution.
type runner struct {
	ctrl *control.Control
	done chan struct{}
}

func (r *runner) live() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// RunCoordinator ensures at most one active runner goroutine per job id
// (spec.md §4.7), and is the entry point pause/resume/cancel requests go
// through: it owns the mapping from job id to that job's ExecutionControl,
// since the Control value must be shared between the HTTP-facing control
// request and the Engine.Run goroutine actually observing it.
type RunCoordinator struct {
	mu       sync.Mutex
	runners  map[string]*runner
	engine   *Engine
	registry *registry.JobRegistry
}

// NewRunCoordinator builds a coordinator driving e, backed by reg for the
// pause/resume/cancel FSM transitions.
func NewRunCoordinator(e *Engine, reg *registry.JobRegistry) *RunCoordinator {
	return &RunCoordinator{
		runners:  make(map[string]*runner),
		engine:   e,
		registry: reg,
	}
}

// Start launches a background run for jobID if none is already live,
// returning true if it did. The thunk runs the Engine asynchronously;
// RunAsync wires the real Engine.Run call.
func (c *RunCoordinator) Start(jobID string, thunk func(ctx context.Context, ctrl *control.Control)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reapLocked()

	if r, ok := c.runners[jobID]; ok && r.live() {
		return false
	}

	r := &runner{ctrl: control.New(), done: make(chan struct{})}
	c.runners[jobID] = r

	go func() {
		defer close(r.done)
		thunk(context.Background(), r.ctrl)
	}()

	return true
}

// reapLocked drops finished runners so the map doesn't grow unbounded.
// Must be called with c.mu held.
func (c *RunCoordinator) reapLocked() {
	for id, r := range c.runners {
		if !r.live() {
			delete(c.runners, id)
		}
	}
}

// RunAsync starts the engine's Run for jobID in the background using
// runSpec, returning true if a new runner was launched.
func (c *RunCoordinator) RunAsync(jobID string, runSpec models.RunSpec) bool {
	return c.Start(jobID, func(ctx context.Context, ctrl *control.Control) {
		if err := c.engine.Run(ctx, jobID, ctrl, runSpec); err != nil && c.engine.Log != nil {
			c.engine.Log.Error().Str("job_id", jobID).Err(err).Msg("engine run returned an error")
		}
	})
}

// RunSync runs jobID inline and blocks until it reaches a terminal status,
// still subject to the single-active-runner guard.
func (c *RunCoordinator) RunSync(ctx context.Context, jobID string, runSpec models.RunSpec) error {
	ctrl := control.New()

	c.mu.Lock()
	c.reapLocked()

	if r, ok := c.runners[jobID]; ok && r.live() {
		c.mu.Unlock()
		return fmt.Errorf("job %s already has an active runner", jobID)
	}

	r := &runner{ctrl: ctrl, done: make(chan struct{})}
	c.runners[jobID] = r
	c.mu.Unlock()

	defer close(r.done)

	return c.engine.Run(ctx, jobID, ctrl, runSpec)
}

// controlFor returns the live runner's Control for jobID, or nil if no
// runner is currently live for that job.
func (c *RunCoordinator) controlFor(jobID string) *control.Control {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.runners[jobID]
	if !ok || !r.live() {
		return nil
	}

	return r.ctrl
}

// Pause sets the pause gate for jobID's live runner and transitions its
// JobRecord to PAUSED. It is an error to pause a job with no live runner.
func (c *RunCoordinator) Pause(jobID string) (*models.JobRecord, error) {
	ctrl := c.controlFor(jobID)
	if ctrl == nil {
		return nil, fmt.Errorf("%w: job %s has no active runner to pause", models.ErrInvalidTransition, jobID)
	}

	rec, err := c.registry.ApplyEvent(jobID, statemachine.EventPause)
	if err != nil {
		return nil, err
	}

	ctrl.SetPause(true)

	return rec, nil
}

// Resume clears the pause gate for jobID's live runner and transitions its
// JobRecord back to RUNNING.
func (c *RunCoordinator) Resume(jobID string) (*models.JobRecord, error) {
	ctrl := c.controlFor(jobID)
	if ctrl == nil {
		return nil, fmt.Errorf("%w: job %s has no active runner to resume", models.ErrInvalidTransition, jobID)
	}

	rec, err := c.registry.ApplyEvent(jobID, statemachine.EventResume)
	if err != nil {
		return nil, err
	}

	ctrl.SetPause(false)

	return rec, nil
}

// Cancel latches the cancel signal for jobID's live runner, if any, and lets
// the engine observe it and transition the job itself; a job with no live
// runner (e.g. still QUEUED) is cancelled directly through the registry.
func (c *RunCoordinator) Cancel(jobID string) (*models.JobRecord, error) {
	if ctrl := c.controlFor(jobID); ctrl != nil {
		ctrl.Cancel()
		return c.registry.Get(jobID)
	}

	return c.registry.ApplyEvent(jobID, statemachine.EventCancel)
}
