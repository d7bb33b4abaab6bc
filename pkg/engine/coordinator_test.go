package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icecake0141/nwrunner/pkg/control"
	"github.com/icecake0141/nwrunner/pkg/eventbus"
	"github.com/icecake0141/nwrunner/pkg/logger"
	"github.com/icecake0141/nwrunner/pkg/models"
	"github.com/icecake0141/nwrunner/pkg/registry"
	"github.com/icecake0141/nwrunner/pkg/worker"
)

func TestRunCoordinator_RefusesSecondConcurrentRun(t *testing.T) {
	reg, bus := setup(t, "10.0.0.1", "10.0.0.2")
	rec := createJob(t, reg, "10.0.0.1", []string{"10.0.0.1", "10.0.0.2"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(nil, 200*time.Millisecond)
	e := New(reg, bus, w, logger.Nop())
	coord := NewRunCoordinator(e, reg)

	started := coord.RunAsync(rec.JobID, models.RunSpec{ConcurrencyLimit: 1})
	require.True(t, started)

	startedAgain := coord.RunAsync(rec.JobID, models.RunSpec{ConcurrencyLimit: 1})
	assert.False(t, startedAgain)
}

func TestRunCoordinator_PauseResumeCancel(t *testing.T) {
	reg, bus := setup(t, "10.0.0.1", "10.0.0.2")
	rec := createJob(t, reg, "10.0.0.1", []string{"10.0.0.1", "10.0.0.2"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(nil, 300*time.Millisecond)
	e := New(reg, bus, w, logger.Nop())
	coord := NewRunCoordinator(e, reg)

	require.True(t, coord.RunAsync(rec.JobID, models.RunSpec{ConcurrencyLimit: 1}))

	time.Sleep(50 * time.Millisecond)

	_, err := coord.Pause(rec.JobID)
	require.NoError(t, err)

	paused, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPaused, paused.Status)

	_, err = coord.Resume(rec.JobID)
	require.NoError(t, err)

	running, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, running.Status)

	_, err = coord.Cancel(rec.JobID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := reg.Get(rec.JobID)
		return err == nil && rec.Status.IsTerminal()
	}, 3*time.Second, 10*time.Millisecond)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, final.Status)
}

func TestRunCoordinator_CancelQueuedJobWithNoRunner(t *testing.T) {
	reg, bus := setup(t, "10.0.0.1")
	rec := createJob(t, reg, "10.0.0.1", []string{"10.0.0.1"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(nil, 0)
	e := New(reg, bus, w, logger.Nop())
	coord := NewRunCoordinator(e, reg)

	final, err := coord.Cancel(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, final.Status)
}

func TestRunCoordinator_RunSyncBlocksUntilTerminal(t *testing.T) {
	reg, bus := setup(t, "10.0.0.1")
	rec := createJob(t, reg, "10.0.0.1", []string{"10.0.0.1"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(nil, 0)
	e := New(reg, bus, w, logger.Nop())
	coord := NewRunCoordinator(e, reg)

	err := coord.RunSync(context.Background(), rec.JobID, models.RunSpec{ConcurrencyLimit: 1})
	require.NoError(t, err)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
}
