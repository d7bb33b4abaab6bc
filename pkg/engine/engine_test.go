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

func target(host string) models.DeviceTarget {
	return models.DeviceTarget{Host: host, Port: 22}
}

func setup(t *testing.T, hosts ...string) (*registry.JobRegistry, *eventbus.Bus) {
	t.Helper()

	inv := registry.NewDeviceInventory()

	profiles := make([]models.DeviceProfile, 0, len(hosts))
	for _, h := range hosts {
		profiles = append(profiles, models.DeviceProfile{DeviceTarget: target(h), DeviceType: "cisco_ios"})
	}
	inv.Replace(profiles)

	reg := registry.New(inv, 50)
	bus := eventbus.New(logger.Nop(), time.Second)

	return reg, bus
}

func createJob(t *testing.T, reg *registry.JobRegistry, canary string, hosts []string, opts models.JobCreate) *models.JobRecord {
	t.Helper()

	targets := make([]models.DeviceTarget, 0, len(hosts))
	for _, h := range hosts {
		targets = append(targets, target(h))
	}

	opts.Targets = targets
	opts.CanaryTarget = target(canary)
	if opts.Commands == nil {
		opts.Commands = []string{"conf t"}
	}

	rec, err := reg.Create(opts)
	require.NoError(t, err)

	return rec
}

func TestEngine_HappyPathTwoDevices(t *testing.T) {
	reg, bus := setup(t, "10.1.0.1", "10.1.0.2")
	rec := createJob(t, reg, "10.1.0.1", []string{"10.1.0.1", "10.1.0.2"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(nil, 0)
	e := New(reg, bus, w, logger.Nop())

	err := e.Run(context.Background(), rec.JobID, control.New(), models.RunSpec{
		ConcurrencyLimit: 2, StopOnError: true,
	})
	require.NoError(t, err)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, models.DeviceSuccess, final.DeviceResults["10.1.0.1:22"].Status)
	assert.Equal(t, models.DeviceSuccess, final.DeviceResults["10.1.0.2:22"].Status)

	events := bus.List(rec.JobID, 0)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventJobComplete, events[len(events)-1].Type)
	assert.Equal(t, string(models.JobCompleted), events[len(events)-1].Status)
}

func TestEngine_CanaryFailureAborts(t *testing.T) {
	reg, bus := setup(t, "10.0.0.1", "10.0.0.2")
	rec := createJob(t, reg, "10.0.0.1", []string{"10.0.0.1", "10.0.0.2"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(map[string][]worker.SimulatedOutcome{
		"10.0.0.1:22": {{Status: worker.StatusFailed, Error: "canary down"}},
	}, 0)
	e := New(reg, bus, w, logger.Nop())

	err := e.Run(context.Background(), rec.JobID, control.New(), models.RunSpec{ConcurrencyLimit: 2, StopOnError: true})
	require.NoError(t, err)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Equal(t, models.DeviceFailed, final.DeviceResults["10.0.0.1:22"].Status)
	// the non-canary device was never touched by the engine
	assert.Equal(t, models.DeviceQueued, final.DeviceResults["10.0.0.2:22"].Status)
}

func TestEngine_NonCanaryRetryThenSucceeds(t *testing.T) {
	reg, bus := setup(t, "10.0.1.1", "10.0.1.2")
	rec := createJob(t, reg, "10.0.1.1", []string{"10.0.1.1", "10.0.1.2"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(map[string][]worker.SimulatedOutcome{
		"10.0.1.2:22": {
			{Status: worker.StatusFailed, Error: "flaky"},
			{Status: worker.StatusSuccess, Output: "ok"},
		},
	}, 0)
	e := New(reg, bus, w, logger.Nop())

	err := e.Run(context.Background(), rec.JobID, control.New(), models.RunSpec{
		ConcurrencyLimit: 1, NonCanaryRetryLimit: 1, RetryBackoffSeconds: 0,
	})
	require.NoError(t, err)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, models.DeviceSuccess, final.DeviceResults["10.0.1.2:22"].Status)
	assert.Equal(t, 2, final.DeviceResults["10.0.1.2:22"].Attempts)
}

func TestEngine_StopOnErrorSkipsPendingQueue(t *testing.T) {
	reg, bus := setup(t, "203.0.113.1", "203.0.113.2", "203.0.113.3")
	rec := createJob(t, reg, "203.0.113.1", []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(map[string][]worker.SimulatedOutcome{
		"203.0.113.2:22": {{Status: worker.StatusFailed, Error: "boom"}},
	}, 0)
	e := New(reg, bus, w, logger.Nop())

	err := e.Run(context.Background(), rec.JobID, control.New(), models.RunSpec{
		ConcurrencyLimit: 1, StopOnError: true,
	})
	require.NoError(t, err)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Equal(t, models.DeviceFailed, final.DeviceResults["203.0.113.2:22"].Status)
	assert.NotEqual(t, models.DeviceFailed, final.DeviceResults["203.0.113.3:22"].Status)
}

func TestEngine_PreRunCancel(t *testing.T) {
	reg, bus := setup(t, "10.0.0.1")
	rec := createJob(t, reg, "10.0.0.1", []string{"10.0.0.1"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(nil, 0)
	e := New(reg, bus, w, logger.Nop())

	ctrl := control.New()
	ctrl.Cancel()

	err := e.Run(context.Background(), rec.JobID, ctrl, models.RunSpec{ConcurrencyLimit: 1})
	require.NoError(t, err)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, final.Status)
	assert.Equal(t, models.DeviceQueued, final.DeviceResults["10.0.0.1:22"].Status)

	events := bus.List(rec.JobID, 0)
	completions := 0
	for _, ev := range events {
		if ev.Type == models.EventJobComplete {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestEngine_PauseThenCancelDuringFanOut(t *testing.T) {
	reg, bus := setup(t, "10.9.2.1", "10.9.2.2", "10.9.2.3", "10.9.2.4")
	rec := createJob(t, reg, "10.9.2.1",
		[]string{"10.9.2.1", "10.9.2.2", "10.9.2.3", "10.9.2.4"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(nil, 300*time.Millisecond)
	e := New(reg, bus, w, logger.Nop())
	ctrl := control.New()

	runDone := make(chan error, 1)
	go func() {
		runDone <- e.Run(context.Background(), rec.JobID, ctrl, models.RunSpec{ConcurrencyLimit: 1})
	}()

	// The canary takes 300ms; pause once the first non-canary device has
	// been admitted, then cancel while that device is still running.
	time.Sleep(400 * time.Millisecond)
	ctrl.SetPause(true)

	time.Sleep(100 * time.Millisecond)
	ctrl.Cancel()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine run did not finish after cancel")
	}

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, final.Status)
	assert.Equal(t, models.DeviceSuccess, final.DeviceResults["10.9.2.1:22"].Status)

	for _, key := range []string{"10.9.2.3:22", "10.9.2.4:22"} {
		assert.Equal(t, models.DeviceCancelled, final.DeviceResults[key].Status)
	}
}

func TestEngine_WorkerCancelledResultCancelsJob(t *testing.T) {
	reg, bus := setup(t, "10.5.0.1", "10.5.0.2", "10.5.0.3")
	rec := createJob(t, reg, "10.5.0.1", []string{"10.5.0.1", "10.5.0.2", "10.5.0.3"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(map[string][]worker.SimulatedOutcome{
		"10.5.0.2:22": {{Status: worker.StatusCancelled, Error: worker.ErrCancelledMsg}},
	}, 0)
	e := New(reg, bus, w, logger.Nop())

	err := e.Run(context.Background(), rec.JobID, control.New(), models.RunSpec{ConcurrencyLimit: 1})
	require.NoError(t, err)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, final.Status)
	assert.Equal(t, models.DeviceCancelled, final.DeviceResults["10.5.0.3:22"].Status)
}

func TestEngine_ConcurrencyLimitNeverExceeded(t *testing.T) {
	reg, bus := setup(t, "172.16.0.1", "172.16.0.2", "172.16.0.3", "172.16.0.4", "172.16.0.5")
	rec := createJob(t, reg, "172.16.0.1",
		[]string{"172.16.0.1", "172.16.0.2", "172.16.0.3", "172.16.0.4", "172.16.0.5"}, models.JobCreate{})

	w := worker.NewSimulatedDeviceWorker(nil, 20*time.Millisecond)
	e := New(reg, bus, w, logger.Nop())

	err := e.Run(context.Background(), rec.JobID, control.New(), models.RunSpec{ConcurrencyLimit: 2})
	require.NoError(t, err)

	final, err := reg.Get(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)

	for _, key := range final.DeviceOrder {
		assert.Equal(t, models.DeviceSuccess, final.DeviceResults[key].Status)
	}

	// device_status=running is published at admission and the terminal
	// device_status after the engine collects the result, so the number of
	// devices between the two bounds the number actually in flight.
	inFlight, maxInFlight := 0, 0
	for _, ev := range bus.List(rec.JobID, 0) {
		if ev.Type != models.EventDeviceStatus {
			continue
		}

		if ev.Status == string(models.DeviceRunning) {
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
		} else {
			inFlight--
		}
	}
	assert.LessOrEqual(t, maxInFlight, 2)
}
