package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icecake0141/nwrunner/pkg/logger"
	"github.com/icecake0141/nwrunner/pkg/models"
)

func TestPublishAndList(t *testing.T) {
	b := New(logger.Nop(), 0)

	b.Publish(models.ExecutionEvent{Type: models.EventJobStatus, JobID: "j1", Status: "running"})
	b.Publish(models.ExecutionEvent{Type: models.EventDeviceStatus, JobID: "j1", Device: "a:22"})

	events := b.List("j1", 0)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventJobStatus, events[0].Type)
	assert.Equal(t, models.EventDeviceStatus, events[1].Type)

	assert.Empty(t, b.List("j1", 2))
	assert.Equal(t, 1, len(b.List("j1", 1)))
}

func TestSubscribeReceivesBackfillThenLive(t *testing.T) {
	b := New(logger.Nop(), 0)
	b.Publish(models.ExecutionEvent{Type: models.EventJobStatus, JobID: "j1", Status: "running"})

	var mu sync.Mutex
	var received []models.ExecutionEvent

	unsub := b.Subscribe("j1", 0, SubscriberFunc(func(e models.ExecutionEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	}))
	defer unsub()

	b.Publish(models.ExecutionEvent{Type: models.EventDeviceStatus, JobID: "j1", Device: "a:22"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSlowSubscriberIsDroppedWithoutBlockingPublish(t *testing.T) {
	b := New(logger.Nop(), 20*time.Millisecond)

	block := make(chan struct{})
	defer close(block)

	b.Subscribe("j1", 0, SubscriberFunc(func(models.ExecutionEvent) {
		<-block
	}))

	var fastReceived int32
	var mu sync.Mutex
	b.Subscribe("j1", 0, SubscriberFunc(func(models.ExecutionEvent) {
		mu.Lock()
		fastReceived++
		mu.Unlock()
	}))

	done := make(chan struct{})
	go func() {
		b.Publish(models.ExecutionEvent{Type: models.EventLog, JobID: "j1", Message: "hello"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fastReceived >= 1
	}, time.Second, 5*time.Millisecond)

	// A second publish confirms the slow subscriber was dropped: only the
	// fast one keeps receiving, and the call still doesn't block.
	done2 := make(chan struct{})
	go func() {
		b.Publish(models.ExecutionEvent{Type: models.EventLog, JobID: "j1", Message: "again"})
		close(done2)
	}()

	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatal("second Publish blocked")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(logger.Nop(), 0)

	var mu sync.Mutex
	count := 0

	unsub := b.Subscribe("j1", 0, SubscriberFunc(func(models.ExecutionEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	b.Publish(models.ExecutionEvent{Type: models.EventLog, JobID: "j1"})
	unsub()
	b.Publish(models.ExecutionEvent{Type: models.EventLog, JobID: "j1"})

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
