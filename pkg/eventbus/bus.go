// Package eventbus implements the append-only, per-job ordered event log
// described in spec.md §4.4: O(1) publish, cursor-based reads, and broadcast
// to subscribers with a bounded per-send timeout so a slow or erroring
// subscriber never blocks the publisher or reorders events for anyone else.
package eventbus

import (
	"sync"
	"time"

	"github.com/icecake0141/nwrunner/pkg/logger"
	"github.com/icecake0141/nwrunner/pkg/models"
)

// DefaultSendTimeout is the bounded per-subscriber send timeout (spec.md
// §4.4 default 2s).
const DefaultSendTimeout = 2 * time.Second

// Subscriber receives events published after it subscribes, plus any
// backfill requested at subscription time. Handle should return promptly;
// the bus drops subscribers that don't keep up (see DefaultSendTimeout).
type Subscriber interface {
	Handle(event models.ExecutionEvent)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(models.ExecutionEvent)

func (f SubscriberFunc) Handle(e models.ExecutionEvent) { f(e) }

type jobLog struct {
	mu          sync.Mutex
	events      []models.ExecutionEvent
	subscribers map[int]Subscriber
	nextSubID   int
}

// Bus is the process-wide event store, keyed by job id. Each job's event
// sequence has its own lock, held for the append and for snapshot-copy
// reads; subscriber dispatch happens after that lock is released, so a slow
// subscriber never blocks a publish to a different job and delays a publish
// to the same job by at most sendTimeout per subscriber. Subscribers see
// events in append order as long as a job's events are published from one
// goroutine, as the Engine does; concurrent Publish calls for the same job
// are not serialized across dispatch.
type Bus struct {
	log         logger.Logger
	sendTimeout time.Duration

	mu   sync.Mutex
	jobs map[string]*jobLog
}

// New builds a Bus. sendTimeout <= 0 uses DefaultSendTimeout.
func New(log logger.Logger, sendTimeout time.Duration) *Bus {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}

	return &Bus{
		log:         log,
		sendTimeout: sendTimeout,
		jobs:        make(map[string]*jobLog),
	}
}

func (b *Bus) jobLogFor(jobID string) *jobLog {
	b.mu.Lock()
	defer b.mu.Unlock()

	jl, ok := b.jobs[jobID]
	if !ok {
		jl = &jobLog{subscribers: make(map[int]Subscriber)}
		b.jobs[jobID] = jl
	}

	return jl
}

// Publish appends event to its job's log and broadcasts it to every live
// subscriber of that job. It never blocks on a subscriber past sendTimeout.
func (b *Bus) Publish(event models.ExecutionEvent) {
	jl := b.jobLogFor(event.JobID)

	jl.mu.Lock()
	jl.events = append(jl.events, event)
	subs := make(map[int]Subscriber, len(jl.subscribers))
	for id, s := range jl.subscribers {
		subs[id] = s
	}
	jl.mu.Unlock()

	for id, s := range subs {
		b.dispatch(jl, id, s, event)
	}
}

func (b *Bus) dispatch(jl *jobLog, id int, s Subscriber, event models.ExecutionEvent) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.Handle(event)
	}()

	select {
	case <-done:
	case <-time.After(b.sendTimeout):
		if b.log != nil {
			b.log.Warn().Str("job_id", event.JobID).Int("subscriber", id).Msg("dropping slow event subscriber")
		}

		b.unsubscribe(jl, id)
	}
}

// List returns a cursor read: all events for jobID at index >= startIndex.
func (b *Bus) List(jobID string, startIndex int) []models.ExecutionEvent {
	jl := b.jobLogFor(jobID)

	jl.mu.Lock()
	defer jl.mu.Unlock()

	if startIndex < 0 {
		startIndex = 0
	}

	if startIndex >= len(jl.events) {
		return nil
	}

	out := make([]models.ExecutionEvent, len(jl.events)-startIndex)
	copy(out, jl.events[startIndex:])

	return out
}

// Subscribe registers s for events published to jobID from now on, plus a
// backfill of events already logged at index >= backfillFrom. It returns an
// unsubscribe function.
func (b *Bus) Subscribe(jobID string, backfillFrom int, s Subscriber) (unsubscribe func()) {
	jl := b.jobLogFor(jobID)

	jl.mu.Lock()
	id := jl.nextSubID
	jl.nextSubID++
	jl.subscribers[id] = s

	if backfillFrom < 0 {
		backfillFrom = 0
	}

	var backfill []models.ExecutionEvent
	if backfillFrom < len(jl.events) {
		backfill = append([]models.ExecutionEvent(nil), jl.events[backfillFrom:]...)
	}
	jl.mu.Unlock()

	for _, e := range backfill {
		s.Handle(e)
	}

	return func() { b.unsubscribe(jl, id) }
}

func (b *Bus) unsubscribe(jl *jobLog, id int) {
	jl.mu.Lock()
	defer jl.mu.Unlock()

	delete(jl.subscribers, id)
}
