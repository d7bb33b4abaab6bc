package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/icecake0141/nwrunner/pkg/models"
	"github.com/icecake0141/nwrunner/pkg/statemachine"
)

// DefaultHistoryLimit bounds how many terminal jobs are retained before the
// oldest (by CompletedAt) are evicted (spec.md §4.2).
const DefaultHistoryLimit = 200

// Clock is overridable in tests; production code uses time.Now.
type Clock func() time.Time

// IDGen is overridable in tests; production code uses uuid.NewString.
type IDGen func() string

// JobRegistry is the thread-safe owner of JobRecord mutation (spec.md §4.2).
// All field mutation on a JobRecord happens under reg.mu; callers never
// receive a pointer into registry-owned state, only Clone()'d copies.
type JobRegistry struct {
	mu           sync.Mutex
	jobs         map[string]*models.JobRecord
	order        []string // insertion order, oldest first
	historyLimit int
	now          Clock
	newID        IDGen
	inventory    *DeviceInventory
}

// New builds a JobRegistry backed by inventory for target-snapshot lookups.
func New(inventory *DeviceInventory, historyLimit int) *JobRegistry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	return &JobRegistry{
		jobs:         make(map[string]*models.JobRecord),
		historyLimit: historyLimit,
		now:          time.Now,
		newID:        uuid.NewString,
		inventory:    inventory,
	}
}

// Create validates and inserts a new job in JobQueued, snapshotting each
// requested target's current DeviceProfile into DeviceParams. It refuses
// creation if another job is active, or if any target is absent from the
// inventory (spec.md §4.2 contracts).
func (r *JobRegistry) Create(in models.JobCreate) (*models.JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id := r.activeLocked(); id != "" {
		return nil, fmt.Errorf("%w: job %s is active", models.ErrActiveJobConflict, id)
	}

	if len(in.Targets) == 0 {
		return nil, fmt.Errorf("%w: no targets supplied", models.ErrValidation)
	}

	canaryKey := in.CanaryTarget.DeviceKey()

	order := make([]string, 0, len(in.Targets)+1)
	seen := make(map[string]bool, len(in.Targets)+1)
	params := make(map[string]models.DeviceParams, len(in.Targets)+1)

	addTarget := func(t models.DeviceTarget) error {
		key := t.DeviceKey()
		if seen[key] {
			return nil
		}

		profile, ok := r.inventory.Get(key)
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrDeviceNotInInventory, key)
		}

		params[key] = models.SnapshotDeviceParams(profile, in.VerifyCmds)
		order = append(order, key)
		seen[key] = true

		return nil
	}

	canaryInTargets := false
	for _, t := range in.Targets {
		if t.DeviceKey() == canaryKey {
			canaryInTargets = true
		}
	}

	if in.CanaryTarget.Host != "" {
		if !canaryInTargets {
			return nil, fmt.Errorf("%w", models.ErrCanaryNotInTargets)
		}

		if err := addTarget(in.CanaryTarget); err != nil {
			return nil, err
		}
	}

	for _, t := range in.Targets {
		if err := addTarget(t); err != nil {
			return nil, err
		}
	}

	id := r.newID()
	now := r.now()

	rec := &models.JobRecord{
		JobID:            id,
		JobName:          in.JobName,
		Creator:          in.Creator,
		Status:           models.JobQueued,
		CreatedAt:        now,
		Commands:         append([]string(nil), in.Commands...),
		VerifyMode:       in.VerifyMode,
		VerifyCmds:       append([]string(nil), in.VerifyCmds...),
		ConcurrencyLimit: in.ConcurrencyLimit,
		StaggerDelay:     in.StaggerDelay,
		StopOnError:      in.StopOnError,
		CanaryTarget:     in.CanaryTarget,
		DeviceOrder:      order,
		DeviceResults:    make(map[string]*models.DeviceResult, len(order)),
		DeviceParams:     params,
	}

	for _, key := range order {
		rec.DeviceResults[key] = &models.DeviceResult{Status: models.DeviceQueued}
	}

	r.jobs[id] = rec
	r.order = append(r.order, id)

	return rec.Clone(), nil
}

// Get returns a cloned copy of the job record, or ErrJobNotFound.
func (r *JobRegistry) Get(id string) (*models.JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	}

	return rec.Clone(), nil
}

// List returns all retained jobs, reverse-chronological by CreatedAt.
func (r *JobRegistry) List() []*models.JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.JobRecord, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.jobs[r.order[i]].Clone())
	}

	return out
}

// Active returns the newest non-terminal job, or nil if none is active.
func (r *JobRegistry) Active() *models.JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.activeLocked()
	if id == "" {
		return nil
	}

	return r.jobs[id].Clone()
}

func (r *JobRegistry) activeLocked() string {
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		if !r.jobs[id].Status.IsTerminal() {
			return id
		}
	}

	return ""
}

// ApplyEvent delegates to the FSM, stamps StartedAt/CompletedAt as needed,
// persists the new status, and evicts history on a terminal transition.
func (r *JobRegistry) ApplyEvent(id string, event statemachine.Event) (*models.JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	}

	next, err := statemachine.Apply(rec.Status, event)
	if err != nil {
		return nil, err
	}

	now := r.now()
	rec.Status = next

	if event == statemachine.EventStart {
		rec.StartedAt = &now
	}

	if next.IsTerminal() {
		rec.CompletedAt = &now
		r.evictHistoryLocked()
	}

	return rec.Clone(), nil
}

// UpdateDeviceResult atomically mutates the DeviceResult for (jobID, key)
// through fn, narrowing mutation access the way spec.md §4.2 requires.
func (r *JobRegistry) UpdateDeviceResult(jobID, key string, fn func(*models.DeviceResult)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
	}

	res, ok := rec.DeviceResults[key]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrDeviceNotInInventory, key)
	}

	fn(res)

	return nil
}

// evictHistoryLocked drops the oldest terminal jobs by CompletedAt once the
// terminal-job count exceeds historyLimit (spec.md §4.2). Must be called
// with r.mu held.
func (r *JobRegistry) evictHistoryLocked() {
	terminalIDs := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.jobs[id].Status.IsTerminal() {
			terminalIDs = append(terminalIDs, id)
		}
	}

	excess := len(terminalIDs) - r.historyLimit
	if excess <= 0 {
		return
	}

	sort.Slice(terminalIDs, func(i, j int) bool {
		a, b := r.jobs[terminalIDs[i]], r.jobs[terminalIDs[j]]
		return a.CompletedAt.Before(*b.CompletedAt)
	})

	toEvict := make(map[string]bool, excess)
	for _, id := range terminalIDs[:excess] {
		toEvict[id] = true
	}

	delete(toEvict, "")

	next := r.order[:0:0]
	for _, id := range r.order {
		if toEvict[id] {
			delete(r.jobs, id)
			continue
		}

		next = append(next, id)
	}

	r.order = next
}
