// Package control implements the per-job cooperative pause/cancel signals
// described in spec.md §4.3: cancel is latched once set, pause is a gate
// cooperative waiters poll at a bounded interval.
package control

import (
	"context"
	"sync"
	"time"
)

// PausePollInterval is the maximum interval cooperative waiters block for
// while pause is set, per spec.md §4.3 (≤ 250ms).
const PausePollInterval = 200 * time.Millisecond

// Control is a single job's pause/cancel signal pair. Zero value is ready
// to use (not paused, not cancelled).
type Control struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
}

// New returns a fresh, unset Control.
func New() *Control {
	return &Control{}
}

// SetPause sets or clears the pause gate. Setting pause on an already-
// cancelled Control is a harmless noop as far as waiters are concerned:
// WaitWhilePaused always checks cancel first.
func (c *Control) SetPause(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = paused
}

// Paused reports the current pause gate state.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.paused
}

// Cancel latches the cancel signal. It is idempotent: calling it twice has
// the same effect as calling it once, and it cannot be unset.
func (c *Control) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelled = true
}

// Cancelled reports whether cancel has been latched.
func (c *Control) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cancelled
}

// WaitWhilePaused blocks the caller, polling at PausePollInterval, for as
// long as pause is set and cancel is not. It returns true if the wait ended
// because cancel was observed, false if pause cleared (or was never set).
// The engine calls it before invoking the canary's worker; the fan-out
// admission loop polls Paused directly, and workers check only Cancelled.
func (c *Control) WaitWhilePaused(ctx context.Context) bool {
	for {
		if c.Cancelled() {
			return true
		}

		if !c.Paused() {
			return false
		}

		timer := time.NewTimer(PausePollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return c.Cancelled()
		case <-timer.C:
		}
	}
}
