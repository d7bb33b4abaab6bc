// Package statemachine implements the pure JobStateMachine transition table
// from spec.md §4.1. It is side-effect free: callers (pkg/registry) are
// responsible for applying timestamp updates around a successful Apply.
package statemachine

import (
	"fmt"

	"github.com/icecake0141/nwrunner/pkg/models"
)

// Event is a lifecycle event fed into the FSM.
type Event string

const (
	EventStart    Event = "start"
	EventPause    Event = "pause"
	EventResume   Event = "resume"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
	EventCancel   Event = "cancel"
)

// transitions encodes the table in spec.md §4.1. Any cell absent from this
// map is undefined and Apply returns ErrInvalidTransition for it.
var transitions = map[models.JobStatus]map[Event]models.JobStatus{
	models.JobQueued: {
		EventStart:  models.JobRunning,
		EventCancel: models.JobCancelled,
	},
	models.JobRunning: {
		EventPause:    models.JobPaused,
		EventComplete: models.JobCompleted,
		EventFail:     models.JobFailed,
		EventCancel:   models.JobCancelled,
	},
	models.JobPaused: {
		EventResume: models.JobRunning,
		EventCancel: models.JobCancelled,
	},
	// Terminal states have no outgoing transitions; they are simply
	// absent from this map, so Apply on any of them always errors.
}

// Apply returns the next status for (status, event), or
// models.ErrInvalidTransition if the cell is undefined. It never mutates
// its arguments and has no side effects.
func Apply(status models.JobStatus, event Event) (models.JobStatus, error) {
	byEvent, ok := transitions[status]
	if !ok {
		return "", fmt.Errorf("%w: %s has no outgoing transitions (event %s)", models.ErrInvalidTransition, status, event)
	}

	next, ok := byEvent[event]
	if !ok {
		return "", fmt.Errorf("%w: no transition for (%s, %s)", models.ErrInvalidTransition, status, event)
	}

	return next, nil
}

// IsTerminalizing reports whether event, applied to status, would land in a
// terminal state.
func IsTerminalizing(status models.JobStatus, event Event) bool {
	next, err := Apply(status, event)
	if err != nil {
		return false
	}

	return next.IsTerminal()
}
