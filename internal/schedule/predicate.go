// Package schedule decides whether a connection is due for a new sync job.
//
// The decision is advisory. Two drivers can both answer true for the same
// connection; the storage layer's enqueue is what keeps a single active job
// per scope.
package schedule

import (
	"errors"
	"fmt"
	"math"

	"airsync/internal/clock"
	"airsync/internal/models"
)

var ErrNoSchedule = errors.New("non-manual sync has no schedule")

// Predicate evaluates sync schedules against an injected clock.
// It holds no mutable state and is safe for concurrent use.
type Predicate struct {
	clock clock.Clock
}

func NewPredicate(c clock.Clock) *Predicate {
	if c == nil {
		c = clock.System{}
	}
	return &Predicate{clock: c}
}

// ShouldSchedule reports whether a new sync job should be enqueued for sync,
// given its most recent job (nil if it never ran).
//
// Manual syncs are never scheduled. An active previous job blocks scheduling.
// Otherwise the next run is due strictly after the previous run start (start
// time, or creation time if the job never started) plus the schedule interval.
//
// An unknown job status or schedule unit is returned as an error.
func (p *Predicate) ShouldSchedule(prev *models.Job, sync models.StandardSync) (bool, error) {
	if sync.Manual {
		return false, nil
	}
	if prev == nil {
		return true, nil
	}

	terminal, err := prev.Status.IsTerminal()
	if err != nil {
		return false, fmt.Errorf("job %d: %w", prev.ID, err)
	}
	if !terminal {
		return false, nil
	}

	interval, err := IntervalSeconds(sync.Schedule)
	if err != nil {
		return false, fmt.Errorf("connection %s: %w", sync.ConnectionID, err)
	}
	start := prev.RunStartSeconds()
	if start > math.MaxInt64-interval {
		return false, fmt.Errorf("connection %s: %w: run start %d + %ds", sync.ConnectionID, models.ErrIntervalOverflow, start, interval)
	}
	nextRunStart := start + interval
	return nextRunStart < p.clock.Now().Unix(), nil
}

// IntervalSeconds returns the length of a schedule period.
func IntervalSeconds(s *models.Schedule) (int64, error) {
	if s == nil {
		return 0, ErrNoSchedule
	}
	return s.IntervalSeconds()
}
