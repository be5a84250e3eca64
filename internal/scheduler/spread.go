package scheduler

import (
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 10 * time.Second

// spreadSchedule delays the first tick of an interval poll by a random
// jitter, then follows the base schedule. Several processes started together
// then do not all hit the job store at the same instant.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

func intervalWithSpread(every time.Duration, now time.Time, rng *rand.Rand) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := min(every, maxStartupSpread)
	if spreadMax <= 0 || rng == nil {
		return base, 0
	}
	jitter := time.Duration(rng.Int63n(int64(spreadMax)))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}
