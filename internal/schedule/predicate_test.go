package schedule

import (
	"errors"
	"math"
	"testing"
	"time"

	"airsync/internal/clock"
	"airsync/internal/models"

	"github.com/google/uuid"
)

var t0 = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func daily() models.StandardSync {
	return models.StandardSync{
		ConnectionID: uuid.New(),
		Schedule:     &models.Schedule{Units: 24, TimeUnit: models.TimeUnitHours},
	}
}

func jobAt(status models.JobStatus, createdAt time.Time, startedAt *time.Time) *models.Job {
	j := &models.Job{ID: 7, Status: status, CreatedAtSeconds: createdAt.Unix()}
	if startedAt != nil {
		s := startedAt.Unix()
		j.StartedAtSeconds = &s
	}
	return j
}

func mustShould(t *testing.T, p *Predicate, prev *models.Job, sync models.StandardSync) bool {
	t.Helper()
	got, err := p.ShouldSchedule(prev, sync)
	if err != nil {
		t.Fatalf("ShouldSchedule error: %v", err)
	}
	return got
}

func TestManualNeverScheduled(t *testing.T) {
	t.Parallel()
	p := NewPredicate(clock.NewManual(t0.Add(365 * 24 * time.Hour)))
	sync := daily()
	sync.Manual = true

	for _, prev := range []*models.Job{
		nil,
		jobAt(models.JobStatusSucceeded, t0, nil),
		jobAt(models.JobStatusRunning, t0, nil),
		jobAt("garbage", t0, nil),
	} {
		if mustShould(t, p, prev, sync) {
			t.Fatalf("manual sync scheduled with prev=%+v", prev)
		}
	}
}

func TestFirstRunAlwaysScheduled(t *testing.T) {
	t.Parallel()
	p := NewPredicate(clock.NewManual(t0))
	if !mustShould(t, p, nil, daily()) {
		t.Fatal("sync with no previous job should be scheduled")
	}
	// No schedule is needed to decide a first run.
	noSchedule := daily()
	noSchedule.Schedule = nil
	if !mustShould(t, p, nil, noSchedule) {
		t.Fatal("first run should not depend on the schedule")
	}
}

func TestActiveJobBlocksScheduling(t *testing.T) {
	t.Parallel()
	p := NewPredicate(clock.NewManual(t0.Add(1000 * time.Hour)))
	for _, st := range models.ActiveStatuses {
		if mustShould(t, p, jobAt(st, t0, nil), daily()) {
			t.Errorf("scheduled while previous job is %s", st)
		}
	}
}

func TestTerminalJobIntervalBoundary(t *testing.T) {
	t.Parallel()
	interval := 24 * time.Hour
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before", t0.Add(interval - time.Second), false},
		{"exactly at boundary", t0.Add(interval), false},
		{"one second after", t0.Add(interval + time.Second), true},
	}
	for _, st := range models.TerminalStatuses {
		for _, tt := range tests {
			c := clock.NewManual(tt.now)
			p := NewPredicate(c)
			if got := mustShould(t, p, jobAt(st, t0.Add(-time.Hour), &t0), daily()); got != tt.want {
				t.Errorf("%s/%s: ShouldSchedule = %v, want %v", st, tt.name, got, tt.want)
			}
		}
	}
}

func TestDailyIntervalBoundary(t *testing.T) {
	t.Parallel()
	c := clock.NewManual(t0.Add(23 * time.Hour))
	p := NewPredicate(c)
	prev := jobAt(models.JobStatusSucceeded, t0, &t0)

	if mustShould(t, p, prev, daily()) {
		t.Fatal("scheduled at T+23h with a 24h interval")
	}
	c.Set(t0.Add(25 * time.Hour))
	if !mustShould(t, p, prev, daily()) {
		t.Fatal("not scheduled at T+25h with a 24h interval")
	}
}

func TestRunningJobNeverScheduled(t *testing.T) {
	t.Parallel()
	c := clock.NewManual(t0)
	p := NewPredicate(c)
	prev := jobAt(models.JobStatusRunning, t0, &t0)
	for _, d := range []time.Duration{0, time.Hour, 30 * 24 * time.Hour} {
		c.Set(t0.Add(d))
		if mustShould(t, p, prev, daily()) {
			t.Fatalf("scheduled at +%s while previous job running", d)
		}
	}
}

func TestNeverStartedUsesCreatedAt(t *testing.T) {
	t.Parallel()
	p := NewPredicate(clock.NewManual(t0.Add(24*time.Hour + time.Second)))
	// Failed before launch: no start time, creation time drives the interval.
	prev := jobAt(models.JobStatusFailed, t0, nil)
	if !mustShould(t, p, prev, daily()) {
		t.Fatal("expected schedule based on created_at")
	}
	late := t0.Add(2 * time.Hour)
	prev = jobAt(models.JobStatusFailed, t0, &late)
	if mustShould(t, p, prev, daily()) {
		t.Fatal("started_at should take precedence over created_at")
	}
}

func TestUnknownStatusIsError(t *testing.T) {
	t.Parallel()
	p := NewPredicate(clock.NewManual(t0))
	_, err := p.ShouldSchedule(jobAt("paused", t0, nil), daily())
	if !errors.Is(err, models.ErrUnknownStatus) {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}
}

func TestMissingOrBadScheduleIsError(t *testing.T) {
	t.Parallel()
	p := NewPredicate(clock.NewManual(t0.Add(48 * time.Hour)))
	prev := jobAt(models.JobStatusSucceeded, t0, nil)

	sync := daily()
	sync.Schedule = nil
	if _, err := p.ShouldSchedule(prev, sync); !errors.Is(err, ErrNoSchedule) {
		t.Fatalf("err = %v, want ErrNoSchedule", err)
	}
	sync.Schedule = &models.Schedule{Units: 1, TimeUnit: "decades"}
	if _, err := p.ShouldSchedule(prev, sync); !errors.Is(err, models.ErrUnknownTimeUnit) {
		t.Fatalf("err = %v, want ErrUnknownTimeUnit", err)
	}
}

func TestOverflowingIntervalIsError(t *testing.T) {
	t.Parallel()
	p := NewPredicate(clock.NewManual(t0.Add(time.Minute)))
	prev := jobAt(models.JobStatusSucceeded, t0, &t0)

	sync := daily()
	sync.Schedule = &models.Schedule{Units: math.MaxInt64/60 + 1, TimeUnit: models.TimeUnitMinutes}
	got, err := p.ShouldSchedule(prev, sync)
	if !errors.Is(err, models.ErrIntervalOverflow) || got {
		t.Fatalf("ShouldSchedule = (%v, %v), want (false, ErrIntervalOverflow)", got, err)
	}

	// Fits in int64 on its own but not once added to the run start.
	sync.Schedule = &models.Schedule{Units: math.MaxInt64 / 60, TimeUnit: models.TimeUnitMinutes}
	got, err = p.ShouldSchedule(prev, sync)
	if !errors.Is(err, models.ErrIntervalOverflow) || got {
		t.Fatalf("ShouldSchedule = (%v, %v), want (false, ErrIntervalOverflow)", got, err)
	}
}
