package scheduler

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"airsync/internal/jobs"
	"airsync/internal/schedule"
	"airsync/internal/storage"
	logx "airsync/pkg/logx"
)

func New(cfg Config, workspace WorkspaceFunc, store storage.JobPersistence, creator jobs.Creator, predicate *schedule.Predicate, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if predicate == nil {
		predicate = schedule.NewPredicate(nil)
	}
	s := &Service{
		cfg:       cfg,
		log:       log,
		workspace: workspace,
		store:     store,
		creator:   creator,
		predicate: predicate,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		warnLims: map[string]*rate.Limiter{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enabled reports the current config flag. Safe to call while Apply runs.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Running reports whether the poll loop is registered.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Apply swaps the config. A running loop is re-registered when the poll or
// timezone changed, and stopped when the scheduler was disabled.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(ctx)
		return nil
	case !running && cfg.Enabled:
		return s.Start(ctx)
	case !running:
		return nil
	}
	if strings.TrimSpace(old.Poll) == strings.TrimSpace(cfg.Poll) &&
		strings.TrimSpace(old.Timezone) == strings.TrimSpace(cfg.Timezone) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	<-s.c.Stop().Done()
	s.c = nil
	if err := s.startLocked(ctx); err != nil {
		return err
	}
	s.log.Info("poll updated", logx.String("poll", s.pollLocked()), logx.String("tz", s.loc.String()))
	return nil
}

// Start registers the poll loop. It is a no-op when disabled or already
// running. ctx bounds every pass the loop runs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}
	if err := s.startLocked(ctx); err != nil {
		return err
	}
	s.log.Info("service started", logx.String("poll", s.pollLocked()), logx.String("tz", s.loc.String()))
	return nil
}

func (s *Service) startLocked(ctx context.Context) error {
	ps, err := ParseSchedule(s.pollLocked())
	if err != nil {
		return err
	}
	s.loc = s.loadLocationLocked()
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))

	job := cron.FuncJob(func() { s.tick(ctx) })
	if ps.Kind == SpecInterval {
		sched, jitter := intervalWithSpread(ps.Every, time.Now().In(s.loc), s.rng)
		s.entryID = c.Schedule(sched, job)
		s.log.Debug("poll registered", logx.String("spec", ps.CronSpec()), logx.Duration("startup_spread", jitter))
	} else {
		id, err := c.AddJob(ps.Cron, job)
		if err != nil {
			return err
		}
		s.entryID = id
		s.log.Debug("poll registered", logx.String("spec", ps.Cron))
	}
	c.Start()
	s.c = c
	return nil
}

// Stop unregisters the poll loop and waits for an in-flight pass, or for ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// NextRun returns the next scheduled pass, or the zero time when stopped.
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entryID).Next
}

func (s *Service) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.passMu.TryLock() {
		s.log.Debug("previous pass still running; tick skipped")
		return
	}
	defer s.passMu.Unlock()

	start := time.Now()
	rep := s.runOnce(ctx)
	fields := []logx.Field{
		logx.Int("evaluated", rep.Evaluated),
		logx.Int("enqueued", rep.Enqueued),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", time.Since(start)),
	}
	if rep.Enqueued > 0 || rep.Failed > 0 {
		s.log.Info("scheduling pass done", fields...)
	} else {
		s.log.Debug("scheduling pass done", fields...)
	}
}

func (s *Service) pollLocked() string {
	if p := strings.TrimSpace(s.cfg.Poll); p != "" {
		return p
	}
	return defaultPoll
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
