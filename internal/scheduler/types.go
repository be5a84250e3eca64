package scheduler

import (
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"airsync/internal/config"
	"airsync/internal/eventbus"
	"airsync/internal/jobs"
	"airsync/internal/schedule"
	"airsync/internal/storage"
	logx "airsync/pkg/logx"
)

const defaultPoll = "1m"

// Config controls the scheduling loop.
type Config struct {
	Enabled  bool
	Poll     string // see ParseSchedule; empty means "1m"
	Timezone string // IANA TZ used for cron polls, e.g. "Europe/Berlin"
}

// Report summarizes one scheduling pass. Evaluated is always the sum of the
// other three counters.
type Report struct {
	Evaluated int
	Enqueued  int
	Skipped   int
	Failed    int
}

// WorkspaceFunc returns the current workspace snapshot. It is called once per
// pass so config reloads are picked up without restarting the loop.
type WorkspaceFunc func() config.WorkspaceConfig

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	workspace WorkspaceFunc
	store     storage.JobPersistence
	creator   jobs.Creator
	predicate *schedule.Predicate
	metrics   *Metrics
	bus       eventbus.Bus

	parser  cron.Parser
	c       *cron.Cron
	entryID cron.EntryID
	rng     *rand.Rand

	// passMu keeps ticks from overlapping when a pass outlives the poll.
	passMu sync.Mutex

	// Failure warnings are rate limited per connection.
	warnMu   sync.Mutex
	warnLims map[string]*rate.Limiter
}

type Option func(*Service)

// WithMetrics records pass and trigger outcomes on m.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithBus publishes job and pass events on b.
func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }
