package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"airsync/internal/clock"
	"airsync/internal/config"
	"airsync/internal/eventbus"
	"airsync/internal/jobs"
	"airsync/internal/models"
	"airsync/internal/schedule"
	"airsync/internal/storage"
	logx "airsync/pkg/logx"
)

var (
	sourceID      = uuid.MustParse("0b0f4b1e-8a0c-4a8d-9d1e-3f1f4a2b5c6d")
	destinationID = uuid.MustParse("9c7e2f3a-1b4d-4e5f-8a6b-7c8d9e0f1a2b")
)

func hourly(id uuid.UUID) models.StandardSync {
	return models.StandardSync{
		ConnectionID:  id,
		SourceID:      sourceID,
		DestinationID: destinationID,
		Schedule:      &models.Schedule{Units: 1, TimeUnit: models.TimeUnitHours},
		Catalog: &models.ConfiguredCatalog{Streams: []models.ConfiguredStream{{
			Stream:              models.Stream{Name: "users"},
			SyncMode:            models.SyncModeIncremental,
			DestinationSyncMode: models.DestinationSyncModeAppend,
		}}},
	}
}

func workspace(conns ...models.StandardSync) config.WorkspaceConfig {
	return config.WorkspaceConfig{
		Sources: []config.SourceConfig{{
			ID: sourceID, Name: "pg", DockerImage: "airbyte/source-postgres:0.3.5",
			Configuration: json.RawMessage(`{"host":"db"}`),
		}},
		Destinations: []config.DestinationConfig{{
			ID: destinationID, Name: "lake", DockerImage: "airbyte/destination-gcs:0.1.0",
			Configuration: json.RawMessage(`{"bucket":"raw"}`),
		}},
		Connections: conns,
	}
}

type harness struct {
	clock *clock.Manual
	store storage.Store
	svc   *Service
}

func newHarness(t *testing.T, ws config.WorkspaceConfig, opts ...Option) *harness {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	st := storage.NewMemory(clk)
	t.Cleanup(func() { _ = st.Close() })
	svc := New(
		Config{Enabled: true, Poll: "1h"},
		func() config.WorkspaceConfig { return ws },
		st,
		jobs.NewDefaultCreator(st, logx.Nop()),
		schedule.NewPredicate(clk),
		logx.Nop(),
		opts...,
	)
	return &harness{clock: clk, store: st, svc: svc}
}

func (h *harness) runOnce(t *testing.T) Report {
	t.Helper()
	rep, err := h.svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.Evaluated != rep.Enqueued+rep.Skipped+rep.Failed {
		t.Fatalf("report does not add up: %+v", rep)
	}
	return rep
}

func (h *harness) finishLatest(t *testing.T, connID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	j, err := h.store.GetPreviousJob(ctx, connID.String())
	if err != nil || j == nil {
		t.Fatalf("GetPreviousJob = %v, %v", j, err)
	}
	if err := h.store.StartJob(ctx, j.ID); err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if err := h.store.SetStatus(ctx, j.ID, models.JobStatusSucceeded); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
}

func TestRunOnceFollowsSchedule(t *testing.T) {
	t.Parallel()
	connID := uuid.New()
	h := newHarness(t, workspace(hourly(connID)))

	if rep := h.runOnce(t); rep.Enqueued != 1 {
		t.Fatalf("first pass = %+v, want 1 enqueued", rep)
	}
	// The pending job blocks further syncs.
	h.clock.Advance(2 * time.Hour)
	if rep := h.runOnce(t); rep.Enqueued != 0 || rep.Skipped != 1 {
		t.Fatalf("busy pass = %+v, want 1 skipped", rep)
	}

	h.finishLatest(t, connID)
	h.clock.Advance(59 * time.Minute)
	if rep := h.runOnce(t); rep.Enqueued != 0 {
		t.Fatalf("early pass = %+v, want nothing enqueued", rep)
	}
	h.clock.Advance(time.Minute + time.Second)
	if rep := h.runOnce(t); rep.Enqueued != 1 {
		t.Fatalf("due pass = %+v, want 1 enqueued", rep)
	}

	js, err := h.store.ListJobs(context.Background(), connID.String(), 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(js) != 2 || js[0].ConfigType != models.ConfigTypeSync {
		t.Fatalf("jobs = %+v, want 2 sync jobs", js)
	}
	if js[0].Config.Sync.SourceDockerImage != "airbyte/source-postgres:0.3.5" {
		t.Fatalf("source image = %q", js[0].Config.Sync.SourceDockerImage)
	}
}

func TestRunOnceSkipsManualAndInactive(t *testing.T) {
	t.Parallel()
	manual := hourly(uuid.New())
	manual.Manual = true
	manual.Schedule = nil
	inactive := hourly(uuid.New())
	inactive.Status = models.SyncStatusInactive

	h := newHarness(t, workspace(manual, inactive))
	rep := h.runOnce(t)
	if rep != (Report{Evaluated: 2, Skipped: 2}) {
		t.Fatalf("report = %+v, want 2 skipped", rep)
	}
}

func TestRunOnceCountsFailuresAndContinues(t *testing.T) {
	t.Parallel()
	broken := hourly(uuid.New())
	broken.SourceID = uuid.New()
	good := hourly(uuid.New())

	h := newHarness(t, workspace(broken, good))
	rep := h.runOnce(t)
	if rep != (Report{Evaluated: 2, Enqueued: 1, Failed: 1}) {
		t.Fatalf("report = %+v, want 1 enqueued and 1 failed", rep)
	}
}

func TestRunOnceCancelled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, workspace(hourly(uuid.New())))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := h.svc.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rep.Evaluated != 0 {
		t.Fatalf("report = %+v, want nothing evaluated", rep)
	}
}

func TestManualTriggers(t *testing.T) {
	t.Parallel()
	manual := hourly(uuid.New())
	manual.Manual = true
	h := newHarness(t, workspace(manual))
	ctx := context.Background()

	id, ok, err := h.svc.SyncNow(ctx, manual.ConnectionID)
	if err != nil || !ok || id == 0 {
		t.Fatalf("SyncNow = %d, %v, %v", id, ok, err)
	}
	if _, ok, err := h.svc.ResetNow(ctx, manual.ConnectionID); err != nil || ok {
		t.Fatalf("ResetNow while busy = %v, %v, want skipped", ok, err)
	}

	h.finishLatest(t, manual.ConnectionID)
	id, ok, err = h.svc.ResetNow(ctx, manual.ConnectionID)
	if err != nil || !ok {
		t.Fatalf("ResetNow = %d, %v, %v", id, ok, err)
	}
	j, err := h.store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.ConfigType != models.ConfigTypeResetConnection {
		t.Fatalf("ConfigType = %s, want reset", j.ConfigType)
	}

	if _, _, err := h.svc.SyncNow(ctx, uuid.New()); !errors.Is(err, config.ErrUnknownConnection) {
		t.Fatalf("SyncNow(unknown) err = %v, want ErrUnknownConnection", err)
	}
}

func TestStartApplyStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, workspace())
	ctx := context.Background()

	if err := h.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !h.svc.Running() || h.svc.NextRun().IsZero() {
		t.Fatal("service should be running with a next run")
	}

	if err := h.svc.Apply(ctx, Config{Enabled: true, Poll: "*/10 * * * *"}); err != nil {
		t.Fatalf("Apply(cron): %v", err)
	}
	if next := h.svc.NextRun(); next.IsZero() || next.Minute()%10 != 0 {
		t.Fatalf("NextRun = %v, want a 10-minute boundary", next)
	}

	if err := h.svc.Apply(ctx, Config{Enabled: false, Poll: "1h"}); err != nil {
		t.Fatalf("Apply(disabled): %v", err)
	}
	if h.svc.Running() {
		t.Fatal("service should stop when disabled")
	}

	if err := h.svc.Apply(ctx, Config{Enabled: true, Poll: "soon"}); err == nil {
		t.Fatal("expected error for invalid poll")
	}
	h.svc.Stop(ctx)
}

func TestMetricsAndEvents(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	manual := hourly(uuid.New())
	manual.Manual = true
	scheduled := hourly(uuid.New())
	h := newHarness(t, workspace(manual, scheduled), WithMetrics(m), WithBus(bus))

	h.runOnce(t)
	if _, _, err := h.svc.SyncNow(context.Background(), manual.ConnectionID); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}

	if got := testutil.ToFloat64(m.passes); got != 1 {
		t.Fatalf("passes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connections.WithLabelValues("enqueued")); got != 1 {
		t.Fatalf("enqueued = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connections.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.manual.WithLabelValues("sync", "enqueued")); got != 1 {
		t.Fatalf("manual sync = %v, want 1", got)
	}

	var types []string
	for len(types) < 3 {
		select {
		case e := <-events:
			types = append(types, e.Type)
			if e.Type == eventbus.TypeJobEnqueued {
				je := e.Data.(eventbus.JobEnqueued)
				if je.ConnectionID == manual.ConnectionID.String() && je.Trigger != "manual" {
					t.Fatalf("trigger = %q, want manual", je.Trigger)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("events = %v, want 3", types)
		}
	}
	want := []string{eventbus.TypeJobEnqueued, eventbus.TypePassCompleted, eventbus.TypeJobEnqueued}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}
