package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"airsync/internal/clock"
	"airsync/internal/models"
	"airsync/internal/storage"
	logx "airsync/pkg/logx"
)

func newCreator(t *testing.T) (*DefaultCreator, storage.Store) {
	t.Helper()
	st := storage.NewMemory(clock.NewManual(time.Unix(1_600_000_000, 0)))
	t.Cleanup(func() { _ = st.Close() })
	return NewDefaultCreator(st, logx.Nop()), st
}

func syncInput() SyncInput {
	return SyncInput{
		Source:           fixtureSource(),
		Destination:      fixtureDestination(),
		Sync:             fixtureSync(),
		SourceImage:      "airbyte/source-pg:0.3",
		DestinationImage: "airbyte/destination-gcs:0.1",
		Operations:       fixtureOps(),
	}
}

func TestGetSpecJobScopedByImage(t *testing.T) {
	t.Parallel()
	c, st := newCreator(t)
	ctx := context.Background()

	id, err := c.CreateGetSpecJob(ctx, "airbyte/source-foo:1.0")
	if err != nil {
		t.Fatalf("CreateGetSpecJob: %v", err)
	}
	j, err := st.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Scope != "airbyte/source-foo:1.0" {
		t.Fatalf("scope = %q, want image", j.Scope)
	}
	if j.ConfigType != models.ConfigTypeGetSpec || j.Config.GetSpec == nil || j.Config.GetSpec.DockerImage != "airbyte/source-foo:1.0" {
		t.Fatalf("unexpected job config: %+v", j.Config)
	}

	// A second spec job for the same image is a hard failure.
	if _, err := c.CreateGetSpecJob(ctx, "airbyte/source-foo:1.0"); !errors.Is(err, ErrActiveJobExists) {
		t.Fatalf("second spec job err = %v, want ErrActiveJobExists", err)
	}
}

func TestSingletonJobScopes(t *testing.T) {
	t.Parallel()
	c, st := newCreator(t)
	ctx := context.Background()
	src := fixtureSource()
	dst := fixtureDestination()

	id, err := c.CreateSourceCheckConnectionJob(ctx, src, "airbyte/source-pg:0.3")
	if err != nil {
		t.Fatalf("source check: %v", err)
	}
	if j, _ := st.GetJob(ctx, id); j.Scope != src.ID.String() {
		t.Fatalf("source check scope = %q, want %s", j.Scope, src.ID)
	}
	// discover shares the source scope, so it conflicts with the pending check.
	if _, err := c.CreateDiscoverSchemaJob(ctx, src, "airbyte/source-pg:0.3"); !errors.Is(err, ErrActiveJobExists) {
		t.Fatalf("discover err = %v, want ErrActiveJobExists", err)
	}

	id, err = c.CreateDestinationCheckConnectionJob(ctx, dst, "airbyte/destination-gcs:0.1")
	if err != nil {
		t.Fatalf("destination check: %v", err)
	}
	if j, _ := st.GetJob(ctx, id); j.Scope != dst.ID.String() || j.ConfigType != models.ConfigTypeCheckConnectionDestination {
		t.Fatalf("destination check job = %+v", j)
	}

	unsaved := models.SourceConnection{Configuration: json.RawMessage(`{"host":"new"}`)}
	id, err = c.CreateDiscoverSchemaJob(ctx, unsaved, "airbyte/source-pg:0.3")
	if err != nil {
		t.Fatalf("discover unsaved source: %v", err)
	}
	if j, _ := st.GetJob(ctx, id); j.Scope != "" {
		t.Fatalf("unsaved source scope = %q, want empty", j.Scope)
	}
}

func TestCreateSyncJobThreadsState(t *testing.T) {
	t.Parallel()
	c, st := newCreator(t)
	ctx := context.Background()
	in := syncInput()

	id, ok, err := c.CreateSyncJob(ctx, in)
	if err != nil || !ok {
		t.Fatalf("first sync: ok=%v err=%v", ok, err)
	}
	j, _ := st.GetJob(ctx, id)
	if j.Scope != in.Sync.ConnectionID.String() {
		t.Fatalf("scope = %q, want connection id", j.Scope)
	}
	if j.Config.Sync == nil || j.Config.Sync.State != nil {
		t.Fatalf("state = %+v, want nil without persisted state", j.Config.Sync)
	}
	if err := st.SetStatus(ctx, id, models.JobStatusSucceeded); err != nil {
		t.Fatalf("succeed: %v", err)
	}

	want := json.RawMessage(`{"cursor":"2021-02-01"}`)
	if err := st.WriteSyncState(ctx, in.Sync.ConnectionID, models.SyncState{State: want}); err != nil {
		t.Fatalf("write state: %v", err)
	}
	id, ok, err = c.CreateSyncJob(ctx, in)
	if err != nil || !ok {
		t.Fatalf("second sync: ok=%v err=%v", ok, err)
	}
	j, _ = st.GetJob(ctx, id)
	if j.Config.Sync.State == nil || string(j.Config.Sync.State.State) != string(want) {
		t.Fatalf("state = %+v, want %s", j.Config.Sync.State, want)
	}
}

func TestSyncAndResetSkipWhenBusy(t *testing.T) {
	t.Parallel()
	c, _ := newCreator(t)
	ctx := context.Background()
	in := syncInput()

	if _, ok, err := c.CreateSyncJob(ctx, in); err != nil || !ok {
		t.Fatalf("first sync: ok=%v err=%v", ok, err)
	}
	id, ok, err := c.CreateSyncJob(ctx, in)
	if err != nil {
		t.Fatalf("busy sync should not error: %v", err)
	}
	if ok || id != 0 {
		t.Fatalf("busy sync enqueued: id=%d", id)
	}

	_, ok, err = c.CreateResetConnectionJob(ctx, ResetInput{
		Destination:      in.Destination,
		Sync:             in.Sync,
		DestinationImage: in.DestinationImage,
	})
	if err != nil {
		t.Fatalf("busy reset should not error: %v", err)
	}
	if ok {
		t.Fatal("reset enqueued while sync pending")
	}
}

func TestCreateResetConnectionJob(t *testing.T) {
	t.Parallel()
	c, st := newCreator(t)
	ctx := context.Background()
	in := syncInput()

	id, ok, err := c.CreateResetConnectionJob(ctx, ResetInput{
		Destination:      in.Destination,
		Sync:             in.Sync,
		DestinationImage: in.DestinationImage,
		Operations:       in.Operations,
	})
	if err != nil || !ok {
		t.Fatalf("reset: ok=%v err=%v", ok, err)
	}
	j, _ := st.GetJob(ctx, id)
	if j.ConfigType != models.ConfigTypeResetConnection || j.Scope != in.Sync.ConnectionID.String() {
		t.Fatalf("unexpected reset job: %+v", j)
	}
	for _, s := range j.Config.ResetConnection.ConfiguredCatalog.Streams {
		if s.SyncMode != models.SyncModeFullRefresh || s.DestinationSyncMode != models.DestinationSyncModeOverwrite {
			t.Fatalf("stream %s not forced to full_refresh/overwrite", s.Stream.Name)
		}
	}
}

type failingPersistence struct {
	stateErr   error
	enqueueErr error
	enqueued   int
}

func (f *failingPersistence) EnqueueJob(context.Context, string, models.JobConfig) (int64, bool, error) {
	f.enqueued++
	if f.enqueueErr != nil {
		return 0, false, f.enqueueErr
	}
	return 1, true, nil
}

func (f *failingPersistence) GetCurrentState(context.Context, uuid.UUID) (*models.SyncState, error) {
	return nil, f.stateErr
}

func (f *failingPersistence) GetPreviousJob(context.Context, string) (*models.Job, error) {
	return nil, nil
}

func TestPersistenceErrorsSurface(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("disk on fire")

	p := &failingPersistence{stateErr: boom}
	c := NewDefaultCreator(p, logx.Nop())
	if _, _, err := c.CreateSyncJob(ctx, syncInput()); !errors.Is(err, boom) {
		t.Fatalf("sync with state error: err = %v, want %v", err, boom)
	}
	if p.enqueued != 0 {
		t.Fatal("enqueue attempted after state lookup failed")
	}

	p = &failingPersistence{enqueueErr: boom}
	c = NewDefaultCreator(p, logx.Nop())
	if _, err := c.CreateGetSpecJob(ctx, "img"); !errors.Is(err, boom) {
		t.Fatalf("spec with enqueue error: err = %v, want %v", err, boom)
	}
}

func TestSyncConfigErrorBeforeIO(t *testing.T) {
	t.Parallel()
	p := &failingPersistence{}
	c := NewDefaultCreator(p, logx.Nop())
	in := syncInput()
	in.SourceImage = ""
	if _, _, err := c.CreateSyncJob(context.Background(), in); !errors.Is(err, ErrMissingImage) {
		t.Fatalf("err = %v, want ErrMissingImage", err)
	}
	if p.enqueued != 0 {
		t.Fatal("enqueue attempted for invalid input")
	}
}
