package jobs

import (
	"context"
	"fmt"

	"airsync/internal/models"
	"airsync/internal/storage"
	logx "airsync/pkg/logx"
)

// Creator builds and enqueues every job kind a connector can run.
type Creator interface {
	CreateSourceCheckConnectionJob(ctx context.Context, source models.SourceConnection, image string) (int64, error)
	CreateDestinationCheckConnectionJob(ctx context.Context, destination models.DestinationConnection, image string) (int64, error)
	CreateDiscoverSchemaJob(ctx context.Context, source models.SourceConnection, image string) (int64, error)
	CreateGetSpecJob(ctx context.Context, image string) (int64, error)
	CreateSyncJob(ctx context.Context, in SyncInput) (id int64, ok bool, err error)
	CreateResetConnectionJob(ctx context.Context, in ResetInput) (id int64, ok bool, err error)
}

// DefaultCreator enqueues through a storage.JobPersistence.
//
// Check, discover and spec jobs are user-triggered singletons: finding an
// active job for their scope is an error (ErrActiveJobExists). Sync and reset
// jobs report the same situation as ok == false so a scheduling pass can skip
// the connection quietly.
type DefaultCreator struct {
	persistence storage.JobPersistence
	log         logx.Logger
}

var _ Creator = (*DefaultCreator)(nil)

func NewDefaultCreator(p storage.JobPersistence, log logx.Logger) *DefaultCreator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DefaultCreator{persistence: p, log: log}
}

func (c *DefaultCreator) CreateSourceCheckConnectionJob(ctx context.Context, source models.SourceConnection, image string) (int64, error) {
	cfg, err := BuildSourceCheckConnection(source, image)
	if err != nil {
		return 0, err
	}
	return c.enqueueRequired(ctx, source.ScopeID(), cfg)
}

func (c *DefaultCreator) CreateDestinationCheckConnectionJob(ctx context.Context, destination models.DestinationConnection, image string) (int64, error) {
	cfg, err := BuildDestinationCheckConnection(destination, image)
	if err != nil {
		return 0, err
	}
	return c.enqueueRequired(ctx, destination.ScopeID(), cfg)
}

func (c *DefaultCreator) CreateDiscoverSchemaJob(ctx context.Context, source models.SourceConnection, image string) (int64, error) {
	cfg, err := BuildDiscoverSchema(source, image)
	if err != nil {
		return 0, err
	}
	return c.enqueueRequired(ctx, source.ScopeID(), cfg)
}

// CreateGetSpecJob is scoped by the image itself; no entity owns it.
func (c *DefaultCreator) CreateGetSpecJob(ctx context.Context, image string) (int64, error) {
	cfg, err := BuildGetSpec(image)
	if err != nil {
		return 0, err
	}
	return c.enqueueRequired(ctx, image, cfg)
}

// CreateSyncJob threads the connection's last state into the payload.
func (c *DefaultCreator) CreateSyncJob(ctx context.Context, in SyncInput) (int64, bool, error) {
	// Validate before any I/O.
	if _, err := BuildSync(in, nil); err != nil {
		return 0, false, err
	}
	state, err := c.persistence.GetCurrentState(ctx, in.Sync.ConnectionID)
	if err != nil {
		return 0, false, fmt.Errorf("load state for connection %s: %w", in.Sync.ConnectionID, err)
	}
	cfg, err := BuildSync(in, state)
	if err != nil {
		return 0, false, err
	}
	return c.enqueueOptional(ctx, in.Sync.ConnectionID.String(), cfg)
}

func (c *DefaultCreator) CreateResetConnectionJob(ctx context.Context, in ResetInput) (int64, bool, error) {
	cfg, err := BuildResetConnection(in)
	if err != nil {
		return 0, false, err
	}
	return c.enqueueOptional(ctx, in.Sync.ConnectionID.String(), cfg)
}

func (c *DefaultCreator) enqueueRequired(ctx context.Context, scope string, cfg models.JobConfig) (int64, error) {
	id, ok, err := c.enqueueOptional(ctx, scope, cfg)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s job for scope %q: %w", cfg.ConfigType, scope, ErrActiveJobExists)
	}
	return id, nil
}

func (c *DefaultCreator) enqueueOptional(ctx context.Context, scope string, cfg models.JobConfig) (int64, bool, error) {
	id, ok, err := c.persistence.EnqueueJob(ctx, scope, cfg)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue %s job for scope %q: %w", cfg.ConfigType, scope, err)
	}
	if !ok {
		c.log.Debug("job not enqueued; scope busy", logx.String("scope", scope), logx.String("type", string(cfg.ConfigType)))
		return 0, false, nil
	}
	c.log.Info("job enqueued", logx.Int64("job_id", id), logx.String("scope", scope), logx.String("type", string(cfg.ConfigType)))
	return id, true, nil
}
