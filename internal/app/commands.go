package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"airsync/internal/scheduler"
)

// One-shot operations for the command line. They work without Start.

func (a *App) RunOnce(ctx context.Context) (scheduler.Report, error) {
	return a.sched.RunOnce(ctx)
}

func (a *App) SyncNow(ctx context.Context, connectionID uuid.UUID) (int64, bool, error) {
	return a.sched.SyncNow(ctx, connectionID)
}

func (a *App) Reset(ctx context.Context, connectionID uuid.UUID) (int64, bool, error) {
	return a.sched.ResetNow(ctx, connectionID)
}

func (a *App) GetSpec(ctx context.Context, image string) (int64, error) {
	return a.creator.CreateGetSpecJob(ctx, image)
}

func (a *App) CheckSource(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	src, ok := a.cfgm.Get().Workspace.Source(sourceID)
	if !ok {
		return 0, fmt.Errorf("unknown source %s", sourceID)
	}
	return a.creator.CreateSourceCheckConnectionJob(ctx, src, src.DockerImage)
}

func (a *App) CheckDestination(ctx context.Context, destinationID uuid.UUID) (int64, error) {
	dst, ok := a.cfgm.Get().Workspace.Destination(destinationID)
	if !ok {
		return 0, fmt.Errorf("unknown destination %s", destinationID)
	}
	return a.creator.CreateDestinationCheckConnectionJob(ctx, dst, dst.DockerImage)
}

func (a *App) Discover(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	src, ok := a.cfgm.Get().Workspace.Source(sourceID)
	if !ok {
		return 0, fmt.Errorf("unknown source %s", sourceID)
	}
	return a.creator.CreateDiscoverSchemaJob(ctx, src, src.DockerImage)
}

// Close releases the store and log sinks of an app that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
