package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"airsync/internal/config"
	"airsync/internal/eventbus"
	"airsync/internal/jobs"
	"airsync/internal/models"
	logx "airsync/pkg/logx"
)

// ErrNoWorkspace is returned when the service has no workspace source.
var ErrNoWorkspace = errors.New("scheduler: no workspace")

// RunOnce evaluates every connection once and enqueues the due ones.
//
// A failing connection is counted and logged; it does not stop the pass.
// Only a cancelled ctx ends the pass early, and that is returned as the error.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	rep := s.runOnce(ctx)
	return rep, ctx.Err()
}

func (s *Service) runOnce(ctx context.Context) Report {
	var rep Report
	if s.workspace == nil {
		return rep
	}
	start := time.Now()
	defer func() {
		took := time.Since(start)
		s.metrics.observePass(rep, took)
		s.publish(eventbus.TypePassCompleted, eventbus.PassCompleted{
			Evaluated: rep.Evaluated,
			Enqueued:  rep.Enqueued,
			Skipped:   rep.Skipped,
			Failed:    rep.Failed,
			Took:      took,
		})
	}()

	ws := s.workspace()
	for _, sync := range ws.Connections {
		if ctx.Err() != nil {
			break
		}
		rep.Evaluated++
		switch outcome, err := s.evaluate(ctx, ws, sync); {
		case err != nil:
			rep.Failed++
			s.reportFailure(sync.ConnectionID.String(), err)
		case outcome:
			rep.Enqueued++
		default:
			rep.Skipped++
		}
	}
	return rep
}

// evaluate reports whether a job was enqueued for sync.
func (s *Service) evaluate(ctx context.Context, ws config.WorkspaceConfig, sync models.StandardSync) (bool, error) {
	log := s.log.With(logx.String("connection_id", sync.ConnectionID.String()))
	if !sync.Active() {
		log.Trace("connection not active", logx.String("status", string(sync.Status)))
		return false, nil
	}

	prev, err := s.store.GetPreviousJob(ctx, sync.ConnectionID.String())
	if err != nil {
		return false, err
	}
	due, err := s.predicate.ShouldSchedule(prev, sync)
	if err != nil {
		return false, err
	}
	if !due {
		return false, nil
	}

	rc, err := ws.Resolve(sync)
	if err != nil {
		return false, err
	}
	id, ok, err := s.creator.CreateSyncJob(ctx, syncInput(rc))
	if err != nil {
		return false, err
	}
	if !ok {
		// Lost a race with another driver; its job covers this tick.
		log.Debug("sync due but scope already busy")
		return false, nil
	}
	log.Debug("sync scheduled", logx.Int64("job_id", id))
	s.publishEnqueued(id, sync.ConnectionID, models.ConfigTypeSync, "schedule")
	return true, nil
}

// SyncNow enqueues a sync for the connection regardless of its schedule.
// ok is false when the connection already has an active job.
func (s *Service) SyncNow(ctx context.Context, connectionID uuid.UUID) (int64, bool, error) {
	rc, err := s.resolve(connectionID)
	if err != nil {
		s.metrics.observeManual("sync", false, err)
		return 0, false, err
	}
	id, ok, err := s.creator.CreateSyncJob(ctx, syncInput(rc))
	s.metrics.observeManual("sync", ok, err)
	if ok {
		s.publishEnqueued(id, connectionID, models.ConfigTypeSync, "manual")
	}
	return id, ok, err
}

// ResetNow enqueues a reset for the connection.
// ok is false when the connection already has an active job.
func (s *Service) ResetNow(ctx context.Context, connectionID uuid.UUID) (int64, bool, error) {
	rc, err := s.resolve(connectionID)
	if err != nil {
		s.metrics.observeManual("reset", false, err)
		return 0, false, err
	}
	id, ok, err := s.creator.CreateResetConnectionJob(ctx, jobs.ResetInput{
		Destination:      rc.Destination,
		Sync:             rc.Sync,
		DestinationImage: rc.Destination.DockerImage,
		Operations:       rc.Operations,
	})
	s.metrics.observeManual("reset", ok, err)
	if ok {
		s.publishEnqueued(id, connectionID, models.ConfigTypeResetConnection, "manual")
	}
	return id, ok, err
}

func (s *Service) resolve(connectionID uuid.UUID) (config.ResolvedConnection, error) {
	if s.workspace == nil {
		return config.ResolvedConnection{}, ErrNoWorkspace
	}
	rc, err := s.workspace().ResolveByID(connectionID)
	if err != nil {
		return config.ResolvedConnection{}, fmt.Errorf("resolve connection: %w", err)
	}
	return rc, nil
}

func syncInput(rc config.ResolvedConnection) jobs.SyncInput {
	return jobs.SyncInput{
		Source:           rc.Source,
		Destination:      rc.Destination,
		Sync:             rc.Sync,
		SourceImage:      rc.Source.DockerImage,
		DestinationImage: rc.Destination.DockerImage,
		Operations:       rc.Operations,
	}
}

func (s *Service) publishEnqueued(jobID int64, connectionID uuid.UUID, ct models.ConfigType, trigger string) {
	s.publish(eventbus.TypeJobEnqueued, eventbus.JobEnqueued{
		JobID:        jobID,
		ConnectionID: connectionID.String(),
		ConfigType:   string(ct),
		Trigger:      trigger,
	})
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
