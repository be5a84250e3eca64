// Package storage persists jobs and connection state.
//
// The scheduler core needs three operations from it (JobPersistence); the
// execution side additionally drives job status through Store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"airsync/internal/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobTerminal = errors.New("job already in a terminal status")
	ErrClosed      = errors.New("storage closed")
)

// JobPersistence is the contract the scheduling core consumes.
type JobPersistence interface {
	// EnqueueJob inserts a pending job for scope unless a non-terminal job
	// already exists for it. The check and insert are one atomic step.
	// ok is false (with a nil error) when an active job blocked the insert.
	EnqueueJob(ctx context.Context, scope string, cfg models.JobConfig) (id int64, ok bool, err error)

	// GetCurrentState returns the last persisted state for a connection, or
	// nil if there is none.
	GetCurrentState(ctx context.Context, connectionID uuid.UUID) (*models.SyncState, error)

	// GetPreviousJob returns the most recent job for scope regardless of
	// status, or nil if the scope has no jobs.
	GetPreviousJob(ctx context.Context, scope string) (*models.Job, error)
}

// Store is the full persistence API, including the transitions the
// execution subsystem performs.
type Store interface {
	JobPersistence

	GetJob(ctx context.Context, id int64) (models.Job, error)
	// ListJobs returns jobs for scope, newest first. limit <= 0 means no limit.
	ListJobs(ctx context.Context, scope string, limit int) ([]models.Job, error)

	// StartJob moves a pending or incomplete job to running. The start time
	// is recorded on the first start only.
	StartJob(ctx context.Context, id int64) error
	// SetStatus moves a job to incomplete, succeeded, failed or cancelled.
	// Terminal jobs are immutable.
	SetStatus(ctx context.Context, id int64, status models.JobStatus) error

	// WriteSyncState replaces the connection's state. An empty or null state
	// clears it, so the next sync starts from the beginning.
	WriteSyncState(ctx context.Context, connectionID uuid.UUID, state models.SyncState) error

	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory": process-local maps (tests, dry runs)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
