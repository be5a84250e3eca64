package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"airsync/internal/clock"
	"airsync/internal/models"
)

// memoryStore keeps everything in process memory. One mutex guards all
// state, which makes enqueue's check-and-insert atomic.
type memoryStore struct {
	clock clock.Clock

	mu     sync.Mutex
	closed bool
	nextID int64
	jobs   map[int64]*models.Job
	scopes map[string][]int64 // job ids in insertion order
	states map[uuid.UUID]models.SyncState
}

// NewMemory returns an empty in-memory Store.
func NewMemory(c clock.Clock) Store {
	if c == nil {
		c = clock.System{}
	}
	return &memoryStore{
		clock:  c,
		jobs:   map[int64]*models.Job{},
		scopes: map[string][]int64{},
		states: map[uuid.UUID]models.SyncState{},
	}
}

func (s *memoryStore) EnqueueJob(ctx context.Context, scope string, cfg models.JobConfig) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if err := cfg.Validate(); err != nil {
		return 0, false, err
	}
	// Stored configs must not alias the caller's.
	cp, err := cloneConfig(cfg)
	if err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	for _, id := range s.scopes[scope] {
		terminal, err := s.jobs[id].Status.IsTerminal()
		if err != nil {
			return 0, false, err
		}
		if !terminal {
			return 0, false, nil
		}
	}

	s.nextID++
	now := s.clock.Now().Unix()
	j := &models.Job{
		ID:               s.nextID,
		Scope:            scope,
		ConfigType:       cfg.ConfigType,
		Config:           cp,
		Status:           models.JobStatusPending,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	s.jobs[j.ID] = j
	s.scopes[scope] = append(s.scopes[scope], j.ID)
	return j.ID, true, nil
}

func (s *memoryStore) GetCurrentState(ctx context.Context, connectionID uuid.UUID) (*models.SyncState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	st, ok := s.states[connectionID]
	if !ok {
		return nil, nil
	}
	return &models.SyncState{State: slices.Clone(st.State)}, nil
}

func (s *memoryStore) GetPreviousJob(ctx context.Context, scope string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := s.scopes[scope]
	if len(ids) == 0 {
		return nil, nil
	}
	j := copyJob(s.jobs[ids[len(ids)-1]])
	return &j, nil
}

func (s *memoryStore) GetJob(ctx context.Context, id int64) (models.Job, error) {
	if err := ctx.Err(); err != nil {
		return models.Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Job{}, ErrClosed
	}
	j, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return copyJob(j), nil
}

func (s *memoryStore) ListJobs(ctx context.Context, scope string, limit int) ([]models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := s.scopes[scope]
	out := make([]models.Job, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, copyJob(s.jobs[ids[i]]))
	}
	return out, nil
}

func (s *memoryStore) StartJob(ctx context.Context, id int64) error {
	return s.transition(ctx, id, models.JobStatusRunning)
}

func (s *memoryStore) SetStatus(ctx context.Context, id int64, status models.JobStatus) error {
	if err := checkTarget(status); err != nil {
		return err
	}
	return s.transition(ctx, id, status)
}

func (s *memoryStore) transition(ctx context.Context, id int64, status models.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	terminal, err := j.Status.IsTerminal()
	if err != nil {
		return err
	}
	if terminal {
		return fmt.Errorf("%w: job %d is %s", ErrJobTerminal, id, j.Status)
	}
	now := s.clock.Now().Unix()
	if status == models.JobStatusRunning && j.StartedAtSeconds == nil {
		j.StartedAtSeconds = &now
	}
	j.Status = status
	j.UpdatedAtSeconds = now
	return nil
}

func (s *memoryStore) WriteSyncState(ctx context.Context, connectionID uuid.UUID, state models.SyncState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if emptyState(state.State) {
		delete(s.states, connectionID)
		return nil
	}
	if !json.Valid(state.State) {
		return fmt.Errorf("state for connection %s is not valid JSON", connectionID)
	}
	s.states[connectionID] = models.SyncState{State: slices.Clone(state.State)}
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func copyJob(j *models.Job) models.Job {
	cp := *j
	if j.StartedAtSeconds != nil {
		v := *j.StartedAtSeconds
		cp.StartedAtSeconds = &v
	}
	return cp
}

// cloneConfig deep-copies a config through its JSON form, the same shape the
// sqlite engine persists.
func cloneConfig(cfg models.JobConfig) (models.JobConfig, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return models.JobConfig{}, fmt.Errorf("encode job config: %w", err)
	}
	var out models.JobConfig
	if err := json.Unmarshal(b, &out); err != nil {
		return models.JobConfig{}, fmt.Errorf("decode job config: %w", err)
	}
	return out, nil
}

// emptyState reports whether raw carries no state at all.
func emptyState(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// checkTarget validates a SetStatus target.
func checkTarget(status models.JobStatus) error {
	switch status {
	case models.JobStatusIncomplete, models.JobStatusSucceeded, models.JobStatusFailed, models.JobStatusCancelled:
		return nil
	case models.JobStatusPending, models.JobStatusRunning:
		return fmt.Errorf("status %s cannot be set directly", status)
	default:
		return fmt.Errorf("%w: %q", models.ErrUnknownStatus, string(status))
	}
}
