package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"airsync/internal/models"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Source returns the source with the given id as a model.
func (w WorkspaceConfig) Source(id uuid.UUID) (models.SourceConnection, bool) {
	for _, s := range w.Sources {
		if s.ID == id {
			sid := s.ID
			return models.SourceConnection{ID: &sid, Name: s.Name, DockerImage: s.DockerImage, Configuration: s.Configuration}, true
		}
	}
	return models.SourceConnection{}, false
}

func (w WorkspaceConfig) Destination(id uuid.UUID) (models.DestinationConnection, bool) {
	for _, d := range w.Destinations {
		if d.ID == id {
			did := d.ID
			return models.DestinationConnection{ID: &did, Name: d.Name, DockerImage: d.DockerImage, Configuration: d.Configuration}, true
		}
	}
	return models.DestinationConnection{}, false
}

func (w WorkspaceConfig) Connection(id uuid.UUID) (models.StandardSync, bool) {
	for _, c := range w.Connections {
		if c.ConnectionID == id {
			return c, true
		}
	}
	return models.StandardSync{}, false
}

// ResolveOperations resolves ids in order, skipping tombstoned operations.
func (w WorkspaceConfig) ResolveOperations(ids []uuid.UUID) ([]models.StandardSyncOperation, error) {
	out := make([]models.StandardSyncOperation, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, op := range w.Operations {
			if op.OperationID == id {
				found = true
				if !op.Tombstone {
					out = append(out, op)
				}
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown operation %s", id)
		}
	}
	return out, nil
}

// ResolvedConnection is a connection with everything a sync job needs.
type ResolvedConnection struct {
	Sync        models.StandardSync
	Source      models.SourceConnection
	Destination models.DestinationConnection
	Operations  []models.StandardSyncOperation
}

func (w WorkspaceConfig) Resolve(sync models.StandardSync) (ResolvedConnection, error) {
	src, ok := w.Source(sync.SourceID)
	if !ok {
		return ResolvedConnection{}, fmt.Errorf("connection %s: unknown source %s", sync.ConnectionID, sync.SourceID)
	}
	dst, ok := w.Destination(sync.DestinationID)
	if !ok {
		return ResolvedConnection{}, fmt.Errorf("connection %s: unknown destination %s", sync.ConnectionID, sync.DestinationID)
	}
	ops, err := w.ResolveOperations(sync.OperationIDs)
	if err != nil {
		return ResolvedConnection{}, fmt.Errorf("connection %s: %w", sync.ConnectionID, err)
	}
	return ResolvedConnection{Sync: sync, Source: src, Destination: dst, Operations: ops}, nil
}

// ResolveByID looks the connection up first.
func (w WorkspaceConfig) ResolveByID(id uuid.UUID) (ResolvedConnection, error) {
	sync, ok := w.Connection(id)
	if !ok {
		return ResolvedConnection{}, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	return w.Resolve(sync)
}

// Validate checks ids are unique and every reference resolves. It joins all
// problems into one error.
func (w WorkspaceConfig) Validate() error {
	var errs []error
	seen := map[uuid.UUID]string{}
	claim := func(kind string, id uuid.UUID) {
		if id == uuid.Nil {
			errs = append(errs, fmt.Errorf("%s: id is required", kind))
			return
		}
		if prev, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("%s %s: id already used by a %s", kind, id, prev))
			return
		}
		seen[id] = kind
	}

	for _, s := range w.Sources {
		claim("source", s.ID)
		if strings.TrimSpace(s.DockerImage) == "" {
			errs = append(errs, fmt.Errorf("source %s: docker_image is required", s.ID))
		}
	}
	for _, d := range w.Destinations {
		claim("destination", d.ID)
		if strings.TrimSpace(d.DockerImage) == "" {
			errs = append(errs, fmt.Errorf("destination %s: docker_image is required", d.ID))
		}
	}
	for _, op := range w.Operations {
		claim("operation", op.OperationID)
	}
	for _, c := range w.Connections {
		claim("connection", c.ConnectionID)
		if _, err := w.Resolve(c); err != nil {
			errs = append(errs, err)
		}
		if !c.Manual {
			if c.Schedule == nil {
				errs = append(errs, fmt.Errorf("connection %s: schedule is required unless manual", c.ConnectionID))
			} else if _, err := c.Schedule.IntervalSeconds(); err != nil {
				errs = append(errs, fmt.Errorf("connection %s: %w", c.ConnectionID, err))
			}
		}
		if c.Catalog == nil {
			errs = append(errs, fmt.Errorf("connection %s: catalog is required", c.ConnectionID))
		}
	}
	return errors.Join(errs...)
}
