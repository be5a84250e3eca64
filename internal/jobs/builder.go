// Package jobs builds job configurations and enqueues them.
//
// The Build* functions are pure: they never touch storage, and every external
// input (including the last sync state) is passed in. DefaultCreator wraps
// them with the persistence calls.
package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"airsync/internal/models"
)

// SyncInput groups what a sync job is built from.
type SyncInput struct {
	Source           models.SourceConnection
	Destination      models.DestinationConnection
	Sync             models.StandardSync
	SourceImage      string
	DestinationImage string
	Operations       []models.StandardSyncOperation
}

// ResetInput groups what a reset job is built from.
type ResetInput struct {
	Destination      models.DestinationConnection
	Sync             models.StandardSync
	DestinationImage string
	Operations       []models.StandardSyncOperation
}

func BuildSourceCheckConnection(source models.SourceConnection, image string) (models.JobConfig, error) {
	if err := requireImage("image", image); err != nil {
		return models.JobConfig{}, err
	}
	if err := requireConfiguration("source.configuration", source.Configuration); err != nil {
		return models.JobConfig{}, err
	}
	return models.JobConfig{
		ConfigType: models.ConfigTypeCheckConnectionSource,
		CheckConnection: &models.JobCheckConnectionConfig{
			ConnectionConfiguration: source.Configuration,
			DockerImage:             image,
		},
	}, nil
}

func BuildDestinationCheckConnection(destination models.DestinationConnection, image string) (models.JobConfig, error) {
	if err := requireImage("image", image); err != nil {
		return models.JobConfig{}, err
	}
	if err := requireConfiguration("destination.configuration", destination.Configuration); err != nil {
		return models.JobConfig{}, err
	}
	return models.JobConfig{
		ConfigType: models.ConfigTypeCheckConnectionDestination,
		CheckConnection: &models.JobCheckConnectionConfig{
			ConnectionConfiguration: destination.Configuration,
			DockerImage:             image,
		},
	}, nil
}

func BuildDiscoverSchema(source models.SourceConnection, image string) (models.JobConfig, error) {
	if err := requireImage("image", image); err != nil {
		return models.JobConfig{}, err
	}
	if err := requireConfiguration("source.configuration", source.Configuration); err != nil {
		return models.JobConfig{}, err
	}
	return models.JobConfig{
		ConfigType: models.ConfigTypeDiscoverSchema,
		DiscoverCatalog: &models.JobDiscoverCatalogConfig{
			ConnectionConfiguration: source.Configuration,
			DockerImage:             image,
		},
	}, nil
}

func BuildGetSpec(image string) (models.JobConfig, error) {
	if err := requireImage("image", image); err != nil {
		return models.JobConfig{}, err
	}
	return models.JobConfig{
		ConfigType: models.ConfigTypeGetSpec,
		GetSpec:    &models.JobGetSpecConfig{DockerImage: image},
	}, nil
}

// BuildSync builds a sync payload. state is the connection's last persisted
// state, or nil to sync from the beginning.
func BuildSync(in SyncInput, state *models.SyncState) (models.JobConfig, error) {
	if err := requireImage("source image", in.SourceImage); err != nil {
		return models.JobConfig{}, err
	}
	if err := requireImage("destination image", in.DestinationImage); err != nil {
		return models.JobConfig{}, err
	}
	if err := requireConfiguration("source.configuration", in.Source.Configuration); err != nil {
		return models.JobConfig{}, err
	}
	if err := requireConfiguration("destination.configuration", in.Destination.Configuration); err != nil {
		return models.JobConfig{}, err
	}
	if in.Sync.Catalog == nil {
		return models.JobConfig{}, fmt.Errorf("connection %s: %w", in.Sync.ConnectionID, ErrMissingCatalog)
	}

	return models.JobConfig{
		ConfigType: models.ConfigTypeSync,
		Sync: &models.JobSyncConfig{
			NamespaceDefinition:      in.Sync.NamespaceDefinition,
			NamespaceFormat:          in.Sync.NamespaceFormat,
			Prefix:                   in.Sync.Prefix,
			SourceDockerImage:        in.SourceImage,
			SourceConfiguration:      in.Source.Configuration,
			DestinationDockerImage:   in.DestinationImage,
			DestinationConfiguration: in.Destination.Configuration,
			OperationSequence:        operationSequence(in.Operations),
			ConfiguredCatalog:        in.Sync.Catalog,
			State:                    state,
			ResourceRequirements:     in.Sync.ResourceRequirements,
		},
	}, nil
}

// BuildResetConnection builds a reset payload.
//
// A reset is an ordinary sync from a source that emits no records and no
// state, with every stream forced to full refresh / overwrite: the destination
// ends up empty for every stream and the next sync starts from scratch.
//
// The catalog is copied before it is rewritten; in.Sync is not modified.
func BuildResetConnection(in ResetInput) (models.JobConfig, error) {
	if err := requireImage("destination image", in.DestinationImage); err != nil {
		return models.JobConfig{}, err
	}
	if err := requireConfiguration("destination.configuration", in.Destination.Configuration); err != nil {
		return models.JobConfig{}, err
	}
	if in.Sync.Catalog == nil {
		return models.JobConfig{}, fmt.Errorf("connection %s: %w", in.Sync.ConnectionID, ErrMissingCatalog)
	}

	catalog := in.Sync.Catalog.Clone()
	for i := range catalog.Streams {
		catalog.Streams[i].SyncMode = models.SyncModeFullRefresh
		catalog.Streams[i].DestinationSyncMode = models.DestinationSyncModeOverwrite
	}

	return models.JobConfig{
		ConfigType: models.ConfigTypeResetConnection,
		ResetConnection: &models.JobResetConnectionConfig{
			NamespaceDefinition:      in.Sync.NamespaceDefinition,
			NamespaceFormat:          in.Sync.NamespaceFormat,
			Prefix:                   in.Sync.Prefix,
			DestinationDockerImage:   in.DestinationImage,
			DestinationConfiguration: in.Destination.Configuration,
			OperationSequence:        operationSequence(in.Operations),
			ConfiguredCatalog:        catalog,
			ResourceRequirements:     in.Sync.ResourceRequirements,
		},
	}, nil
}

// operationSequence never returns nil so the payload always carries a list.
func operationSequence(ops []models.StandardSyncOperation) []models.StandardSyncOperation {
	if ops == nil {
		return []models.StandardSyncOperation{}
	}
	return ops
}

func requireImage(field, image string) error {
	if strings.TrimSpace(image) == "" {
		return fmt.Errorf("%s: %w", field, ErrMissingImage)
	}
	return nil
}

func requireConfiguration(field string, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%s: %w", field, ErrMissingConfiguration)
	}
	return nil
}
