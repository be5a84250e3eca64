package models

import (
	"encoding/json"
	"fmt"
)

// JobConfig is a tagged payload: ConfigType selects which one of the variant
// pointers is set. Validate enforces that exactly the matching one is present.
type JobConfig struct {
	ConfigType      ConfigType                `json:"config_type"`
	CheckConnection *JobCheckConnectionConfig `json:"check_connection,omitempty"`
	DiscoverCatalog *JobDiscoverCatalogConfig `json:"discover_catalog,omitempty"`
	GetSpec         *JobGetSpecConfig         `json:"get_spec,omitempty"`
	Sync            *JobSyncConfig            `json:"sync,omitempty"`
	ResetConnection *JobResetConnectionConfig `json:"reset_connection,omitempty"`
}

type JobCheckConnectionConfig struct {
	ConnectionConfiguration json.RawMessage `json:"connection_configuration"`
	DockerImage             string          `json:"docker_image"`
}

type JobDiscoverCatalogConfig struct {
	ConnectionConfiguration json.RawMessage `json:"connection_configuration"`
	DockerImage             string          `json:"docker_image"`
}

type JobGetSpecConfig struct {
	DockerImage string `json:"docker_image"`
}

// JobSyncConfig is everything a worker needs to run one sync attempt.
// A nil State means "sync the full history".
type JobSyncConfig struct {
	NamespaceDefinition      NamespaceDefinition     `json:"namespace_definition,omitempty"`
	NamespaceFormat          string                  `json:"namespace_format,omitempty"`
	Prefix                   string                  `json:"prefix,omitempty"`
	SourceDockerImage        string                  `json:"source_docker_image"`
	SourceConfiguration      json.RawMessage         `json:"source_configuration"`
	DestinationDockerImage   string                  `json:"destination_docker_image"`
	DestinationConfiguration json.RawMessage         `json:"destination_configuration"`
	OperationSequence        []StandardSyncOperation `json:"operation_sequence"`
	ConfiguredCatalog        *ConfiguredCatalog      `json:"configured_airbyte_catalog"`
	State                    *SyncState              `json:"state"`
	ResourceRequirements     *ResourceRequirements   `json:"resource_requirements,omitempty"`
}

// JobResetConnectionConfig runs the destination against a source that emits
// nothing, with every stream forced to full refresh / overwrite.
type JobResetConnectionConfig struct {
	NamespaceDefinition      NamespaceDefinition     `json:"namespace_definition,omitempty"`
	NamespaceFormat          string                  `json:"namespace_format,omitempty"`
	Prefix                   string                  `json:"prefix,omitempty"`
	DestinationDockerImage   string                  `json:"destination_docker_image"`
	DestinationConfiguration json.RawMessage         `json:"destination_configuration"`
	OperationSequence        []StandardSyncOperation `json:"operation_sequence"`
	ConfiguredCatalog        *ConfiguredCatalog      `json:"configured_airbyte_catalog"`
	ResourceRequirements     *ResourceRequirements   `json:"resource_requirements,omitempty"`
}

func (c JobConfig) Validate() error {
	set := 0
	for _, present := range []bool{
		c.CheckConnection != nil,
		c.DiscoverCatalog != nil,
		c.GetSpec != nil,
		c.Sync != nil,
		c.ResetConnection != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("job config %q: want exactly one payload, got %d", c.ConfigType, set)
	}

	var ok bool
	switch c.ConfigType {
	case ConfigTypeCheckConnectionSource, ConfigTypeCheckConnectionDestination:
		ok = c.CheckConnection != nil
	case ConfigTypeDiscoverSchema:
		ok = c.DiscoverCatalog != nil
	case ConfigTypeGetSpec:
		ok = c.GetSpec != nil
	case ConfigTypeSync:
		ok = c.Sync != nil
	case ConfigTypeResetConnection:
		ok = c.ResetConnection != nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConfigType, string(c.ConfigType))
	}
	if !ok {
		return fmt.Errorf("job config %q: payload does not match config type", c.ConfigType)
	}
	return nil
}
