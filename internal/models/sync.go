package models

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
)

type TimeUnit string

const (
	TimeUnitMinutes TimeUnit = "minutes"
	TimeUnitHours   TimeUnit = "hours"
	TimeUnitDays    TimeUnit = "days"
	TimeUnitWeeks   TimeUnit = "weeks"
	TimeUnitMonths  TimeUnit = "months"
)

// Seconds returns the length of one unit. A month is 30 days.
func (u TimeUnit) Seconds() (int64, error) {
	const day = 24 * 60 * 60
	switch u {
	case TimeUnitMinutes:
		return 60, nil
	case TimeUnitHours:
		return 60 * 60, nil
	case TimeUnitDays:
		return day, nil
	case TimeUnitWeeks:
		return 7 * day, nil
	case TimeUnitMonths:
		return 30 * day, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeUnit, string(u))
	}
}

// Schedule is "every Units TimeUnit".
type Schedule struct {
	Units    int64    `json:"units"`
	TimeUnit TimeUnit `json:"time_unit"`
}

func (s Schedule) IntervalSeconds() (int64, error) {
	per, err := s.TimeUnit.Seconds()
	if err != nil {
		return 0, err
	}
	if s.Units <= 0 {
		return 0, fmt.Errorf("schedule units must be > 0, got %d", s.Units)
	}
	if s.Units > math.MaxInt64/per {
		return 0, fmt.Errorf("%w: %d %s", ErrIntervalOverflow, s.Units, s.TimeUnit)
	}
	return s.Units * per, nil
}

type NamespaceDefinition string

const (
	NamespaceSource       NamespaceDefinition = "source"
	NamespaceDestination  NamespaceDefinition = "destination"
	NamespaceCustomFormat NamespaceDefinition = "customformat"
)

type SyncStatus string

const (
	SyncStatusActive     SyncStatus = "active"
	SyncStatusInactive   SyncStatus = "inactive"
	SyncStatusDeprecated SyncStatus = "deprecated"
)

// StandardSync is the durable definition of a recurring connection.
// Schedule is ignored when Manual is set.
type StandardSync struct {
	ConnectionID         uuid.UUID             `json:"connection_id"`
	Name                 string                `json:"name,omitempty"`
	SourceID             uuid.UUID             `json:"source_id"`
	DestinationID        uuid.UUID             `json:"destination_id"`
	OperationIDs         []uuid.UUID           `json:"operation_ids,omitempty"`
	Status               SyncStatus            `json:"status,omitempty"`
	Manual               bool                  `json:"manual"`
	Schedule             *Schedule             `json:"schedule,omitempty"`
	NamespaceDefinition  NamespaceDefinition   `json:"namespace_definition,omitempty"`
	NamespaceFormat      string                `json:"namespace_format,omitempty"`
	Prefix               string                `json:"prefix,omitempty"`
	Catalog              *ConfiguredCatalog    `json:"catalog,omitempty"`
	ResourceRequirements *ResourceRequirements `json:"resource_requirements,omitempty"`
}

// Active reports whether the sync should be considered by the scheduler.
// An empty status counts as active.
func (s StandardSync) Active() bool {
	return s.Status == "" || s.Status == SyncStatusActive
}

type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

type DestinationSyncMode string

const (
	DestinationSyncModeAppend      DestinationSyncMode = "append"
	DestinationSyncModeOverwrite   DestinationSyncMode = "overwrite"
	DestinationSyncModeAppendDedup DestinationSyncMode = "append_dedup"
)

type Stream struct {
	Name       string          `json:"name"`
	Namespace  string          `json:"namespace,omitempty"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type ConfiguredStream struct {
	Stream              Stream              `json:"stream"`
	SyncMode            SyncMode            `json:"sync_mode"`
	CursorField         []string            `json:"cursor_field,omitempty"`
	DestinationSyncMode DestinationSyncMode `json:"destination_sync_mode"`
	PrimaryKey          [][]string          `json:"primary_key,omitempty"`
}

type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams"`
}

// Clone returns a deep copy. A nil catalog clones to nil.
func (c *ConfiguredCatalog) Clone() *ConfiguredCatalog {
	if c == nil {
		return nil
	}
	out := &ConfiguredCatalog{Streams: make([]ConfiguredStream, len(c.Streams))}
	for i, s := range c.Streams {
		s.Stream.JSONSchema = slices.Clone(s.Stream.JSONSchema)
		s.CursorField = slices.Clone(s.CursorField)
		if s.PrimaryKey != nil {
			pk := make([][]string, len(s.PrimaryKey))
			for j, k := range s.PrimaryKey {
				pk[j] = slices.Clone(k)
			}
			s.PrimaryKey = pk
		}
		out.Streams[i] = s
	}
	return out
}

// ResourceRequirements are sizing hints handed through to the worker untouched.
type ResourceRequirements struct {
	CPURequest    string `json:"cpu_request,omitempty"`
	CPULimit      string `json:"cpu_limit,omitempty"`
	MemoryRequest string `json:"memory_request,omitempty"`
	MemoryLimit   string `json:"memory_limit,omitempty"`
}

// SyncState is the last checkpoint a connection persisted.
type SyncState struct {
	State json.RawMessage `json:"state"`
}

type OperatorType string

const (
	OperatorTypeNormalization OperatorType = "normalization"
	OperatorTypeDbt           OperatorType = "dbt"
)

type OperatorNormalization struct {
	Option string `json:"option"`
}

type OperatorDbt struct {
	GitRepoURL    string `json:"git_repo_url"`
	GitRepoBranch string `json:"git_repo_branch,omitempty"`
	DockerImage   string `json:"docker_image,omitempty"`
	DbtArguments  string `json:"dbt_arguments,omitempty"`
}

// StandardSyncOperation is a post-sync step (normalization or a dbt run).
type StandardSyncOperation struct {
	OperationID   uuid.UUID              `json:"operation_id"`
	Name          string                 `json:"name"`
	OperatorType  OperatorType           `json:"operator_type"`
	Normalization *OperatorNormalization `json:"operator_normalization,omitempty"`
	Dbt           *OperatorDbt           `json:"operator_dbt,omitempty"`
	Tombstone     bool                   `json:"tombstone,omitempty"`
}

// SourceConnection is a configured source. ID is nil for an entity that has
// not been saved yet (e.g. a check run from a setup form).
type SourceConnection struct {
	ID            *uuid.UUID      `json:"source_id,omitempty"`
	Name          string          `json:"name,omitempty"`
	DockerImage   string          `json:"docker_image,omitempty"`
	Configuration json.RawMessage `json:"configuration"`
}

type DestinationConnection struct {
	ID            *uuid.UUID      `json:"destination_id,omitempty"`
	Name          string          `json:"name,omitempty"`
	DockerImage   string          `json:"docker_image,omitempty"`
	Configuration json.RawMessage `json:"configuration"`
}

// ScopeID is the id rendered as a scope, or "" when there is none.
func (s SourceConnection) ScopeID() string {
	if s.ID == nil {
		return ""
	}
	return s.ID.String()
}

func (d DestinationConnection) ScopeID() string {
	if d.ID == nil {
		return ""
	}
	return d.ID.String()
}
