package config

import (
	"encoding/json"

	"github.com/google/uuid"

	"airsync/internal/models"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Ops       *OpsConfig      `json:"ops,omitempty"`

	// Workspace holds the connector definitions the scheduler works from.
	Workspace WorkspaceConfig `json:"workspace"`
}

// StorageConfig controls the job store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/jobs.db", "busy_timeout": "5s" }
//
// If the section is omitted the in-memory store is used.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the scheduling loop.
//
// Poll accepts the same forms as the scheduler's ParseSchedule: a Go duration
// ("1m"), HH:MM ("00:05") or a cron expression ("*/2 * * * *").
// Empty means "1m".
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Poll     string `json:"poll,omitempty"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ for cron polls
}

// OpsConfig controls the operational HTTP server (health, metrics, job API,
// pprof). A non-loopback addr needs a token unless allow_insecure is set.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

type WorkspaceConfig struct {
	Sources      []SourceConfig                 `json:"sources,omitempty"`
	Destinations []DestinationConfig            `json:"destinations,omitempty"`
	Operations   []models.StandardSyncOperation `json:"operations,omitempty"`
	Connections  []models.StandardSync          `json:"connections,omitempty"`
}

type SourceConfig struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	DockerImage   string          `json:"docker_image"`
	Configuration json.RawMessage `json:"configuration"`
}

type DestinationConfig struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	DockerImage   string          `json:"docker_image"`
	Configuration json.RawMessage `json:"configuration"`
}
