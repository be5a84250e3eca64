package config

import (
	"reflect"
	"strings"

	logx "airsync/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and log fields
// describing the new values. Connector configurations are never logged; they
// usually carry credentials.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		// Storage is opened once; a change only takes effect on restart.
		changed = append(changed, "storage")
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		attrs = append(attrs, logx.String("storage.driver", driver), logx.Bool("storage.restart_required", true))
	}

	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.Poll) != strings.TrimSpace(newCfg.Scheduler.Poll) ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.poll", strings.TrimSpace(newCfg.Scheduler.Poll)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		changed = append(changed, "ops")
		enabled, addr := false, ""
		if newCfg.Ops != nil {
			enabled, addr = newCfg.Ops.Enabled, newCfg.Ops.Addr
		}
		// The token is never logged.
		attrs = append(attrs, logx.Bool("ops.enabled", enabled), logx.String("ops.addr", addr))
	}

	if !reflect.DeepEqual(oldCfg.Workspace, newCfg.Workspace) {
		changed = append(changed, "workspace")
		attrs = append(attrs,
			logx.Int("workspace.sources", len(newCfg.Workspace.Sources)),
			logx.Int("workspace.destinations", len(newCfg.Workspace.Destinations)),
			logx.Int("workspace.connections", len(newCfg.Workspace.Connections)),
		)
	}

	return changed, attrs
}
