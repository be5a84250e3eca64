package app

import (
	"fmt"
	"strings"
	"time"

	"airsync/internal/config"
	"airsync/internal/observability/ops"
	"airsync/internal/scheduler"
	"airsync/internal/storage"
	logx "airsync/pkg/logx"
)

// mapStorageConfig turns the storage section into a storage.Config. An
// omitted section selects the in-memory store.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Poll:     cfg.Scheduler.Poll,
		Timezone: cfg.Scheduler.Timezone,
	}
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	if cfg == nil || cfg.Ops == nil {
		return ops.Config{}, nil
	}
	oc := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("ops.write_timeout", oc.WriteTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          strings.TrimSpace(oc.Addr),
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
