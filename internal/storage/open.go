package storage

import (
	"errors"
	"strings"

	"airsync/internal/clock"
	logx "airsync/pkg/logx"
)

// Open initializes the configured store. Timestamps come from c.
func Open(cfg Config, c clock.Clock, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if c == nil {
		c = clock.System{}
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(c), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, c, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
