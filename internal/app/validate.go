package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"airsync/internal/config"
	"airsync/internal/observability/ops"
	"airsync/internal/scheduler"
)

// validateConfig checks what config.Manager cannot check on its own. It runs
// before the first commit and before every hot reload.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if poll := strings.TrimSpace(cfg.Scheduler.Poll); poll != "" {
		if _, err := scheduler.ParseSchedule(poll); err != nil {
			return fmt.Errorf("scheduler.poll: %w", err)
		}
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	oc, err := mapOpsConfig(cfg)
	if err != nil {
		return err
	}
	return ops.Validate(oc)
}
