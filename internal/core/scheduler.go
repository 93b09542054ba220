package core

// scheduler.go purges old submission audit entries on a fixed interval.
// A failed purge is logged and retried on the next tick; it never stops the
// scheduler.

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes audit entries older than a number of days.
type Purger interface {
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// RetentionConfig controls the purge schedule.
type RetentionConfig struct {
	RetentionDays int           // Entries older than this are deleted (default: 90)
	CheckInterval time.Duration // How often to run (default: 24h)
}

// RunRetentionScheduler purges once immediately, then every CheckInterval,
// until ctx is cancelled. It returns nil on cancellation so it can run in
// an errgroup next to the HTTP server.
func RunRetentionScheduler(ctx context.Context, p Purger, cfg RetentionConfig) error {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}

	slog.Info("audit retention scheduler started",
		"retention_days", cfg.RetentionDays,
		"check_interval", cfg.CheckInterval.String(),
	)

	runPurge(ctx, p, cfg.RetentionDays)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("audit retention scheduler stopped")
			return nil
		case <-ticker.C:
			runPurge(ctx, p, cfg.RetentionDays)
		}
	}
}

func runPurge(ctx context.Context, p Purger, days int) {
	start := time.Now()
	purged, err := p.PurgeOlderThan(ctx, days)
	if err != nil {
		slog.Error("audit purge failed", "error", err)
		return
	}
	slog.Info("purged audit entries",
		"entries_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
