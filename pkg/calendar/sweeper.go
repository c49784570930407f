package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"greenstorm/pkg/logger"
	"greenstorm/pkg/store"
)

// DefaultSweepCron runs the cache sweep daily at 03:00.
const DefaultSweepCron = "0 3 * * *"

// StartSweeper launches a background job that deletes expired feed cache
// entries on the given cron schedule. An empty cronExpr selects
// DefaultSweepCron; maxAge <= 0 selects DefaultCacheTTL. Returns a cancel
// func that stops the scheduler.
func StartSweeper(ctx context.Context, cronExpr string, maxAge time.Duration) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = DefaultSweepCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cronExpr)
	}
	if maxAge <= 0 {
		maxAge = DefaultCacheTTL
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runSweeper(ctx2, cronExpr, maxAge)
	logger.Info("feed_cache_sweeper_started", "cron", cronExpr, "max_age", maxAge.String())
	return cancel, nil
}

// runSweeper sleeps until each cron tick and sweeps the feed cache.
func runSweeper(ctx context.Context, cronExpr string, maxAge time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("feed_cache_sweeper_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("feed_cache_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			swept, err := store.SweepFeedCache(maxAge)
			if err != nil {
				logger.Error("feed_cache_sweep_error", "error", err)
				continue
			}
			logger.Info("feed_cache_swept", "deleted", swept)
		case <-ctx.Done():
			logger.Info("feed_cache_sweeper_stopping")
			return
		}
	}
}
