// Package janitor schedules background maintenance over the store:
// currently one job, purging tombstones left behind by confirmed deletes.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatsync/pkg/logger"
	"chatsync/pkg/store"
)

type Config struct {
	Enabled bool
	// Cron is a standard five-field cron expression; empty means daily
	// at 03:00.
	Cron   string
	MaxAge time.Duration
}

// Start launches the scheduler and returns its cancel func. Disabled
// config returns a no-op cancel.
func Start(ctx context.Context, st *store.Store, cfg Config) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("janitor_disabled")
		return func() {}, nil
	}
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid janitor cron expression: %s", cfg.Cron)
	}
	ctx2, cancel := context.WithCancel(ctx)
	logger.Info("janitor_enabled", "cron", cronExpr, "max_age", cfg.MaxAge)
	go run(ctx2, st, cronExpr, cfg.MaxAge)
	return cancel, nil
}

// run sleeps until each cron tick and purges.
func run(ctx context.Context, st *store.Store, cronExpr string, maxAge time.Duration) {
	for {
		next, err := gronx.NextTick(cronExpr, false)
		if err != nil {
			logger.Error("janitor_next_tick_failed", "error", err)
			return
		}
		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return
		}
		n, err := st.PurgeTombstones(maxAge)
		if err != nil {
			logger.Error("janitor_purge_failed", "error", err)
			continue
		}
		logger.Info("janitor_purged", "tombstones", n)
	}
}
