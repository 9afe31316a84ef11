// Package app wires the sync core into a runnable daemon: store, remote
// transport, sync worker, retention janitor and the metrics/health
// listener.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chatsync/internal/janitor"
	"chatsync/pkg/config"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/refs"
	"chatsync/pkg/store"
	"chatsync/pkg/syncer"
	"chatsync/pkg/transport"
)

// Run starts everything and blocks until ctx is cancelled, then shuts the
// pieces down in reverse order.
func Run(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	remote := transport.NewRemote(cfg.Remote.BaseURL, cfg.Remote.WSURL)
	worker := syncer.New(st, remote, syncer.Config{
		SendBackoff:        cfg.SendBackoff(),
		RatePerSec:         cfg.Sync.RatePerSec,
		Burst:              cfg.Sync.Burst,
		EventQueueCapacity: cfg.Sync.EventQueueCapacity,
	})
	worker.Start(ctx)
	defer worker.Stop()

	if cfg.Remote.WSURL != "" {
		go func() {
			if err := remote.Listen(ctx, worker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event_feed_stopped", "error", err)
			}
		}()
	}

	cancelJanitor, err := janitor.Start(ctx, st, janitor.Config{
		Enabled: cfg.Retention.Enabled,
		Cron:    cfg.Retention.Cron,
		MaxAge:  cfg.RetentionMaxAge(),
	})
	if err != nil {
		return err
	}
	defer cancelJanitor()

	client := refs.NewClient(st, worker, models.User{ID: cfg.User.ID, Name: cfg.User.Name})
	_ = client // held for embedding; the daemon itself has no UI

	srv := newHTTPServer(cfg.Server.Addr, st)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http_shutdown_failed", "error", err)
	}
	logger.Info("daemon_stopped")
	return nil
}
