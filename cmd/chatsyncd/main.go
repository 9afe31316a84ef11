package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"chatsync/internal/app"
	"chatsync/pkg/config"
	"chatsync/pkg/logger"
	"chatsync/pkg/shutdown"
)

func main() {
	_ = godotenv.Load(".env")
	addr, dbPath, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init("")
		shutdown.Abort("load config", err, "")
	}
	// Flags win over config and env when explicitly set.
	if setFlags["addr"] {
		cfg.Server.Addr = addr
	}
	if setFlags["db"] {
		cfg.Storage.DBPath = dbPath
	}
	logger.Init(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("chatsyncd_starting", "addr", cfg.Server.Addr, "db", cfg.Storage.DBPath,
		"remote", cfg.Remote.BaseURL, "events", cfg.Remote.WSURL)
	if err := app.Run(ctx, cfg); err != nil {
		shutdown.Abort("run daemon", err, cfg.Storage.DBPath)
	}
}
