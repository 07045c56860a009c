package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ktwhotel/concierge/internal/app/bootstrap"
	appconfig "github.com/ktwhotel/concierge/internal/config"
	"github.com/ktwhotel/concierge/pkg/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.SessionBackend == bootstrap.BackendMemory {
		logger.Error("the sweeper cannot reach in-memory sessions of another process; set SESSION_BACKEND")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	sweeper, err := rt.Sweeper(ctx)
	if err != nil {
		logger.Error("failed to wire session sweeper", "error", err)
		os.Exit(1)
	}
	if *once {
		n, err := sweeper.SweepOnce(ctx)
		if err != nil {
			logger.Error("session sweep failed", "error", err)
			os.Exit(1)
		}
		logger.Info("session sweep complete", "removed", n)
		return
	}
	if err := sweeper.Run(ctx); err != nil {
		logger.Error("session sweeper exited", "error", err)
		os.Exit(1)
	}
}
