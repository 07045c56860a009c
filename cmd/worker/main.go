package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ktwhotel/concierge/internal/app/bootstrap"
	appconfig "github.com/ktwhotel/concierge/internal/config"
	"github.com/ktwhotel/concierge/internal/worker"
	"github.com/ktwhotel/concierge/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("the standalone worker needs an SQS queue; set USE_MEMORY_QUEUE=false and QUEUE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	w := rt.Worker(worker.WithReceiveWaitSeconds(20), worker.WithReceiveBatchSize(10))
	w.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount, "queue_url", cfg.QueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		w.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
