package bootstrap

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ktwhotel/concierge/internal/archive"
	"github.com/ktwhotel/concierge/internal/line"
	"github.com/ktwhotel/concierge/internal/session"
	"github.com/ktwhotel/concierge/internal/worker"
)

// Webhook verifies LINE callbacks and enqueues their events on r.Queue.
func (r *Runtime) Webhook() *line.WebhookHandler {
	if r.Config.LineChannelSecret == "" {
		r.Logger.Warn("LINE_CHANNEL_SECRET not set; every webhook call will be rejected")
	}
	intake := worker.NewIntake(worker.NewPublisher(r.Queue, r.Logger), r.Messenger, r.Logger)
	return line.NewWebhookHandler(r.Config.LineChannelSecret, intake, r.Logger)
}

// Worker consumes r.Queue with the configured concurrency.
func (r *Runtime) Worker(opts ...worker.WorkerOption) *worker.Worker {
	base := []worker.WorkerOption{
		worker.WithWorkerCount(r.Config.WorkerCount),
		worker.WithProcessedEventsStore(r.Processed),
	}
	if r.Profiles != nil {
		base = append(base, worker.WithProfiles(r.Profiles))
	}
	return worker.NewWorker(r.Dispatcher, r.Queue, r.Messenger, r.Logger, append(base, opts...)...)
}

const archiveTimeout = 10 * time.Second

// Sweeper expires sessions idle for SESSION_IDLE_TIMEOUT. An unset
// SWEEP_INTERVAL sweeps once a minute. With SESSION_ARCHIVE_BUCKET set,
// every expired session is copied to S3 first.
func (r *Runtime) Sweeper(ctx context.Context) (*session.Sweeper, error) {
	store, err := r.archiveStore(ctx)
	if err != nil {
		return nil, err
	}
	sw := session.NewSweeper(r.Sessions, r.Config.SessionIdleTimeout, r.Config.SweepInterval, r.Logger)
	sw.OnDelete(func(s *session.Session) {
		r.Metrics.ObserveExpired(string(s.Flow()))
		if !store.Enabled() || s.Corrupt {
			return
		}
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := store.ArchiveSession(actx, s); err != nil {
			r.Logger.Warn("failed to archive expired session", "user_id", s.UserID, "error", err)
		}
	})
	return sw, nil
}

func (r *Runtime) archiveStore(ctx context.Context) (*archive.Store, error) {
	bucket := r.Config.SessionArchiveBucket
	if bucket == "" {
		return archive.NewStore(nil, "", r.Logger), nil
	}
	awsCfg, err := r.AWS(ctx)
	if err != nil {
		return nil, err
	}
	return archive.NewStore(s3.NewFromConfig(awsCfg), bucket, r.Logger), nil
}
