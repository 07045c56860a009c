package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ktwhotel/concierge/internal/dispatch"
	"github.com/ktwhotel/concierge/internal/line"
	"github.com/ktwhotel/concierge/pkg/logging"
)

// Dispatcher runs one inbound message through the conversation engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Inbound) (dispatch.Outcome, error)
}

// Messenger delivers text back to a LINE user.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, texts ...string) error
	Push(ctx context.Context, userID string, texts ...string) error
}

// ProfileSource looks up a user's display name.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (line.Profile, error)
}

type processedEventStore interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	defaultJobTimeout    = 30 * time.Second
	profileTimeout       = 3 * time.Second

	eventProvider = "line"
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
	profiles         ProfileSource
	processed        processedEventStore
}

type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		cfg.receiveWaitSecs = min(seconds, maxWaitSeconds)
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size > 0 {
			cfg.receiveBatchSize = min(size, maxReceiveBatchSize)
		}
	}
}

func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// WithProfiles fills in display names the webhook did not carry.
func WithProfiles(src ProfileSource) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.profiles = src
	}
}

// WithProcessedEventsStore drops LINE redeliveries of events already handled.
func WithProcessedEventsStore(store processedEventStore) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.processed = store
	}
}

// Worker consumes inbound jobs and replies through LINE.
type Worker struct {
	dispatcher Dispatcher
	queue      Queue
	messenger  Messenger
	logger     *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker constructs a queue consumer around the dispatcher.
func NewWorker(dispatcher Dispatcher, queue Queue, messenger Messenger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if dispatcher == nil {
		panic("worker: dispatcher cannot be nil")
	}
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	if messenger == nil {
		panic("worker: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		dispatcher: dispatcher,
		queue:      queue,
		messenger:  messenger,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("inbound worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("inbound worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive inbound jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg Delivery) {
	defer w.deleteMessage(msg.ReceiptHandle)

	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode inbound job", "error", err, "msg_id", msg.ID)
		return
	}
	logger := w.logger.With("job_id", job.ID, "user_id", job.UserID)
	if msg.Attempt > 1 {
		// Reply tokens are single-use, so a redelivery can only push.
		logger.Info("redelivered job", "attempt", msg.Attempt)
		job.ReplyToken = ""
	}

	// In-flight jobs finish during shutdown.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.jobTimeout)
	defer cancel()

	if w.cfg.processed != nil && job.EventID != "" {
		first, err := w.cfg.processed.MarkProcessed(jobCtx, eventProvider, job.EventID)
		if err != nil {
			logger.Warn("processed-event lookup failed; handling anyway", "error", err, "event_id", job.EventID)
		} else if !first {
			logger.Info("skipping redelivered event", "event_id", job.EventID)
			return
		}
	}

	if job.DisplayName == "" && w.cfg.profiles != nil {
		job.DisplayName = w.displayName(jobCtx, job.UserID, logger)
	}

	out, err := w.dispatcher.Dispatch(jobCtx, dispatch.Inbound{
		UserID:      job.UserID,
		DisplayName: job.DisplayName,
		Text:        job.Text,
	})
	reply := out.Reply
	if err != nil {
		logger.Error("dispatch failed", "error", err)
		reply = dispatch.RetryReply()
	} else {
		logger.Debug("inbound job processed", "state", out.State, "handled", out.Handled)
	}

	deliver(jobCtx, w.messenger, job.UserID, job.ReplyToken, reply, logger)
}

func (w *Worker) displayName(ctx context.Context, userID string, logger *logging.Logger) string {
	pctx, cancel := context.WithTimeout(ctx, profileTimeout)
	defer cancel()
	p, err := w.cfg.profiles.Profile(pctx, userID)
	if err != nil {
		logger.Warn("profile lookup failed", "error", err)
		return ""
	}
	return strings.TrimSpace(p.DisplayName)
}

func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound job", "error", err)
	}
}

// deliver uses the reply token while it is still valid and falls back to a
// push message once it has expired or was never issued.
func deliver(ctx context.Context, m Messenger, userID, replyToken, text string, logger *logging.Logger) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if replyToken != "" {
		err := m.Reply(ctx, replyToken, text)
		if err == nil {
			return
		}
		logger.Warn("reply failed; falling back to push", "error", err)
	}
	if err := m.Push(ctx, userID, text); err != nil {
		logger.Error("failed to deliver reply", "error", err)
	}
}
