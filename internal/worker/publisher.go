package worker

import (
	"context"
	"fmt"

	"github.com/ktwhotel/concierge/pkg/logging"
)

// Publisher hands guest messages to the queue.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Enqueue assigns the job an ID when it has none.
func (p *Publisher) Enqueue(ctx context.Context, job Job) error {
	job, env, err := job.envelope()
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, env); err != nil {
		return fmt.Errorf("worker: enqueue job for %s: %w", job.UserID, err)
	}
	p.logger.Debug("inbound job enqueued", "job_id", job.ID, "user_id", job.UserID, "event_id", job.EventID)
	return nil
}
