package worker

import (
	"context"
	"fmt"

	"github.com/ktwhotel/concierge/internal/dispatch"
	"github.com/ktwhotel/concierge/internal/line"
	"github.com/ktwhotel/concierge/pkg/logging"
)

type enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Intake turns webhook events into queued jobs. Follow events are answered
// inline with the greeting since they never touch a session.
type Intake struct {
	jobs      enqueuer
	messenger Messenger
	logger    *logging.Logger
}

func NewIntake(jobs enqueuer, messenger Messenger, logger *logging.Logger) *Intake {
	if jobs == nil {
		panic("worker: publisher cannot be nil")
	}
	if messenger == nil {
		panic("worker: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Intake{jobs: jobs, messenger: messenger, logger: logger}
}

func (i *Intake) HandleEvent(ctx context.Context, ev line.InboundEvent) error {
	switch ev.Kind {
	case line.KindFollow:
		deliver(ctx, i.messenger, ev.UserID, ev.ReplyToken, dispatch.Greeting(), i.logger.With("user_id", ev.UserID))
		return nil
	case line.KindText:
		if err := i.jobs.Enqueue(ctx, Job{
			EventID:    ev.EventID,
			UserID:     ev.UserID,
			Text:       ev.Text,
			ReplyToken: ev.ReplyToken,
			ReceivedAt: ev.Timestamp.UTC(),
		}); err != nil {
			return fmt.Errorf("worker: enqueue text event: %w", err)
		}
		return nil
	default:
		return nil
	}
}

var _ line.EventHandler = (*Intake)(nil)
