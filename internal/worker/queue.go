// Package worker moves inbound LINE messages through a queue to a pool of
// goroutines that run the dispatcher and deliver its replies.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue carries jobs from the webhook intake to the workers.
type Queue interface {
	Send(ctx context.Context, env Envelope) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Delivery, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Envelope is an encoded job on its way into a queue. GroupKey keeps one
// guest's messages in order on queues that support it; DedupKey lets the
// queue drop a webhook retry before a worker sees it.
type Envelope struct {
	Body     string
	GroupKey string
	DedupKey string
}

// Delivery is a job handed to a worker. Attempt starts at 1 and grows each
// time the queue redelivers the same message.
type Delivery struct {
	ID            string
	Body          string
	ReceiptHandle string
	Attempt       int
}

// Job is one guest text message waiting for dispatch.
type Job struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id,omitempty"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	ReplyToken  string    `json:"reply_token,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// envelope fills in the job ID and receive time and encodes it.
func (job Job) envelope() (Job, Envelope, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = time.Now().UTC()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, Envelope{}, fmt.Errorf("worker: encode job: %w", err)
	}
	dedup := job.EventID
	if dedup == "" {
		dedup = job.ID
	}
	return job, Envelope{Body: string(body), GroupKey: job.UserID, DedupKey: dedup}, nil
}
