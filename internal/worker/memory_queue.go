package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue for single-binary deployments. It
// keeps no delivery state, so every message is delivered exactly once and
// Delete has nothing to do.
type MemoryQueue struct {
	ch chan Delivery
}

const defaultMemoryBuffer = 128

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	return &MemoryQueue{ch: make(chan Delivery, buffer)}
}

// Send blocks while the buffer is full.
func (q *MemoryQueue) Send(ctx context.Context, env Envelope) error {
	d := Delivery{ID: uuid.NewString(), Body: env.Body, Attempt: 1}
	d.ReceiptHandle = d.ID
	select {
	case q.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits up to waitSeconds for the first message, then drains
// whatever else is already buffered up to maxMessages. A zero wait blocks
// until a message arrives or ctx is done.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Delivery, error) {
	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	var first Delivery
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case first = <-q.ch:
	}

	out := []Delivery{first}
	for len(out) < maxMessages {
		select {
		case d := <-q.ch:
			out = append(out, d)
		default:
			return out, nil
		}
	}
	return out, nil
}

func (q *MemoryQueue) Delete(context.Context, string) error { return nil }

// Len reports how many jobs are waiting.
func (q *MemoryQueue) Len() int { return len(q.ch) }
