package queue

import (
	"context"
	"time"
)

// Queue names used by the pipeline.
const (
	QueueUsageEvents = "usage_events"
	QueueDeadLetter  = "dead_letter_events"
)

// Message is one popped queue item with its source queue.
type Message struct {
	Queue   string
	Payload []byte
}

// Queue is a durable FIFO shared by ingest and the processor. Push
// appends to the tail; RequeueFront puts a payload back at the head so
// the next pop sees it first.
type Queue interface {
	// Push appends one payload to the queue tail.
	Push(ctx context.Context, queue string, payload []byte) error

	// PushBatch appends payloads in order as one pipelined operation.
	PushBatch(ctx context.Context, queue string, payloads [][]byte) error

	// PopBlocking waits up to timeout for an item on any of the named
	// queues. Returns nil when the timeout elapses with nothing ready.
	PopBlocking(ctx context.Context, queues []string, timeout time.Duration) (*Message, error)

	// PopNoWait returns the head item immediately, or nil if the
	// queue is empty.
	PopNoWait(ctx context.Context, queue string) ([]byte, error)

	// RequeueFront puts payloads back at the head of the queue,
	// preserving their relative order.
	RequeueFront(ctx context.Context, queue string, payloads [][]byte) error

	// Len returns the number of items waiting on the queue.
	Len(ctx context.Context, queue string) (int64, error)

	// Ping reports broker reachability for health checks.
	Ping(ctx context.Context) error
}
