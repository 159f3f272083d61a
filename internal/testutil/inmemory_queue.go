package testutil

import (
	"context"
	"sync"
	"time"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/queue"
)

// InMemoryQueue implements queue.Queue on in-process slices. Pops never
// block; an empty queue returns nil immediately. Setting Down simulates
// an unreachable broker.
type InMemoryQueue struct {
	mu     sync.Mutex
	queues map[string][][]byte
	Down   bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{queues: make(map[string][][]byte)}
}

func (q *InMemoryQueue) unavailable() error {
	return ierr.NewError("queue down").
		WithHint("Queue is unavailable").
		Mark(ierr.ErrServiceUnavailable)
}

func (q *InMemoryQueue) Push(ctx context.Context, name string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Down {
		return q.unavailable()
	}
	q.queues[name] = append(q.queues[name], payload)
	return nil
}

func (q *InMemoryQueue) PushBatch(ctx context.Context, name string, payloads [][]byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Down {
		return q.unavailable()
	}
	q.queues[name] = append(q.queues[name], payloads...)
	return nil
}

func (q *InMemoryQueue) PopBlocking(ctx context.Context, names []string, timeout time.Duration) (*queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Down {
		return nil, q.unavailable()
	}
	for _, name := range names {
		if items := q.queues[name]; len(items) > 0 {
			q.queues[name] = items[1:]
			return &queue.Message{Queue: name, Payload: items[0]}, nil
		}
	}
	return nil, nil
}

func (q *InMemoryQueue) PopNoWait(ctx context.Context, name string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Down {
		return nil, q.unavailable()
	}
	items := q.queues[name]
	if len(items) == 0 {
		return nil, nil
	}
	q.queues[name] = items[1:]
	return items[0], nil
}

func (q *InMemoryQueue) RequeueFront(ctx context.Context, name string, payloads [][]byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Down {
		return q.unavailable()
	}
	q.queues[name] = append(append([][]byte{}, payloads...), q.queues[name]...)
	return nil
}

func (q *InMemoryQueue) Len(ctx context.Context, name string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Down {
		return 0, q.unavailable()
	}
	return int64(len(q.queues[name])), nil
}

func (q *InMemoryQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Down {
		return q.unavailable()
	}
	return nil
}
